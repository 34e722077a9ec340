package conversation

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/chatsync/internal/app/apptest"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/l10n"
)

func wire(id, sender, content string) channel.WireMessage {
	return channel.WireMessage{
		ID:        id,
		Sender:    sender,
		Content:   json.RawMessage(content),
		CreatedAt: "2025-03-01T10:00:00.000Z",
	}
}

func TestNormalizeSender(t *testing.T) {
	tests := map[string]chat.Sender{
		"Bot":       chat.SenderAdmin,
		"ASSISTANT": chat.SenderAdmin,
		"admin":     chat.SenderAdmin,
		"System":    chat.SenderSystem,
		"USER":      chat.SenderUser,
		"user":      chat.SenderUser,
		"Operator":  chat.Sender("operator"),
		"":          chat.Sender(""),
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeSender(in), in)
	}
}

func TestContentText(t *testing.T) {
	tests := map[string]string{
		`"plain"`:           "plain",
		`"with \"quotes\""`: `with "quotes"`,
		`{ "a" : [1, 2] }`:  `{"a":[1,2]}`,
		`[ "x" ]`:           `["x"]`,
		`42`:                "42",
		`true`:              "true",
		`null`:              "null",
		``:                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, contentText(json.RawMessage(in)), in)
	}
}

func TestIncomingIsIdempotent(t *testing.T) {
	env := apptest.New(nil)
	c := New(env.App)

	assert.True(t, c.HandleIncoming(wire("m1", "admin", `"hello"`)))
	assert.False(t, c.HandleIncoming(wire("m1", "admin", `"hello again"`)))

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestIncomingWithoutIDGetsOne(t *testing.T) {
	env := apptest.New(nil)
	c := New(env.App)

	c.HandleIncoming(wire("", "bot", `"a"`))
	c.HandleIncoming(wire("", "bot", `"a"`))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	_, err := uuid.Parse(msgs[0].ID)
	assert.NoError(t, err)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestIncomingClearsTyping(t *testing.T) {
	env := apptest.New(nil)
	c := New(env.App)
	c.SetTyping(true)

	c.HandleIncoming(wire("m1", "admin", `"x"`))
	assert.False(t, c.Typing())
}

func TestHistoryReplacesWholesale(t *testing.T) {
	env := apptest.New(nil)
	c := New(env.App)
	c.AddNotice("local notice")
	c.HandleIncoming(wire("live", "admin", `"live"`))

	c.HandleHistory(channel.History{Messages: []channel.WireMessage{
		wire("h1", "USER", `"question"`),
		wire("h2", "Assistant", `{"text":"answer"}`),
		wire("h3", "System", `"closed"`),
		wire("h1", "user", `"dup"`),
	}})

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []chat.Sender{chat.SenderUser, chat.SenderAdmin, chat.SenderSystem},
		[]chat.Sender{msgs[0].Sender, msgs[1].Sender, msgs[2].Sender})
	assert.Equal(t, `{"text":"answer"}`, msgs[1].Content)

	// Ids from before the replacement are no longer known.
	assert.True(t, c.HandleIncoming(wire("live", "admin", `"live"`)))
	assert.False(t, c.HandleIncoming(wire("h2", "admin", `"again"`)))
}

func TestEmptyHistorySeedsGreetingOnce(t *testing.T) {
	cfg := apptest.Config()
	cfg.Greeting = "How can we help?"
	env := apptest.NewWithConfig(cfg, nil)
	c := New(env.App)

	c.HandleHistory(channel.History{})
	c.HandleHistory(channel.History{Messages: []channel.WireMessage{}})

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "How can we help?", msgs[0].Content)
	assert.Equal(t, chat.SenderAdmin, msgs[0].Sender)
	assert.Equal(t, "2025-03-01T12:00:00.000Z", msgs[0].CreatedAt)
}

func TestEmptyHistoryKeepsExistingMessages(t *testing.T) {
	cfg := apptest.Config()
	cfg.Greeting = "hi"
	env := apptest.NewWithConfig(cfg, nil)
	c := New(env.App)
	c.HandleIncoming(wire("m1", "admin", `"kept"`))

	c.HandleHistory(channel.History{})

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "kept", msgs[0].Content)
}

func TestEmptyHistoryWithoutGreeting(t *testing.T) {
	env := apptest.New(nil)
	c := New(env.App)
	c.HandleHistory(channel.History{})
	assert.Zero(t, c.Len())
}

func TestRatings(t *testing.T) {
	env := apptest.New(nil)
	c := New(env.App)
	c.HandleIncoming(wire("m1", "admin", `"answer"`))

	assert.True(t, c.ApplyRating("m1", chat.RatingLike))
	assert.False(t, c.ApplyRating("missing", chat.RatingLike))
	assert.Equal(t, chat.RatingLike, c.Messages()[0].Rating)

	c.HandleRateResponse(channel.RateResponse{Success: true, MessageID: "m1", Rating: "dislike"})
	assert.Equal(t, chat.RatingDislike, c.Messages()[0].Rating)

	c.HandleRateResponse(channel.RateResponse{Success: true, MessageID: "m1"})
	assert.Equal(t, chat.RatingDislike, c.Messages()[0].Rating)
	assert.Empty(t, env.Errors.List)
}

func TestRateFailureSurfacesServerError(t *testing.T) {
	env := apptest.New(nil)
	c := New(env.App)

	c.HandleRateResponse(channel.RateResponse{Success: false, Error: "too late"})
	c.HandleRateResponse(channel.RateResponse{Success: false})

	require.Len(t, env.Errors.List, 1)
	err := env.Errors.List[0]
	assert.Equal(t, chaterr.Server, err.Kind)
	assert.Equal(t, string(l10n.ErrRatingFailed), err.Code)
	assert.Equal(t, "Rating failed: too late", err.Message)
}

func TestMessagesReturnsCopy(t *testing.T) {
	env := apptest.New(nil)
	c := New(env.App)
	c.AddNotice("n")

	msgs := c.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "n", c.Messages()[0].Content)
}
