// Package conversation keeps the ordered, de-duplicated message list and merges
// what the server sends into it.
package conversation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehrlich-b/chatsync/internal/app"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/l10n"
)

// Conversation is owned by the loop.
type Conversation struct {
	app *app.Context
	log zerolog.Logger

	messages []chat.Message
	index    map[string]int
	typing   bool
}

// New returns an empty conversation.
func New(ctx *app.Context) *Conversation {
	return &Conversation{
		app:   ctx,
		log:   ctx.Logger("conversation"),
		index: make(map[string]int),
	}
}

// Messages returns a copy in conversation order.
func (c *Conversation) Messages() []chat.Message {
	out := make([]chat.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int { return len(c.messages) }

// Typing is whether the other side is shown as typing.
func (c *Conversation) Typing() bool { return c.typing }

// SetTyping sets the agent typing indicator.
func (c *Conversation) SetTyping(on bool) {
	if c.typing == on {
		return
	}
	c.typing = on
	c.app.Changed()
}

// HandleHistory replaces everything with a non-empty history. An empty history
// keeps what is there and seeds the greeting into an empty conversation.
func (c *Conversation) HandleHistory(h channel.History) {
	if len(h.Messages) == 0 {
		c.log.Debug().Msg("empty history")
		if len(c.messages) == 0 && c.app.Config.Greeting != "" {
			c.Append(c.synthetic(c.app.Config.Greeting, chat.SenderAdmin))
		}
		return
	}
	msgs := make([]chat.Message, 0, len(h.Messages))
	index := make(map[string]int, len(h.Messages))
	for _, w := range h.Messages {
		m := c.normalize(w)
		if _, dup := index[m.ID]; dup {
			continue
		}
		index[m.ID] = len(msgs)
		msgs = append(msgs, m)
	}
	c.messages = msgs
	c.index = index
	c.log.Info().Int("messages", len(msgs)).Msg("history loaded")
	c.app.Changed()
}

// HandleIncoming appends a pushed message unless its id is already present. It
// reports whether the message was new.
func (c *Conversation) HandleIncoming(w channel.WireMessage) bool {
	m := c.normalize(w)
	if _, ok := c.index[m.ID]; ok {
		c.log.Debug().Str("id", m.ID).Msg("duplicate message dropped")
		return false
	}
	c.SetTyping(false)
	c.Append(m)
	return true
}

// Append adds m at the end. Callers give it a fresh id.
func (c *Conversation) Append(m chat.Message) {
	c.index[m.ID] = len(c.messages)
	c.messages = append(c.messages, m)
	c.app.Changed()
}

// AddNotice appends a system message.
func (c *Conversation) AddNotice(text string) chat.Message {
	m := c.synthetic(text, chat.SenderSystem)
	c.Append(m)
	return m
}

// ApplyRating sets the rating of one message. It reports whether the id exists.
func (c *Conversation) ApplyRating(id string, r chat.Rating) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.messages[i].Rating = r
	c.app.Changed()
	return true
}

// HandleRateResponse applies the rating the server settled on, or surfaces its
// error.
func (c *Conversation) HandleRateResponse(r channel.RateResponse) {
	if r.Success {
		if r.Rating == "" {
			return
		}
		rating, ok := chat.ParseRating(r.Rating)
		if !ok {
			c.log.Warn().Str("rating", r.Rating).Msg("ignoring unknown rating")
			return
		}
		c.ApplyRating(r.MessageID, rating)
		return
	}
	if r.Error != "" {
		c.app.Fail(chaterr.Server, l10n.ErrRatingFailed, nil, r.Error)
	}
}

func (c *Conversation) synthetic(text string, sender chat.Sender) chat.Message {
	return chat.Message{
		ID:        uuid.NewString(),
		Content:   text,
		Sender:    sender,
		CreatedAt: chat.Timestamp(c.app.Sched.Now()),
	}
}

func (c *Conversation) normalize(w channel.WireMessage) chat.Message {
	m := chat.Message{
		ID:                              w.ID,
		Content:                         contentText(w.Content),
		Sender:                          NormalizeSender(w.Sender),
		CreatedAt:                       w.CreatedAt,
		IsFirstMessageAfterRegistration: w.IsFirstMessageAfterRegistration,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == "" {
		m.CreatedAt = chat.Timestamp(c.app.Sched.Now())
	}
	if r, ok := chat.ParseRating(w.Rating); ok {
		m.Rating = r
	}
	return m
}

// NormalizeSender maps server labels onto user, admin and system. Anything else is
// kept, lowercased.
func NormalizeSender(label string) chat.Sender {
	switch s := strings.ToLower(strings.TrimSpace(label)); s {
	case "user":
		return chat.SenderUser
	case "admin", "bot", "assistant":
		return chat.SenderAdmin
	case "system":
		return chat.SenderSystem
	default:
		return chat.Sender(s)
	}
}

// contentText uses JSON strings as they are and any other value as compact JSON.
func contentText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
