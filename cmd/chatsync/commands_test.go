package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/conn"
	"github.com/ehrlich-b/chatsync/internal/events"
	"github.com/ehrlich-b/chatsync/internal/widget"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"", command{kind: cmdNone}},
		{"   ", command{kind: cmdNone}},
		{"hello there", command{kind: cmdSend, text: "hello there"}},
		{"//login is a word", command{kind: cmdSend, text: "/login is a word"}},
		{"/login 0912", command{kind: cmdLogin, creds: chat.Credentials{Phone: "0912"}}},
		{"/login 0912 pw", command{kind: cmdLogin, creds: chat.Credentials{Phone: "0912", Password: "pw"}}},
		{"/signup 0912 a@b.c", command{kind: cmdSignup, creds: chat.Credentials{Phone: "0912", Email: "a@b.c"}}},
		{"/signup 0912 a@b.c pw", command{kind: cmdSignup, creds: chat.Credentials{Phone: "0912", Email: "a@b.c", Password: "pw"}}},
		{"/signup 0912 pw", command{kind: cmdSignup, creds: chat.Credentials{Phone: "0912", Password: "pw"}}},
		{"/rate like", command{kind: cmdRate, rating: chat.RatingLike}},
		{"/rate abc123 DISLIKE", command{kind: cmdRate, id: "abc123", rating: chat.RatingDislike}},
		{"/HUMAN", command{kind: cmdHuman}},
		{"/ai", command{kind: cmdAI}},
		{"/logout", command{kind: cmdLogout}},
		{"/reconnect", command{kind: cmdReconnect}},
		{"/mode", command{kind: cmdMode}},
		{"/exit", command{kind: cmdQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLineErrors(t *testing.T) {
	for _, line := range []string{"/login", "/login a b c", "/signup", "/rate", "/rate x meh", "/dance"} {
		_, err := parseLine(line)
		assert.Error(t, err, line)
	}
}

func TestResolveMessage(t *testing.T) {
	msgs := []chat.Message{
		{ID: "aaaa-1", Sender: chat.SenderAdmin},
		{ID: "bbbb-2", Sender: chat.SenderAdmin},
		{ID: "cccc-3", Sender: chat.SenderUser},
	}
	id, ok := resolveMessage(msgs, "")
	require.True(t, ok)
	assert.Equal(t, "bbbb-2", id)

	id, ok = resolveMessage(msgs, "aaaa")
	require.True(t, ok)
	assert.Equal(t, "aaaa-1", id)

	_, ok = resolveMessage(msgs, "cccc")
	assert.False(t, ok)
	_, ok = resolveMessage(nil, "")
	assert.False(t, ok)
}

func TestPrompterReadsPasswordFromNextLineOffTerminal(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("\n/login 0912\nsecret\n/bogus\nhi\n"), &out)

	c, err := p.next()
	require.NoError(t, err)
	assert.Equal(t, cmdLogin, c.kind)
	assert.Equal(t, chat.Credentials{Phone: "0912", Password: "secret"}, c.creds)
	assert.Contains(t, out.String(), "password: ")

	c, err = p.next()
	require.NoError(t, err)
	assert.Equal(t, cmdInvalid, c.kind)
	assert.Contains(t, c.text, "/bogus")

	c, err = p.next()
	require.NoError(t, err)
	assert.Equal(t, command{kind: cmdSend, text: "hi"}, c)

	_, err = p.next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRendererPrintsOnlyChanges(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	st := widget.State{
		Connection: conn.State{StatusName: "connected"},
		Session:    chat.Session{IsAuthenticated: true, UserID: "u1"},
		Support:    chat.SupportState{Mode: chat.ModeNormal},
		Messages: []chat.Message{
			{ID: "m1", Content: "hello", Sender: chat.SenderUser, CreatedAt: "2025-03-01T12:00:00.000Z"},
			{ID: "0123456789", Content: "hi, how can I help?", Sender: chat.SenderAdmin, CreatedAt: "2025-03-01T12:00:01.000Z"},
		},
	}
	r.state(st)
	first := out.String()
	assert.Contains(t, first, "* connection: connected")
	assert.Contains(t, first, "* signed in as u1")
	assert.Contains(t, first, "you: hello")
	assert.Contains(t, first, "agent <01234567>: hi, how can I help?")

	out.Reset()
	r.state(st)
	assert.Empty(t, out.String())

	st.IsTyping = true
	st.Support.Mode = chat.ModeHumanSupport
	r.state(st)
	assert.Contains(t, out.String(), "support mode: human_support")
	assert.Contains(t, out.String(), "agent is typing")

	out.Reset()
	r.error(events.ErrorPayload{Message: "offline"})
	assert.Equal(t, "! offline\n", out.String())
}

func TestGivenUp(t *testing.T) {
	assert.True(t, givenUp(events.ErrorPayload{Code: "connection_lost"}))
	assert.True(t, givenUp(events.ErrorPayload{Code: "connect_timeout"}))
	assert.False(t, givenUp(events.ErrorPayload{Code: "send_failed"}))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "(none)", maskToken(""))
	assert.Equal(t, "****", maskToken("short"))
	assert.Equal(t, "abcd...wxyz", maskToken("abcdefghijklmnopqrstuvwxyz"))
}
