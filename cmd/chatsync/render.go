package main

import (
	"fmt"
	"io"
	"time"

	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/events"
	"github.com/ehrlich-b/chatsync/internal/widget"
)

// renderer prints what changed between successive states.
type renderer struct {
	out io.Writer

	seen   map[string]bool
	status string
	mode   chat.SupportMode
	authed bool
	userID string
	typing bool
	last   widget.State
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, seen: make(map[string]bool)}
}

func (r *renderer) state(st widget.State) {
	if st.Connection.StatusName != r.status {
		r.status = st.Connection.StatusName
		if st.Connection.ReconnectAttempts > 0 {
			r.notef("connection: %s (attempt %d)", r.status, st.Connection.ReconnectAttempts)
		} else {
			r.notef("connection: %s", r.status)
		}
	}
	if st.Session.IsAuthenticated != r.authed || st.Session.UserID != r.userID {
		r.authed, r.userID = st.Session.IsAuthenticated, st.Session.UserID
		if r.authed {
			r.notef("signed in as %s", r.userID)
		} else {
			r.notef("signed out")
		}
	}
	if st.Support.Mode != r.mode {
		r.mode = st.Support.Mode
		r.notef("support mode: %s", r.mode)
	}
	for _, m := range st.Messages {
		if r.seen[m.ID] {
			continue
		}
		r.seen[m.ID] = true
		r.message(m)
	}
	if st.IsTyping && !r.typing {
		r.notef("agent is typing...")
	}
	r.typing = st.IsTyping
	r.last = st
}

func (r *renderer) message(m chat.Message) {
	stamp := m.CreatedAt
	if t, err := time.Parse(time.RFC3339Nano, m.CreatedAt); err == nil {
		stamp = t.Local().Format("15:04")
	}
	switch m.Sender {
	case chat.SenderUser:
		fmt.Fprintf(r.out, "[%s] you: %s\n", stamp, m.Content)
	case chat.SenderAdmin:
		fmt.Fprintf(r.out, "[%s] agent <%s>: %s\n", stamp, shortID(m.ID), m.Content)
	default:
		fmt.Fprintf(r.out, "[%s] -- %s\n", stamp, m.Content)
	}
}

func (r *renderer) error(p events.ErrorPayload) {
	fmt.Fprintf(r.out, "! %s\n", p.Message)
}

func (r *renderer) notef(format string, args ...any) {
	fmt.Fprintf(r.out, "* "+format+"\n", args...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
