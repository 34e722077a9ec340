// Package delivery tracks sent messages until the server shows signs of life.
package delivery

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ehrlich-b/chatsync/internal/app"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/l10n"
	"github.com/ehrlich-b/chatsync/internal/loop"
)

// Channel is the part of the connection manager delivery needs.
type Channel interface {
	Connected() bool
	EmitWithAck(req channel.Request, ack func(channel.Ack)) error
}

// Tracker holds one timer per unacknowledged message id. Delivery is at most once;
// nothing is retried.
type Tracker struct {
	app    *app.Context
	log    zerolog.Logger
	ch     Channel
	timers map[string]loop.Timer
}

// New returns a tracker with nothing pending.
func New(ctx *app.Context, ch Channel) *Tracker {
	return &Tracker{
		app:    ctx,
		log:    ctx.Logger("delivery"),
		ch:     ch,
		timers: make(map[string]loop.Timer),
	}
}

// Send emits msg and starts its timer. Errors are already reported when returned.
func (t *Tracker) Send(msg chat.Message) error {
	if !t.ch.Connected() {
		return t.app.Fail(chaterr.Connectivity, l10n.ErrNotConnected, nil)
	}
	id := msg.ID
	t.arm(id)
	err := t.ch.EmitWithAck(channel.SendMessage{Message: msg}, func(a channel.Ack) {
		t.acked(id, a)
	})
	if err != nil {
		t.clear(id)
		t.log.Error().Err(err).Str("id", id).Msg("emit message")
		return t.app.Fail(chaterr.Connectivity, l10n.ErrNotConnected, err)
	}
	t.log.Debug().Str("id", id).Msg("message sent")
	return nil
}

func (t *Tracker) arm(id string) {
	t.clear(id)
	t.timers[id] = t.app.Sched.AfterFunc(t.app.Config.Timeouts.Delivery, func() {
		if _, ok := t.timers[id]; !ok {
			return
		}
		delete(t.timers, id)
		t.log.Warn().Str("id", id).Msg("no response for message")
		t.app.Fail(chaterr.DeliveryTimeout, l10n.ErrNoResponse, nil)
		t.app.Changed()
	})
}

func (t *Tracker) acked(id string, a channel.Ack) {
	t.clear(id)
	if msg := a.Err(); msg != "" {
		t.log.Warn().Str("id", id).Str("error", msg).Msg("server rejected message")
		t.app.Fail(chaterr.Server, l10n.ErrSendFailed, errors.New(msg))
	}
	t.app.Changed()
}

// Alive clears every outstanding timer. Any inbound message counts.
func (t *Tracker) Alive() {
	if len(t.timers) == 0 {
		return
	}
	t.log.Debug().Int("pending", len(t.timers)).Msg("inbound message, clearing delivery timers")
	t.Dispose()
	t.app.Changed()
}

// Pending counts messages still waiting for an ack.
func (t *Tracker) Pending() int { return len(t.timers) }

// Dispose stops every pending timer without reporting.
func (t *Tracker) Dispose() {
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *Tracker) clear(id string) {
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
}
