// Package support owns the three-state support mode: who is answering the user,
// the assistant or a human agent, and whether the agent closed the chat.
package support

import (
	"github.com/rs/zerolog"

	"github.com/ehrlich-b/chatsync/internal/app"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/l10n"
)

// Channel is the part of the connection manager support needs.
type Channel interface {
	Connected() bool
	Emit(req channel.Request) error
}

// Coordinator must only be used from the loop.
type Coordinator struct {
	app    *app.Context
	log    zerolog.Logger
	ch     Channel
	userID func() string
	notice func(text string)

	mode chat.SupportMode
}

// New loads the persisted mode, normalized. userID supplies the id for outbound
// requests and notice appends a system message to the conversation.
func New(ctx *app.Context, ch Channel, userID func() string, notice func(string)) *Coordinator {
	c := &Coordinator{
		app:    ctx,
		log:    ctx.Logger("support"),
		ch:     ch,
		userID: userID,
		notice: notice,
		mode:   ctx.Store.LoadSupportMode(),
	}
	c.log.Debug().Str("mode", string(c.mode)).Msg("loaded support mode")
	return c
}

// Mode is the mode as last adopted, resolved included.
func (c *Coordinator) Mode() chat.SupportMode { return c.mode }

// State returns the mode and the derived requested flag.
func (c *Coordinator) State() chat.SupportState {
	return chat.SupportState{Mode: c.mode, IsHumanSupportRequested: c.mode == chat.ModeHumanSupport}
}

// Request switches to human support locally first, then tells the server.
func (c *Coordinator) Request() {
	c.adopt(chat.ModeHumanSupport)
	c.say(l10n.NoticeSupportRequested)
	c.notify(channel.RequestHumanSupport{WebsiteID: c.app.Config.WebsiteID, UserID: c.userID()})
}

// Cancel returns to the assistant. The notice depends on the mode being left.
func (c *Coordinator) Cancel() {
	left := c.mode
	c.adopt(chat.ModeNormal)
	if left == chat.ModeResolved {
		c.say(l10n.NoticeBackToAI)
	} else {
		c.say(l10n.NoticeSupportDisabled)
	}
	c.notify(channel.CancelHumanSupport{WebsiteID: c.app.Config.WebsiteID, UserID: c.userID()})
}

// HandleUpdate adopts a pushed mode verbatim, resolved included.
func (c *Coordinator) HandleUpdate(u channel.SupportModeUpdate) {
	mode, ok := chat.ParseSupportMode(u.Mode)
	if !ok {
		c.log.Warn().Str("mode", u.Mode).Msg("ignoring unknown support mode")
		return
	}
	c.log.Info().Str("mode", u.Mode).Str("chat_id", u.ChatID).Bool("silent", u.Silent).Msg("support mode pushed")
	c.adopt(mode)
	if u.Silent {
		return
	}
	switch mode {
	case chat.ModeHumanSupport:
		c.say(l10n.NoticeSupportAccepted)
	case chat.ModeNormal:
		c.say(l10n.NoticeBackToAI)
	case chat.ModeResolved:
		c.say(l10n.NoticeSupportResolved)
	}
}

// HandleRequested is the server acknowledging a request.
func (c *Coordinator) HandleRequested(ev channel.HumanSupportRequested) {
	c.log.Debug().RawJSON("data", rawOrNull(ev.Data)).Msg("human support requested")
	if c.mode != chat.ModeHumanSupport {
		c.adopt(chat.ModeHumanSupport)
	}
}

// HandleChatInfo resyncs from the mode carried in a history envelope. Like every
// read of a stored mode, resolved becomes normal.
func (c *Coordinator) HandleChatInfo(info *channel.ChatInfo) {
	if info == nil || info.SupportMode == "" {
		return
	}
	mode, ok := chat.ParseSupportMode(info.SupportMode)
	if !ok {
		c.log.Warn().Str("mode", info.SupportMode).Msg("ignoring unknown support mode in history")
		return
	}
	c.adopt(mode.Effective())
}

// Resync rereads the persisted mode.
func (c *Coordinator) Resync() {
	mode := c.app.Store.LoadSupportMode()
	if mode == c.mode {
		return
	}
	c.log.Info().Str("mode", string(mode)).Msg("support mode changed on disk")
	c.mode = mode
	c.app.Changed()
}

func (c *Coordinator) adopt(mode chat.SupportMode) {
	c.mode = mode
	c.app.Store.SaveSupportMode(mode)
	c.app.Changed()
}

func (c *Coordinator) say(key l10n.Key) {
	if c.notice != nil {
		c.notice(c.app.Text.T(key))
	}
}

// notify is best effort: the local transition already happened.
func (c *Coordinator) notify(req channel.Request) {
	var err error
	if !c.ch.Connected() {
		err = channel.ErrNotConnected
	} else {
		err = c.ch.Emit(req)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("event", req.Event()).Msg("could not notify server")
		c.app.Fail(chaterr.Connectivity, l10n.ErrNotConnected, err)
	}
}

func rawOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
