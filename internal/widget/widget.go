// Package widget composes the session components behind one facade. Every public
// method posts onto the loop, which is the only goroutine that touches state.
package widget

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ehrlich-b/chatsync/internal/app"
	"github.com/ehrlich-b/chatsync/internal/auth"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/conn"
	"github.com/ehrlich-b/chatsync/internal/conversation"
	"github.com/ehrlich-b/chatsync/internal/delivery"
	"github.com/ehrlich-b/chatsync/internal/l10n"
	"github.com/ehrlich-b/chatsync/internal/support"
)

// Connection controls the duplex channel.
type Connection interface {
	Connect()
	Disconnect()
	Reconnect()
	ReconnectAfter(d time.Duration)
}

// Authenticator drives the session.
type Authenticator interface {
	Login(creds chat.Credentials)
	Signup(creds chat.Credentials)
	Logout()
	SwitchAuthMode()
}

// SupportDesk switches between the assistant and a human agent.
type SupportDesk interface {
	RequestHumanSupport()
	CancelHumanSupport()
}

// Messenger sends user input.
type Messenger interface {
	SendMessage(text string)
	RateMessage(id string, rating chat.Rating)
	SetTyping(typing bool)
}

// State is the read projection handed to the host.
type State struct {
	Session           chat.Session      `json:"session"`
	Connection        conn.State        `json:"connection"`
	Support           chat.SupportState `json:"support"`
	Messages          []chat.Message    `json:"messages"`
	IsTyping          bool              `json:"isTyping"`
	PendingDeliveries int               `json:"pendingDeliveries"`
	StorageDegraded   bool              `json:"storageDegraded"`
}

// Sink receives the projection after every change. Errors travel separately,
// through the app context's reporter.
type Sink interface {
	Publish(State)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(State)

func (f SinkFunc) Publish(s State) { f(s) }

// Widget owns one chat session. It is safe for use from any goroutine.
type Widget struct {
	app  *app.Context
	log  zerolog.Logger
	sink Sink

	conn     *conn.Manager
	auth     *auth.Coordinator
	support  *support.Coordinator
	delivery *delivery.Tracker
	convo    *conversation.Conversation

	typing *rate.Sometimes
	closed bool
}

var (
	_ Connection    = (*Widget)(nil)
	_ Authenticator = (*Widget)(nil)
	_ SupportDesk   = (*Widget)(nil)
	_ Messenger     = (*Widget)(nil)
)

// New wires the components. login may be nil to skip the HTTP fallback and sink
// may be nil.
func New(ctx *app.Context, dial channel.Dialer, login auth.LoginFunc, sink Sink) *Widget {
	w := &Widget{
		app:    ctx,
		log:    ctx.Logger("widget"),
		sink:   sink,
		typing: &rate.Sometimes{Interval: time.Second},
	}
	w.conn = conn.New(ctx, dial)
	w.auth = auth.New(ctx, w.conn, login)
	w.convo = conversation.New(ctx)
	w.support = support.New(ctx, w.conn, w.auth.UserID, w.notice)
	w.delivery = delivery.New(ctx, w.conn)

	w.conn.OnConnect(w.auth.SilentAuth)
	w.conn.OnDisconnect(func(string) { w.convo.SetTyping(false) })
	w.conn.SetRouter(w.route)
	w.auth.OnAuthenticated(w.welcome)
	ctx.OnChange(w.publish)
	return w
}

func (w *Widget) post(fn func()) {
	w.app.Sched.Post(func() {
		if w.closed {
			return
		}
		fn()
	})
}

// Start opens the channel.
func (w *Widget) Start() {
	w.post(func() {
		w.log.Info().Str("website_id", w.app.Config.WebsiteID).Msg("starting")
		w.conn.Connect()
		w.app.Changed()
	})
}

// Close disposes everything. Nothing fires afterwards.
func (w *Widget) Close() {
	w.post(func() {
		w.log.Info().Msg("closing")
		w.conn.Disconnect()
		w.auth.Dispose()
		w.delivery.Dispose()
		w.closed = true
	})
}

// Connect opens the channel if it is not already open.
func (w *Widget) Connect() {
	w.post(func() {
		w.conn.Connect()
		w.app.Changed()
	})
}

// Disconnect closes the channel and drops pending delivery timers.
func (w *Widget) Disconnect() {
	w.post(func() {
		w.conn.Disconnect()
		w.delivery.Dispose()
		w.convo.SetTyping(false)
		w.app.Changed()
	})
}

// Reconnect drops the current transport and dials a fresh one.
func (w *Widget) Reconnect() {
	w.post(func() {
		w.conn.Reconnect()
		w.app.Changed()
	})
}

// ReconnectAfter reconnects after d unless the channel connects first.
func (w *Widget) ReconnectAfter(d time.Duration) {
	w.post(func() { w.conn.ReconnectAfter(d) })
}

func (w *Widget) Login(creds chat.Credentials)  { w.post(func() { w.auth.Login(creds) }) }
func (w *Widget) Signup(creds chat.Credentials) { w.post(func() { w.auth.Signup(creds) }) }
func (w *Widget) Logout()                       { w.post(w.auth.Logout) }
func (w *Widget) SwitchAuthMode()               { w.post(w.auth.SwitchAuthMode) }

func (w *Widget) RequestHumanSupport() { w.post(w.support.Request) }
func (w *Widget) CancelHumanSupport()  { w.post(w.support.Cancel) }

// SendMessage trims text and sends it. Nothing is appended when the channel is
// down.
func (w *Widget) SendMessage(text string) {
	w.post(func() { w.sendMessage(text) })
}

func (w *Widget) sendMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !w.conn.Connected() {
		w.app.Fail(chaterr.Connectivity, l10n.ErrNotConnected, nil)
		return
	}
	msg := chat.Message{
		ID:        uuid.NewString(),
		Content:   text,
		Sender:    chat.SenderUser,
		CreatedAt: chat.Timestamp(w.app.Sched.Now()),
	}
	if w.auth.ConsumeNewlyRegistered() {
		first := true
		msg.IsFirstMessageAfterRegistration = &first
	}
	w.convo.Append(msg)
	w.emitTyping(false)
	if err := w.delivery.Send(msg); err != nil {
		return
	}
	w.convo.SetTyping(true)
}

// RateMessage applies the rating locally and tells the server.
func (w *Widget) RateMessage(id string, rating chat.Rating) {
	w.post(func() {
		w.convo.ApplyRating(id, rating)
		if !w.conn.Connected() {
			w.app.Fail(chaterr.Connectivity, l10n.ErrNotConnected, nil)
			return
		}
		err := w.conn.Emit(channel.RateMessage{
			MessageID: id,
			Rating:    rating,
			WebsiteID: w.app.Config.WebsiteID,
			UserID:    w.auth.UserID(),
		})
		if err != nil {
			w.log.Warn().Err(err).Msg("emit rating")
		}
	})
}

// SetTyping reports the user's typing. true is sent at most once a second; false
// always goes out.
func (w *Widget) SetTyping(typing bool) {
	w.post(func() {
		if !typing {
			w.emitTyping(false)
			return
		}
		w.typing.Do(func() { w.emitTyping(true) })
	})
}

func (w *Widget) emitTyping(typing bool) {
	if !w.conn.Connected() {
		return
	}
	err := w.conn.Emit(channel.Typing{IsTyping: typing, WebsiteID: w.app.Config.WebsiteID, UserID: w.auth.UserID()})
	if err != nil {
		w.log.Debug().Err(err).Msg("emit typing")
	}
}

// Resync rereads persisted state, as after another process rewrote it.
func (w *Widget) Resync() {
	w.post(func() {
		w.auth.Resync()
		w.support.Resync()
	})
}

// Snapshot returns the current projection.
func (w *Widget) Snapshot(ctx context.Context) (State, error) {
	out := make(chan State, 1)
	w.app.Sched.Post(func() { out <- w.snapshot() })
	select {
	case s := <-out:
		return s, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (w *Widget) snapshot() State {
	return State{
		Session:           w.auth.Session(),
		Connection:        w.conn.State(),
		Support:           w.support.State(),
		Messages:          w.convo.Messages(),
		IsTyping:          w.convo.Typing(),
		PendingDeliveries: w.delivery.Pending(),
		StorageDegraded:   w.app.Store.Degraded(),
	}
}

func (w *Widget) publish() {
	if w.sink == nil || w.closed {
		return
	}
	w.sink.Publish(w.snapshot())
}

// route hands each domain event to the one component that owns it.
func (w *Widget) route(ev channel.Event) {
	switch e := ev.(type) {
	case channel.MessageReceived:
		w.delivery.Alive()
		w.convo.HandleIncoming(e.Message)
	case channel.History:
		w.support.HandleChatInfo(e.ChatInfo)
		w.convo.HandleHistory(e)
	case channel.TypingChanged:
		w.convo.SetTyping(e.IsTyping)
	case channel.RateResponse:
		w.convo.HandleRateResponse(e)
	case channel.AuthResult:
		w.auth.HandleResult(e)
	case channel.LogoutResult:
		w.auth.HandleLogoutResult(e)
	case channel.HumanSupportRequested:
		w.support.HandleRequested(e)
	case channel.SupportModeUpdate:
		w.support.HandleUpdate(e)
	default:
		w.log.Debug().Str("event", ev.Name()).Msg("unrouted event")
	}
}

func (w *Widget) notice(text string) { w.convo.AddNotice(text) }

// welcome greets the user after an interactive login or signup.
func (w *Widget) welcome(o auth.Outcome) {
	if !o.Interactive {
		return
	}
	if o.IsNewUser {
		w.notice(w.app.Text.T(l10n.NoticeWelcomeNew))
	} else {
		w.notice(w.app.Text.T(l10n.NoticeWelcomeBack))
	}
}
