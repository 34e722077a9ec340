// Package auth drives login, signup and logout over the duplex channel and the
// HTTP fallback, and owns the in-memory session.
package auth

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ehrlich-b/chatsync/internal/app"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/l10n"
	"github.com/ehrlich-b/chatsync/internal/loop"
)

// Channel is the part of the connection manager auth needs.
type Channel interface {
	Connected() bool
	Connect()
	OnceConnected(fn func()) (cancel func())
	Emit(req channel.Request) error
}

// Outcome describes a successful authentication.
type Outcome struct {
	IsNewUser bool
	// Interactive is false for the silent re-authentication done on connect.
	Interactive bool
}

type opKind int

const (
	opLogin opKind = iota
	opSignup
)

func (k opKind) String() string {
	if k == opSignup {
		return "signup"
	}
	return "login"
}

// Coordinator is the single owner of the auth state machine. Every method must be
// called on the loop.
type Coordinator struct {
	app   *app.Context
	log   zerolog.Logger
	ch    Channel
	login LoginFunc

	state           chat.AuthState
	form            chat.FormMode
	token           string
	userID          string
	newlyRegistered bool

	// op identifies the current login/signup attempt. Bumping it makes every
	// callback captured for an older attempt a no-op.
	op          int
	interactive bool
	guard       loop.Timer
	result      loop.Timer
	cancelOnce  func()
	cancelHTTP  context.CancelFunc

	logoutTimer loop.Timer
	history     loop.Timer

	onAuthenticated []func(Outcome)
	onLoggedOut     []func()
}

// New restores the session from the store. login may be nil, in which case login
// goes straight to the channel.
func New(ctx *app.Context, ch Channel, login LoginFunc) *Coordinator {
	c := &Coordinator{
		app:   ctx,
		log:   ctx.Logger("auth"),
		ch:    ch,
		login: login,
	}
	if r, ok := ctx.Store.LoadSession(); ok {
		c.token = r.Token
		c.userID = r.UserID
		c.state = chat.AuthAuthenticated
		c.log.Info().Str("user_id", r.UserID).Msg("restored session")
	}
	return c
}

// OnAuthenticated runs after every successful authentication, silent or not.
func (c *Coordinator) OnAuthenticated(fn func(Outcome)) {
	c.onAuthenticated = append(c.onAuthenticated, fn)
}

// OnLoggedOut runs once logout has converged locally.
func (c *Coordinator) OnLoggedOut(fn func()) { c.onLoggedOut = append(c.onLoggedOut, fn) }

// State is the authoritative auth state.
func (c *Coordinator) State() chat.AuthState { return c.state }

// Session returns the read projection of the auth state.
func (c *Coordinator) Session() chat.Session {
	return chat.Project(c.state, c.form, c.token, c.userID, c.newlyRegistered)
}

// Authenticated reports whether a usable session is held in memory.
func (c *Coordinator) Authenticated() bool {
	return c.state == chat.AuthAuthenticated && c.token != "" && c.userID != ""
}

// UserID is the id to put on outbound requests, "anonymous" when logged out.
func (c *Coordinator) UserID() string {
	if c.Authenticated() {
		return c.userID
	}
	return channel.AnonymousUser
}

// SilentAuth re-sends the held credentials. It is hooked to every connect.
func (c *Coordinator) SilentAuth() {
	if !c.Authenticated() {
		return
	}
	c.log.Info().Str("user_id", c.userID).Msg("silent authenticate")
	err := c.ch.Emit(channel.Authenticate{Token: c.token, UserID: c.userID, WebsiteID: c.app.Config.WebsiteID})
	if err != nil {
		c.log.Warn().Err(err).Msg("silent authenticate")
	}
}

// Login and Signup start an interactive attempt, superseding any in flight.
func (c *Coordinator) Login(creds chat.Credentials)  { c.start(opLogin, creds) }
func (c *Coordinator) Signup(creds chat.Credentials) { c.start(opSignup, creds) }

// SwitchAuthMode toggles between the login and the signup form.
func (c *Coordinator) SwitchAuthMode() {
	if c.form == chat.FormLogin {
		c.form = chat.FormSignup
	} else {
		c.form = chat.FormLogin
	}
	c.app.Changed()
}

// ConsumeNewlyRegistered returns the flag and clears it; the first message after
// signup carries it.
func (c *Coordinator) ConsumeNewlyRegistered() bool {
	v := c.newlyRegistered
	if v {
		c.newlyRegistered = false
		c.app.Changed()
	}
	return v
}

func (c *Coordinator) start(kind opKind, creds chat.Credentials) {
	if !creds.Complete() {
		if c.state == chat.AuthAuthenticating {
			c.abort()
			c.state = chat.AuthLoggedOut
			c.app.Changed()
		}
		c.app.Fail(chaterr.Validation, l10n.ErrCredentialsMissing, nil)
		return
	}
	if c.state == chat.AuthLoggingOut {
		c.finishLogout()
	}
	c.abort()
	c.op++
	op := c.op
	c.interactive = true
	c.state = chat.AuthAuthenticating
	c.log.Info().Stringer("op", kind).Str("phone", creds.Phone).Msg("starting")
	c.app.Changed()

	c.whenConnected(op, func() {
		switch kind {
		case opLogin:
			c.performLogin(op, creds)
		case opSignup:
			c.performSignup(op, creds)
		}
	})
}

// whenConnected runs fn now if connected. Otherwise it connects and defers fn to
// the next connect, giving up after the login-connect guard.
func (c *Coordinator) whenConnected(op int, fn func()) {
	if c.ch.Connected() {
		fn()
		return
	}
	c.ch.Connect()
	c.cancelOnce = c.ch.OnceConnected(func() {
		c.cancelOnce = nil
		stop(&c.guard)
		if op != c.op {
			return
		}
		fn()
	})
	c.guard = c.app.Sched.AfterFunc(c.app.Config.Timeouts.LoginConnect, func() {
		c.guard = nil
		if op != c.op {
			return
		}
		c.log.Warn().Msg("channel did not connect for auth")
		c.fail(chaterr.Connectivity, l10n.ErrLoginConnect)
	})
}

func (c *Coordinator) armResultTimer(op int) {
	stop(&c.result)
	c.result = c.app.Sched.AfterFunc(c.app.Config.Timeouts.AuthResult, func() {
		c.result = nil
		if op != c.op {
			return
		}
		c.log.Warn().Msg("no authentication result")
		c.fail(chaterr.Connectivity, l10n.ErrResponseTimeout)
	})
}

// performLogin tries HTTP first; the channel login is only sent when it fails.
func (c *Coordinator) performLogin(op int, creds chat.Credentials) {
	c.armResultTimer(op)
	if c.login == nil {
		c.emitLogin(creds)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.app.Config.Timeouts.HTTP)
	c.cancelHTTP = cancel
	login := c.login
	c.app.Sched.Go(func() {
		res, err := login(ctx, creds)
		c.app.Sched.Post(func() {
			cancel()
			if op != c.op || c.state != chat.AuthAuthenticating {
				return
			}
			c.cancelHTTP = nil
			c.log.Debug().Str("http", statusOf(err)).Msg("http login finished")
			if err != nil {
				c.log.Warn().Err(err).Msg("http login failed, using channel")
				// The channel attempt gets a full result window of its own.
				c.armResultTimer(op)
				c.emitLogin(creds)
				return
			}
			c.succeed(res.Token, res.UserID, false)
		})
	})
}

func (c *Coordinator) emitLogin(creds chat.Credentials) {
	err := c.ch.Emit(channel.Login{Phone: creds.Phone, Password: creds.Password, WebsiteID: c.app.Config.WebsiteID})
	if err != nil {
		c.log.Error().Err(err).Msg("emit login")
		c.fail(chaterr.Connectivity, l10n.ErrNotConnected)
	}
}

func (c *Coordinator) performSignup(op int, creds chat.Credentials) {
	c.armResultTimer(op)
	err := c.ch.Emit(channel.Signup{
		Phone:     creds.Phone,
		Password:  creds.Password,
		Email:     creds.Email,
		WebsiteID: c.app.Config.WebsiteID,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("emit signup")
		c.fail(chaterr.Connectivity, l10n.ErrNotConnected)
	}
}

// HandleResult processes authentication_result, for an interactive attempt or for
// the silent authenticate sent on connect.
func (c *Coordinator) HandleResult(r channel.AuthResult) {
	if c.state == chat.AuthLoggedOut || c.state == chat.AuthLoggingOut {
		c.log.Info().Bool("success", r.Success).Msg("ignoring authentication result while logged out")
		return
	}
	if r.Success {
		token, userID := r.Token, r.UserID
		if token == "" {
			token = c.token
		}
		if userID == "" {
			userID = c.userID
		}
		if token == "" || userID == "" {
			c.log.Error().Msg("authentication result without credentials")
			c.fail(chaterr.Auth, l10n.ErrAuthFailed)
			return
		}
		c.succeed(token, userID, r.IsNewUser)
		return
	}

	c.log.Warn().Str("error", r.Error).Msg("authentication failed")
	c.abort()
	c.reset()
	if r.Error != "" {
		c.app.Report(chaterr.Auth, string(l10n.ErrAuthFailed), r.Error)
	} else {
		c.app.Fail(chaterr.Auth, l10n.ErrAuthFailed, nil)
	}
	c.app.Changed()
}

func (c *Coordinator) succeed(token, userID string, isNew bool) {
	outcome := Outcome{IsNewUser: isNew, Interactive: c.interactive}
	c.abort()
	c.token = token
	c.userID = userID
	c.state = chat.AuthAuthenticated
	c.newlyRegistered = isNew
	c.app.Store.SaveCredentials(token, userID)
	c.app.Store.ClearLoggedOut()
	c.log.Info().Str("user_id", userID).Bool("new_user", isNew).Msg("authenticated")

	stop(&c.history)
	c.history = c.app.Sched.AfterFunc(c.app.Config.Timeouts.HistoryDelay, func() {
		c.history = nil
		c.requestHistory()
	})
	for _, fn := range c.onAuthenticated {
		fn(outcome)
	}
	c.app.Changed()
}

func (c *Coordinator) requestHistory() {
	if !c.Authenticated() || !c.ch.Connected() {
		return
	}
	if err := c.ch.Emit(channel.GetChatHistory{WebsiteID: c.app.Config.WebsiteID, UserID: c.userID}); err != nil {
		c.log.Warn().Err(err).Msg("request history")
	}
}

// fail ends the current attempt with a localized error.
func (c *Coordinator) fail(kind chaterr.Kind, key l10n.Key) {
	c.abort()
	c.reset()
	c.app.Fail(kind, key, nil)
	c.app.Changed()
}

// Logout never fails for the caller. Storage is cleared and the tombstone set
// before the server is told; the reply, or the logout timer, only finishes it.
func (c *Coordinator) Logout() {
	c.abort()
	token, userID := c.token, c.userID
	wasAuthed := c.Authenticated()

	c.app.Store.SetLoggedOut()
	c.app.Store.ClearCredentials()
	c.token, c.userID = "", ""
	c.newlyRegistered = false
	stop(&c.history)

	if !wasAuthed || !c.ch.Connected() {
		c.log.Info().Bool("authenticated", wasAuthed).Msg("logging out locally")
		c.finishLogout()
		return
	}

	c.state = chat.AuthLoggingOut
	c.app.Changed()
	if err := c.ch.Emit(channel.Logout{Token: token, UserID: userID, WebsiteID: c.app.Config.WebsiteID}); err != nil {
		c.log.Warn().Err(err).Msg("emit logout")
		c.finishLogout()
		return
	}
	stop(&c.logoutTimer)
	c.logoutTimer = c.app.Sched.AfterFunc(c.app.Config.Timeouts.Logout, func() {
		c.logoutTimer = nil
		if c.state != chat.AuthLoggingOut {
			return
		}
		c.log.Warn().Msg("no logout reply, finishing locally")
		c.finishLogout()
	})
}

// HandleLogoutResult finishes a pending logout. A reply with success false is only
// logged.
func (c *Coordinator) HandleLogoutResult(r channel.LogoutResult) {
	if !r.Success {
		c.log.Warn().Msg("server refused logout")
	}
	if c.state != chat.AuthLoggingOut {
		return
	}
	c.finishLogout()
}

func (c *Coordinator) finishLogout() {
	stop(&c.logoutTimer)
	c.reset()
	c.form = chat.FormLogin
	c.app.Store.SetLoggedOut()
	c.log.Info().Msg("logged out")
	for _, fn := range c.onLoggedOut {
		fn()
	}
	c.app.Changed()
}

// Resync reloads the session from storage, as after another process changed it.
func (c *Coordinator) Resync() {
	if c.state == chat.AuthAuthenticating || c.state == chat.AuthLoggingOut {
		return
	}
	r, ok := c.app.Store.LoadSession()
	switch {
	case ok && (r.Token != c.token || r.UserID != c.userID):
		c.token, c.userID = r.Token, r.UserID
		c.state = chat.AuthAuthenticated
		c.log.Info().Str("user_id", r.UserID).Msg("session changed on disk")
		c.SilentAuth()
	case !ok && c.state == chat.AuthAuthenticated:
		c.log.Info().Msg("session removed on disk")
		c.reset()
	default:
		return
	}
	c.app.Changed()
}

// Dispose stops every timer and drops in-flight work.
func (c *Coordinator) Dispose() {
	c.abort()
	stop(&c.logoutTimer)
	stop(&c.history)
}

// abort cancels the in-flight attempt, if any.
func (c *Coordinator) abort() {
	c.op++
	c.interactive = false
	stop(&c.guard)
	stop(&c.result)
	if c.cancelOnce != nil {
		c.cancelOnce()
		c.cancelOnce = nil
	}
	if c.cancelHTTP != nil {
		c.cancelHTTP()
		c.cancelHTTP = nil
	}
}

func (c *Coordinator) reset() {
	c.state = chat.AuthLoggedOut
	c.token, c.userID = "", ""
	c.newlyRegistered = false
}

func stop(t *loop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
