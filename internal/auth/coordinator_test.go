package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/chatsync/internal/app/apptest"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/channel/channeltest"
	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/conn"
	"github.com/ehrlich-b/chatsync/internal/l10n"
	"github.com/ehrlich-b/chatsync/internal/sessionstore"
)

var keys = sessionstore.KeysFor("mirza", apptest.WebsiteID)

type harness struct {
	env      *apptest.Env
	dialer   *channeltest.Dialer
	conn     *conn.Manager
	auth     *Coordinator
	outcomes []Outcome
	logouts  int
}

func newHarness(t *testing.T, seed map[string]string, login LoginFunc) *harness {
	t.Helper()
	h := &harness{env: apptest.New(seed), dialer: &channeltest.Dialer{}}
	h.conn = conn.New(h.env.App, h.dialer.Dial)
	h.auth = New(h.env.App, h.conn, login)
	h.conn.OnConnect(h.auth.SilentAuth)
	h.conn.SetRouter(func(ev channel.Event) {
		switch e := ev.(type) {
		case channel.AuthResult:
			h.auth.HandleResult(e)
		case channel.LogoutResult:
			h.auth.HandleLogoutResult(e)
		}
	})
	h.auth.OnAuthenticated(func(o Outcome) { h.outcomes = append(h.outcomes, o) })
	h.auth.OnLoggedOut(func() { h.logouts++ })
	return h
}

// online connects and clears what the connect emitted.
func (h *harness) online() *channeltest.Transport {
	h.conn.Connect()
	t := h.dialer.Last()
	t.Open()
	t.Reset()
	return t
}

func seeded() map[string]string {
	return map[string]string{keys.Token: "abc1234567", keys.UserID: "u1"}
}

var creds = chat.Credentials{Phone: "09120000000", Password: "secret"}

func failingLogin(err error) LoginFunc {
	return func(context.Context, chat.Credentials) (Result, error) { return Result{}, err }
}

func TestRestoredSessionAuthenticatesSilentlyOnConnect(t *testing.T) {
	h := newHarness(t, seeded(), nil)

	s := h.auth.Session()
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "u1", s.UserID)
	assert.False(t, s.LoginRequired)

	h.conn.Connect()
	tr := h.dialer.Last()
	tr.Open()

	sent := tr.Find(channel.EvAuthenticate)
	require.Len(t, sent, 1)
	assert.Equal(t, channel.Authenticate{Token: "abc1234567", UserID: "u1", WebsiteID: "W"}, sent[0].Req)

	tr.Push(channel.AuthResult{Success: true})
	require.Len(t, h.outcomes, 1)
	assert.False(t, h.outcomes[0].Interactive)

	h.env.Sched.Advance(500 * time.Millisecond)
	hist := tr.Find(channel.EvGetChatHistory)
	require.Len(t, hist, 1)
	assert.Equal(t, channel.GetChatHistory{WebsiteID: "W", UserID: "u1"}, hist[0].Req)
}

func TestTombstoneWinsOverStoredCredentials(t *testing.T) {
	seed := seeded()
	seed[keys.LoggedOut] = "true"
	h := newHarness(t, seed, nil)

	s := h.auth.Session()
	assert.False(t, s.IsAuthenticated)
	assert.Empty(t, s.Token)
	assert.True(t, s.LoginRequired)
	assert.True(t, s.IsLoggingIn)

	stored := h.env.Stored()
	assert.NotContains(t, stored, keys.Token)
	assert.NotContains(t, stored, keys.UserID)

	h.online()
	assert.Empty(t, h.dialer.Last().Find(channel.EvAuthenticate))
}

func TestLoginRequiresPhoneAndPassword(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.auth.Login(chat.Credentials{Phone: "0912"})
	h.auth.Signup(chat.Credentials{Password: "x"})

	assert.Empty(t, h.dialer.Transports)
	require.Len(t, h.env.Errors.List, 2)
	for _, err := range h.env.Errors.List {
		assert.Equal(t, chaterr.Validation, err.Kind)
		assert.Equal(t, string(l10n.ErrCredentialsMissing), err.Code)
	}
	assert.False(t, h.auth.Session().IsAuthenticating)
}

func TestHTTPLoginSuccessNeverSendsChannelLogin(t *testing.T) {
	calls := 0
	login := func(_ context.Context, c chat.Credentials) (Result, error) {
		calls++
		assert.Equal(t, creds, c)
		return Result{Token: "http-token-123", UserID: "42"}, nil
	}
	h := newHarness(t, nil, login)
	tr := h.online()

	h.auth.Login(creds)

	assert.Equal(t, 1, calls)
	assert.Empty(t, tr.Find(channel.EvLogin))
	s := h.auth.Session()
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "42", s.UserID)
	assert.Equal(t, "http-token-123", h.env.Stored()[keys.Token])
	require.Len(t, h.outcomes, 1)
	assert.True(t, h.outcomes[0].Interactive)

	h.env.Sched.Advance(time.Minute)
	assert.Empty(t, h.env.Errors.List)
	assert.Len(t, tr.Find(channel.EvGetChatHistory), 1)
	assert.Empty(t, tr.Find(channel.EvLogin))
}

func TestHTTPLoginFailureFallsBackToChannel(t *testing.T) {
	h := newHarness(t, nil, failingLogin(assert.AnError))
	tr := h.online()

	h.auth.Login(creds)

	sent := tr.Find(channel.EvLogin)
	require.Len(t, sent, 1)
	assert.Equal(t, channel.Login{Phone: creds.Phone, Password: creds.Password, WebsiteID: "W"}, sent[0].Req)
	assert.True(t, h.auth.Session().IsAuthenticating)

	tr.Push(channel.AuthResult{Success: true, Token: "sock-token-99", UserID: "u7"})
	assert.True(t, h.auth.Session().IsAuthenticated)

	h.env.Sched.Advance(time.Minute)
	assert.Empty(t, h.env.Errors.List)
}

func TestChannelFallbackGetsItsOwnResultWindow(t *testing.T) {
	var h *harness
	slow := func(context.Context, chat.Credentials) (Result, error) {
		// The endpoint hangs most of the result window before failing.
		h.env.Sched.Advance(9 * time.Second)
		return Result{}, context.DeadlineExceeded
	}
	h = newHarness(t, nil, slow)
	tr := h.online()

	h.auth.Login(creds)
	require.Len(t, tr.Find(channel.EvLogin), 1)

	h.env.Sched.Advance(5 * time.Second)
	assert.Empty(t, h.env.Errors.List)
	assert.True(t, h.auth.Session().IsAuthenticating)

	tr.Push(channel.AuthResult{Success: true, Token: "sock-token-99", UserID: "u7"})
	assert.True(t, h.auth.Session().IsAuthenticated)

	h.env.Sched.Advance(time.Minute)
	assert.Empty(t, h.env.Errors.List)
}

func TestChannelFallbackStillTimesOut(t *testing.T) {
	h := newHarness(t, nil, failingLogin(assert.AnError))
	h.online()

	h.auth.Login(creds)
	h.env.Sched.Advance(10 * time.Second)
	assert.Equal(t, []string{string(l10n.ErrResponseTimeout)}, h.env.Errors.Codes())
}

func TestLoginResultTimeout(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.online()

	h.auth.Login(creds)
	h.env.Sched.Advance(9 * time.Second)
	assert.Empty(t, h.env.Errors.List)

	h.env.Sched.Advance(time.Second)
	assert.Equal(t, []string{string(l10n.ErrResponseTimeout)}, h.env.Errors.Codes())
	assert.Equal(t, chat.AuthLoggedOut, h.auth.State())

	// A result for the timed-out attempt is not applied.
	h.dialer.Last().Push(channel.AuthResult{Success: true, Token: "late-token-1", UserID: "u1"})
	assert.False(t, h.auth.Session().IsAuthenticated)
}

func TestLoginWhileDisconnectedWaitsForConnect(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.auth.Login(creds)
	require.Len(t, h.dialer.Transports, 1)
	tr := h.dialer.Last()
	assert.Empty(t, tr.Emitted)

	tr.Open()
	assert.Len(t, tr.Find(channel.EvLogin), 1)

	h.env.Sched.Advance(5 * time.Second)
	assert.Empty(t, h.env.Errors.List)
}

func TestLoginConnectGuard(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.auth.Login(creds)
	h.env.Sched.Advance(5 * time.Second)
	assert.Equal(t, []string{string(l10n.ErrLoginConnect)}, h.env.Errors.Codes())
	assert.False(t, h.auth.Session().IsAuthenticating)

	// A connection that shows up late must not resume the failed login.
	h.dialer.Last().Open()
	assert.Empty(t, h.dialer.Last().Find(channel.EvLogin))
}

func TestNewAttemptSupersedesOld(t *testing.T) {
	h := newHarness(t, nil, nil)
	tr := h.online()

	h.auth.Login(creds)
	h.env.Sched.Advance(6 * time.Second)
	h.auth.Signup(creds)
	h.env.Sched.Advance(6 * time.Second)
	assert.Empty(t, h.env.Errors.List)
	assert.Equal(t, []string{channel.EvLogin, channel.EvSignup}, tr.Names())

	h.env.Sched.Advance(4 * time.Second)
	assert.Equal(t, []string{string(l10n.ErrResponseTimeout)}, h.env.Errors.Codes())
}

func TestFailedResultSurfacesServerMessage(t *testing.T) {
	h := newHarness(t, nil, nil)
	tr := h.online()

	h.auth.Login(creds)
	tr.Push(channel.AuthResult{Success: false, Error: "wrong password"})

	require.Len(t, h.env.Errors.List, 1)
	err := h.env.Errors.List[0]
	assert.Equal(t, chaterr.Auth, err.Kind)
	assert.Equal(t, "wrong password", err.Message)
	s := h.auth.Session()
	assert.False(t, s.IsAuthenticated)
	assert.False(t, s.IsAuthenticating)
	assert.True(t, s.LoginRequired)

	h.env.Sched.Advance(time.Minute)
	assert.Len(t, h.env.Errors.List, 1)
}

func TestFailedResultWithoutMessageUsesGenericText(t *testing.T) {
	h := newHarness(t, nil, nil)
	tr := h.online()

	h.auth.Signup(creds)
	tr.Push(channel.AuthResult{Success: false})

	require.Len(t, h.env.Errors.List, 1)
	assert.Equal(t, h.env.App.Text.T(l10n.ErrAuthFailed), h.env.Errors.List[0].Message)
}

func TestSignupGoesOverChannelOnly(t *testing.T) {
	login := func(context.Context, chat.Credentials) (Result, error) {
		t.Fatal("signup must not use the HTTP login")
		return Result{}, nil
	}
	h := newHarness(t, nil, login)
	tr := h.online()

	h.auth.Signup(chat.Credentials{Phone: "0912", Password: "pw", Email: "a@b.c"})
	sent := tr.Find(channel.EvSignup)
	require.Len(t, sent, 1)
	assert.Equal(t, "a@b.c", sent[0].Req.(channel.Signup).Email)

	tr.Push(channel.AuthResult{Success: true, Token: "new-user-token", UserID: "n1", IsNewUser: true})
	assert.True(t, h.auth.Session().IsNewlyRegistered)
	require.Len(t, h.outcomes, 1)
	assert.Equal(t, Outcome{IsNewUser: true, Interactive: true}, h.outcomes[0])

	assert.True(t, h.auth.ConsumeNewlyRegistered())
	assert.False(t, h.auth.ConsumeNewlyRegistered())
	assert.False(t, h.auth.Session().IsNewlyRegistered)
}

func TestSuccessClearsTombstone(t *testing.T) {
	h := newHarness(t, map[string]string{keys.LoggedOut: "true"}, nil)
	tr := h.online()

	h.auth.Login(creds)
	tr.Push(channel.AuthResult{Success: true, Token: "fresh-token-1", UserID: "u2"})

	stored := h.env.Stored()
	assert.NotContains(t, stored, keys.LoggedOut)
	assert.Equal(t, "fresh-token-1", stored[keys.Token])
	assert.Equal(t, "u2", stored[keys.UserID])
}

func TestLogoutOfflineConvergesImmediately(t *testing.T) {
	h := newHarness(t, seeded(), nil)

	h.auth.Logout()

	s := h.auth.Session()
	assert.False(t, s.IsAuthenticated)
	assert.Empty(t, s.Token)
	assert.Empty(t, s.UserID)
	assert.False(t, s.IsLoggingOut)
	stored := h.env.Stored()
	assert.Equal(t, "true", stored[keys.LoggedOut])
	assert.NotContains(t, stored, keys.Token)
	assert.NotContains(t, stored, keys.UserID)
	assert.Equal(t, 1, h.logouts)
	assert.Empty(t, h.env.Errors.List)
	assert.Zero(t, h.env.Sched.Active())
}

func TestLogoutOnlineWaitsForReplyOrTimer(t *testing.T) {
	h := newHarness(t, seeded(), nil)
	tr := h.online()

	h.auth.Logout()

	sent := tr.Find(channel.EvLogout)
	require.Len(t, sent, 1)
	assert.Equal(t, channel.Logout{Token: "abc1234567", UserID: "u1", WebsiteID: "W"}, sent[0].Req)
	s := h.auth.Session()
	assert.True(t, s.IsLoggingOut)
	assert.False(t, s.IsAuthenticated)
	assert.Equal(t, "true", h.env.Stored()[keys.LoggedOut])
	assert.Zero(t, h.logouts)

	h.env.Sched.Advance(3 * time.Second)
	assert.Equal(t, chat.AuthLoggedOut, h.auth.State())
	assert.Equal(t, 1, h.logouts)
	assert.Empty(t, h.env.Errors.List)
}

func TestLogoutReplyFinishesEvenWhenRefused(t *testing.T) {
	h := newHarness(t, seeded(), nil)
	tr := h.online()

	h.auth.Logout()
	tr.Push(channel.LogoutResult{Success: false})

	assert.Equal(t, chat.AuthLoggedOut, h.auth.State())
	assert.Equal(t, 1, h.logouts)
	assert.Empty(t, h.env.Errors.List)

	h.env.Sched.Advance(time.Minute)
	assert.Equal(t, 1, h.logouts)
}

func TestResultAfterLogoutIsIgnored(t *testing.T) {
	h := newHarness(t, seeded(), nil)
	tr := h.online()

	h.auth.Logout()
	tr.Push(channel.AuthResult{Success: true, Token: "abc1234567", UserID: "u1"})

	assert.False(t, h.auth.Session().IsAuthenticated)
	assert.NotContains(t, h.env.Stored(), keys.Token)
}

func TestLogoutCancelsPendingLogin(t *testing.T) {
	h := newHarness(t, nil, nil)
	tr := h.online()

	h.auth.Login(creds)
	h.auth.Logout()
	h.env.Sched.Advance(time.Minute)

	assert.Empty(t, h.env.Errors.List)
	assert.Equal(t, chat.AuthLoggedOut, h.auth.State())
	assert.Empty(t, tr.Find(channel.EvLogout))
}

func TestSwitchAuthMode(t *testing.T) {
	h := newHarness(t, nil, nil)
	assert.True(t, h.auth.Session().IsLoggingIn)
	h.auth.SwitchAuthMode()
	assert.False(t, h.auth.Session().IsLoggingIn)
	h.auth.SwitchAuthMode()
	assert.True(t, h.auth.Session().IsLoggingIn)
}

func TestResyncPicksUpExternalLogout(t *testing.T) {
	h := newHarness(t, seeded(), nil)
	h.env.Backend.Set(context.Background(), keys.LoggedOut, "true")

	h.auth.Resync()

	assert.False(t, h.auth.Session().IsAuthenticated)
	assert.Equal(t, channel.AnonymousUser, h.auth.UserID())
}

func TestResyncPicksUpExternalLogin(t *testing.T) {
	h := newHarness(t, nil, nil)
	tr := h.online()
	ctx := context.Background()
	h.env.Backend.Set(ctx, keys.Token, "other-token-1")
	h.env.Backend.Set(ctx, keys.UserID, "u9")

	h.auth.Resync()

	assert.Equal(t, "u9", h.auth.UserID())
	assert.Len(t, tr.Find(channel.EvAuthenticate), 1)
}
