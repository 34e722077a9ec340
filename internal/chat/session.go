package chat

// AuthState is the single authoritative state of the authentication flow.
type AuthState int

const (
	AuthLoggedOut AuthState = iota
	AuthAuthenticating
	AuthAuthenticated
	AuthLoggingOut
)

func (s AuthState) String() string {
	switch s {
	case AuthLoggedOut:
		return "logged_out"
	case AuthAuthenticating:
		return "authenticating"
	case AuthAuthenticated:
		return "authenticated"
	case AuthLoggingOut:
		return "logging_out"
	}
	return "unknown"
}

// FormMode is which auth form the host should show while logged out.
type FormMode int

const (
	FormLogin FormMode = iota
	FormSignup
)

// Session is the read projection handed to the host. Empty Token/UserID mean null.
type Session struct {
	Token             string `json:"token,omitempty"`
	UserID            string `json:"userId,omitempty"`
	IsAuthenticated   bool   `json:"isAuthenticated"`
	IsAuthenticating  bool   `json:"isAuthenticating"`
	IsLoggingIn       bool   `json:"isLoggingIn"`
	IsLoggingOut      bool   `json:"isLoggingOut"`
	IsNewlyRegistered bool   `json:"isNewlyRegistered"`
	LoginRequired     bool   `json:"loginRequired"`
}

// Project derives the Session flags from the auth state machine.
func Project(state AuthState, form FormMode, token, userID string, newlyRegistered bool) Session {
	authed := state == AuthAuthenticated && token != "" && userID != ""
	s := Session{
		IsAuthenticated:   authed,
		IsAuthenticating:  state == AuthAuthenticating,
		IsLoggingOut:      state == AuthLoggingOut,
		IsNewlyRegistered: newlyRegistered,
		LoginRequired:     !authed,
		IsLoggingIn:       !authed && form == FormLogin,
	}
	if authed {
		s.Token = token
		s.UserID = userID
	}
	return s
}
