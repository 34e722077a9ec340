package channel

import "github.com/ehrlich-b/chatsync/internal/chat"

// Events the server emits.
const (
	EvMessage               = "message"
	EvChatHistory           = "chat_history"
	EvTyping                = "typing"
	EvRateMessageResponse   = "rate_message_response"
	EvAuthenticationResult  = "authentication_result"
	EvLogoutSuccess         = "logout_success"
	EvHumanSupportRequested = "human_support_requested"
	EvSupportModeUpdate     = "support_mode_update"
	EvError                 = "error"
)

// Events the client emits.
const (
	EvAuthenticate        = "authenticate"
	EvGetChatHistory      = "get_chat_history"
	EvSendMessage         = "message"
	EvSendTyping          = "typing"
	EvRateMessage         = "rate_message"
	EvRequestHumanSupport = "request_human_support"
	EvCancelHumanSupport  = "cancel_human_support"
	EvLogin               = "login"
	EvSignup              = "signup"
	EvLogout              = "logout"
)

// AnonymousUser is sent as userId before anyone has logged in.
const AnonymousUser = "anonymous"

// Request is a typed outbound call.
type Request interface {
	Event() string
}

type Authenticate struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	WebsiteID string `json:"websiteId"`
}

type GetChatHistory struct {
	WebsiteID string `json:"websiteId"`
	UserID    string `json:"userId"`
}

// SendMessage carries the message itself as the payload.
type SendMessage struct {
	chat.Message
}

type Typing struct {
	IsTyping  bool   `json:"isTyping"`
	WebsiteID string `json:"websiteId"`
	UserID    string `json:"userId"`
}

type RateMessage struct {
	MessageID string      `json:"messageId"`
	Rating    chat.Rating `json:"rating"`
	WebsiteID string      `json:"websiteId"`
	UserID    string      `json:"userId"`
}

type RequestHumanSupport struct {
	WebsiteID string `json:"websiteId"`
	UserID    string `json:"userId"`
}

type CancelHumanSupport struct {
	WebsiteID string `json:"websiteId"`
	UserID    string `json:"userId"`
}

type Login struct {
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	WebsiteID string `json:"websiteId"`
}

type Signup struct {
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	Email     string `json:"email,omitempty"`
	WebsiteID string `json:"websiteId"`
}

type Logout struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	WebsiteID string `json:"websiteId"`
}

func (Authenticate) Event() string        { return EvAuthenticate }
func (GetChatHistory) Event() string      { return EvGetChatHistory }
func (SendMessage) Event() string         { return EvSendMessage }
func (Typing) Event() string              { return EvSendTyping }
func (RateMessage) Event() string         { return EvRateMessage }
func (RequestHumanSupport) Event() string { return EvRequestHumanSupport }
func (CancelHumanSupport) Event() string  { return EvCancelHumanSupport }
func (Login) Event() string               { return EvLogin }
func (Signup) Event() string              { return EvSignup }
func (Logout) Event() string              { return EvLogout }
