package channel

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Event is one inbound occurrence on the channel. Each concrete type is handled by
// exactly one component.
type Event interface {
	Name() string
}

// Lifecycle events produced by the transport itself.
type (
	Connected struct {
		SID string
	}
	Disconnected struct {
		Reason string
	}
	ConnectError struct {
		Err error
	}
)

// ErrorEvent is a generic server-side "error" event.
type ErrorEvent struct {
	Message string
}

// WireMessage is a message as the server sends it. Content may be any JSON value
// and Sender any label; the conversation normalizes both.
type WireMessage struct {
	ID                              string          `json:"id"`
	Content                         json.RawMessage `json:"content"`
	Sender                          string          `json:"sender"`
	CreatedAt                       string          `json:"createdAt"`
	Rating                          string          `json:"rating,omitempty"`
	IsFirstMessageAfterRegistration *bool           `json:"isFirstMessageAfterRegistration,omitempty"`
}

type MessageReceived struct {
	Message WireMessage
}

type ChatInfo struct {
	SupportMode string `json:"supportMode,omitempty"`
	ChatID      string `json:"chatId,omitempty"`
}

// History is chat_history, which arrives either as a bare array or as an envelope.
type History struct {
	Messages []WireMessage
	ChatInfo *ChatInfo
}

type TypingChanged struct {
	IsTyping bool
}

type RateResponse struct {
	Success   bool   `json:"success"`
	Rating    string `json:"rating,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type AuthResult struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	UserID    string `json:"userId,omitempty"`
	IsNewUser bool   `json:"isNewUser,omitempty"`
	Error     string `json:"error,omitempty"`
}

type LogoutResult struct {
	Success bool `json:"success"`
}

type HumanSupportRequested struct {
	Data json.RawMessage
}

type SupportModeUpdate struct {
	Mode   string `json:"mode"`
	ChatID string `json:"chatId,omitempty"`
	Silent bool   `json:"silent,omitempty"`
}

func (Connected) Name() string             { return "connect" }
func (Disconnected) Name() string          { return "disconnect" }
func (ConnectError) Name() string          { return "connect_error" }
func (ErrorEvent) Name() string            { return EvError }
func (MessageReceived) Name() string       { return EvMessage }
func (History) Name() string               { return EvChatHistory }
func (TypingChanged) Name() string         { return EvTyping }
func (RateResponse) Name() string          { return EvRateMessageResponse }
func (AuthResult) Name() string            { return EvAuthenticationResult }
func (LogoutResult) Name() string          { return EvLogoutSuccess }
func (HumanSupportRequested) Name() string { return EvHumanSupportRequested }
func (SupportModeUpdate) Name() string     { return EvSupportModeUpdate }

// ErrUnknownEvent is returned by DecodeEvent for names it has no variant for.
var ErrUnknownEvent = errors.New("unknown event")

// DecodeEvent turns a named server event with its first argument into a variant.
func DecodeEvent(name string, arg json.RawMessage) (Event, error) {
	arg = bytes.TrimSpace(arg)
	switch name {
	case EvMessage:
		var m WireMessage
		if err := json.Unmarshal(arg, &m); err != nil {
			return nil, errors.Wrap(err, "decode message")
		}
		return MessageReceived{Message: m}, nil

	case EvChatHistory:
		return decodeHistory(arg)

	case EvTyping:
		return decodeTyping(arg)

	case EvRateMessageResponse:
		var r RateResponse
		if err := json.Unmarshal(arg, &r); err != nil {
			return nil, errors.Wrap(err, "decode rate response")
		}
		return r, nil

	case EvAuthenticationResult:
		var r AuthResult
		if err := json.Unmarshal(arg, &r); err != nil {
			return nil, errors.Wrap(err, "decode authentication result")
		}
		return r, nil

	case EvLogoutSuccess:
		var r LogoutResult
		if len(arg) > 0 && !isNull(arg) {
			if err := json.Unmarshal(arg, &r); err != nil {
				return nil, errors.Wrap(err, "decode logout result")
			}
		}
		return r, nil

	case EvHumanSupportRequested:
		return HumanSupportRequested{Data: append(json.RawMessage(nil), arg...)}, nil

	case EvSupportModeUpdate:
		var u SupportModeUpdate
		if err := json.Unmarshal(arg, &u); err != nil {
			return nil, errors.Wrap(err, "decode support mode update")
		}
		return u, nil

	case EvError:
		return ErrorEvent{Message: errorText(arg)}, nil
	}
	return nil, errors.Wrap(ErrUnknownEvent, name)
}

func isNull(b []byte) bool { return bytes.Equal(b, []byte("null")) }

func decodeHistory(arg json.RawMessage) (History, error) {
	if len(arg) == 0 || isNull(arg) {
		return History{}, nil
	}
	if arg[0] == '[' {
		var msgs []WireMessage
		if err := json.Unmarshal(arg, &msgs); err != nil {
			return History{}, errors.Wrap(err, "decode history array")
		}
		return History{Messages: msgs}, nil
	}
	var env struct {
		Messages []WireMessage `json:"messages"`
		ChatInfo *ChatInfo     `json:"chatInfo"`
	}
	if err := json.Unmarshal(arg, &env); err != nil {
		return History{}, errors.Wrap(err, "decode history envelope")
	}
	return History{Messages: env.Messages, ChatInfo: env.ChatInfo}, nil
}

// decodeTyping accepts a bare boolean or {isTyping}. Anything else is falsy.
func decodeTyping(arg json.RawMessage) (TypingChanged, error) {
	var b bool
	if err := json.Unmarshal(arg, &b); err == nil {
		return TypingChanged{IsTyping: b}, nil
	}
	var obj struct {
		IsTyping bool `json:"isTyping"`
	}
	if err := json.Unmarshal(arg, &obj); err == nil {
		return TypingChanged{IsTyping: obj.IsTyping}, nil
	}
	return TypingChanged{}, nil
}

// errorText pulls a readable message out of whatever the server put in "error".
func errorText(arg json.RawMessage) string {
	var s string
	if err := json.Unmarshal(arg, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(arg, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(arg)
}
