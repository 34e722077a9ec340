// Package events publishes the widget projection and user-facing errors on a
// watermill bus, so hosts can consume them without touching the loop.
package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/widget"
)

const (
	TopicState  = "chatsync.state"
	TopicErrors = "chatsync.errors"
)

// ErrorPayload is the wire form of a chaterr.Error.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// WatermillSink is both the widget's state sink and the error reporter.
type WatermillSink struct {
	pub message.Publisher
	log zerolog.Logger
}

var (
	_ widget.Sink      = (*WatermillSink)(nil)
	_ chaterr.Reporter = (*WatermillSink)(nil)
)

// NewWatermillSink publishes on pub.
func NewWatermillSink(pub message.Publisher, log zerolog.Logger) *WatermillSink {
	return &WatermillSink{pub: pub, log: log.With().Str("component", "events").Logger()}
}

// Publish sends the projection to TopicState.
func (s *WatermillSink) Publish(st widget.State) {
	s.publish(TopicState, st)
}

// Report sends err to TopicErrors.
func (s *WatermillSink) Report(err *chaterr.Error) {
	p := ErrorPayload{Kind: err.Kind.String(), Code: err.Code, Message: err.Message}
	if cause := err.Unwrap(); cause != nil {
		p.Cause = cause.Error()
	}
	s.publish(TopicErrors, p)
}

func (s *WatermillSink) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("marshal payload")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.pub.Publish(topic, msg); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("publish")
	}
}

// NewGoChannel is the in-process bus the CLI uses.
func NewGoChannel(log zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, NewLogger(log))
}

// DecodeState reads a TopicState payload.
func DecodeState(msg *message.Message) (widget.State, error) {
	var st widget.State
	if err := json.Unmarshal(msg.Payload, &st); err != nil {
		return widget.State{}, errors.Wrap(err, "decode state")
	}
	return st, nil
}

// DecodeError reads a TopicErrors payload.
func DecodeError(msg *message.Message) (ErrorPayload, error) {
	var p ErrorPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return ErrorPayload{}, errors.Wrap(err, "decode error")
	}
	return p, nil
}
