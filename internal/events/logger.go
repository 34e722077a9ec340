package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

type logAdapter struct {
	l zerolog.Logger
}

// NewLogger routes watermill's logging into zerolog. Watermill's info chatter is
// demoted to debug.
func NewLogger(l zerolog.Logger) watermill.LoggerAdapter {
	return logAdapter{l: l.With().Str("component", "watermill").Logger()}
}

func (a logAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.l.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a logAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a logAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a logAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a logAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return logAdapter{l: a.l.With().Fields(map[string]interface{}(fields)).Logger()}
}
