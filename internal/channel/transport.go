// Package channel is the duplex, event-typed connection to the chat backend: a
// Socket.IO v4 client over a websocket, plus the typed events and requests that
// travel on it.
package channel

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrNotConnected is returned by Emit while no session is up.
var ErrNotConnected = errors.New("channel not connected")

// ErrOutboxFull is returned when writes are not draining.
var ErrOutboxFull = errors.New("channel outbox full")

// Ack is the argument list of an acknowledgment reply.
type Ack []json.RawMessage

// Err returns the error the server put in the first ack argument, if any.
// null, false and "" mean success.
func (a Ack) Err() string {
	if len(a) == 0 {
		return ""
	}
	first := bytes.TrimSpace(a[0])
	switch string(first) {
	case "", "null", "false", `""`, "0":
		return ""
	}
	return errorText(first)
}

// Transport is what the connection manager drives. Implementations deliver events
// to the Handler they were built with, from their own goroutines.
type Transport interface {
	// Connect starts connecting in the background. Calling it again is a no-op.
	Connect()
	// Close tears everything down. No events are delivered after it returns.
	Close()
	Connected() bool
	Emit(req Request) error
	// EmitWithAck calls ack, from the transport's goroutine, when the server replies.
	EmitWithAck(req Request, ack func(Ack)) error
}

// Handler receives inbound events.
type Handler func(Event)

// Dialer builds a fresh transport bound to h.
type Dialer func(h Handler) (Transport, error)
