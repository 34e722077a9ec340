// Package channeltest is an in-memory channel.Transport for driving components
// from tests.
package channeltest

import (
	"encoding/json"
	"errors"

	"github.com/ehrlich-b/chatsync/internal/channel"
)

// Emitted is one recorded outbound request.
type Emitted struct {
	Req channel.Request
	Ack func(channel.Ack)
}

func (e Emitted) Event() string { return e.Req.Event() }

type Transport struct {
	handler   channel.Handler
	connected bool

	Connects int
	Closed   bool
	Emitted  []Emitted
	// EmitErr, when set, is returned by every Emit.
	EmitErr error
}

var _ channel.Transport = (*Transport)(nil)

func (t *Transport) Connect()        { t.Connects++ }
func (t *Transport) Close()          { t.Closed = true; t.connected = false }
func (t *Transport) Connected() bool { return t.connected }

func (t *Transport) Emit(req channel.Request) error {
	return t.EmitWithAck(req, nil)
}

func (t *Transport) EmitWithAck(req channel.Request, ack func(channel.Ack)) error {
	if t.EmitErr != nil {
		return t.EmitErr
	}
	if !t.connected {
		return channel.ErrNotConnected
	}
	t.Emitted = append(t.Emitted, Emitted{Req: req, Ack: ack})
	return nil
}

// Open marks the transport connected and delivers a connect event.
func (t *Transport) Open() {
	t.connected = true
	t.handler(channel.Connected{SID: "sid-test"})
}

// Drop delivers a disconnect.
func (t *Transport) Drop(reason string) {
	t.connected = false
	t.handler(channel.Disconnected{Reason: reason})
}

// Fail delivers a connect_error.
func (t *Transport) Fail() {
	t.connected = false
	t.handler(channel.ConnectError{Err: errors.New("connection refused")})
}

// Push delivers any server event.
func (t *Transport) Push(ev channel.Event) {
	t.handler(ev)
}

// PushRaw decodes name/payload the way the real client does and delivers it.
func (t *Transport) PushRaw(name, payload string) error {
	ev, err := channel.DecodeEvent(name, json.RawMessage(payload))
	if err != nil {
		return err
	}
	t.handler(ev)
	return nil
}

// Names lists emitted event names in order.
func (t *Transport) Names() []string {
	out := make([]string, len(t.Emitted))
	for i, e := range t.Emitted {
		out[i] = e.Event()
	}
	return out
}

// Find returns every emitted request for one event name.
func (t *Transport) Find(event string) []Emitted {
	var out []Emitted
	for _, e := range t.Emitted {
		if e.Event() == event {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets recorded emits.
func (t *Transport) Reset() { t.Emitted = nil }

// Dialer hands out fresh Transports and remembers them.
type Dialer struct {
	Transports []*Transport
	// Err, when set, makes Dial fail.
	Err error
}

func (d *Dialer) Dial(h channel.Handler) (channel.Transport, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	t := &Transport{handler: h}
	d.Transports = append(d.Transports, t)
	return t, nil
}

// Last is the most recently dialed transport, or nil.
func (d *Dialer) Last() *Transport {
	if len(d.Transports) == 0 {
		return nil
	}
	return d.Transports[len(d.Transports)-1]
}
