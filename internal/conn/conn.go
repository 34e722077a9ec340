// Package conn owns the lifecycle of the one duplex channel a widget uses.
package conn

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ehrlich-b/chatsync/internal/app"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/l10n"
	"github.com/ehrlich-b/chatsync/internal/loop"
)

// Status is the connection lifecycle as the host sees it.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	}
	return "disconnected"
}

// State is the read projection of the manager.
type State struct {
	Status            Status `json:"-"`
	StatusName        string `json:"status"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
}

// Manager connects, watches and disposes transports. All methods run on the loop.
type Manager struct {
	app  *app.Context
	log  zerolog.Logger
	dial channel.Dialer

	transport channel.Transport
	gen       int
	status    Status
	attempts  int

	watchdog       loop.Timer
	reconnectTimer loop.Timer

	once    map[int]func()
	onceSeq int

	onConnect    []func()
	onDisconnect []func(reason string)
	route        func(channel.Event)
}

// New returns a disconnected manager that creates transports through dial.
func New(ctx *app.Context, dial channel.Dialer) *Manager {
	return &Manager{
		app:  ctx,
		log:  ctx.Logger("conn"),
		dial: dial,
		once: make(map[int]func()),
	}
}

// OnConnect registers a hook run on every connect, before one-shot listeners.
func (m *Manager) OnConnect(fn func()) { m.onConnect = append(m.onConnect, fn) }

// OnDisconnect registers fn to run with the reason each time the channel drops.
func (m *Manager) OnDisconnect(fn func(reason string)) {
	m.onDisconnect = append(m.onDisconnect, fn)
}

// SetRouter receives every domain event, that is everything but the lifecycle
// events the manager consumes itself.
func (m *Manager) SetRouter(fn func(channel.Event)) { m.route = fn }

// OnceConnected runs fn on the next connect only. The returned func cancels it.
func (m *Manager) OnceConnected(fn func()) (cancel func()) {
	m.onceSeq++
	id := m.onceSeq
	m.once[id] = fn
	return func() { delete(m.once, id) }
}

// Connected reports whether the current transport has completed the handshake.
func (m *Manager) Connected() bool { return m.status == StatusConnected }

// State returns the current projection.
func (m *Manager) State() State {
	return State{Status: m.status, StatusName: m.status.String(), ReconnectAttempts: m.attempts}
}

// Connect is a no-op while connecting or connected. Otherwise it starts a fresh
// transport and arms the watchdog.
func (m *Manager) Connect() {
	if m.status != StatusDisconnected {
		return
	}
	if m.transport != nil {
		// The previous transport is between retries or has given up.
		m.dispose()
	}
	m.gen++
	t, err := m.dial(m.handlerFor(m.gen))
	if err != nil {
		m.log.Error().Err(err).Msg("create transport")
		m.app.Fail(chaterr.Connectivity, l10n.ErrChannelCreate, err)
		return
	}
	m.transport = t
	m.status = StatusConnecting
	m.armWatchdog()
	m.log.Info().Int("gen", m.gen).Msg("connecting")
	m.app.Changed()
	t.Connect()
}

// Disconnect tears the channel down and drops every pending listener and timer.
func (m *Manager) Disconnect() {
	m.dispose()
	m.once = make(map[int]func())
	m.stopReconnectTimer()
	m.log.Info().Msg("disconnected by client")
	m.app.Changed()
}

// Reconnect disposes the current transport and connects a new one, so nothing
// from the old one can fire.
func (m *Manager) Reconnect() {
	m.log.Info().Msg("manual reconnect")
	m.Disconnect()
	m.Connect()
}

// ReconnectAfter schedules Reconnect unless a connect happens first.
func (m *Manager) ReconnectAfter(d time.Duration) {
	m.stopReconnectTimer()
	m.reconnectTimer = m.app.Sched.AfterFunc(d, func() {
		m.reconnectTimer = nil
		m.Reconnect()
	})
}

// Emit sends req on the live transport. It fails fast when not connected.
func (m *Manager) Emit(req channel.Request) error {
	if m.transport == nil || m.status != StatusConnected {
		return channel.ErrNotConnected
	}
	return m.transport.Emit(req)
}

// EmitWithAck delivers ack on the loop, and only if this transport is still current.
func (m *Manager) EmitWithAck(req channel.Request, ack func(channel.Ack)) error {
	if m.transport == nil || m.status != StatusConnected {
		return channel.ErrNotConnected
	}
	gen := m.gen
	return m.transport.EmitWithAck(req, func(a channel.Ack) {
		m.app.Sched.Post(func() {
			if gen != m.gen {
				return
			}
			ack(a)
		})
	})
}

func (m *Manager) handlerFor(gen int) channel.Handler {
	return func(ev channel.Event) {
		m.app.Sched.Post(func() {
			if gen != m.gen {
				return
			}
			m.handle(ev)
		})
	}
}

func (m *Manager) handle(ev channel.Event) {
	switch e := ev.(type) {
	case channel.Connected:
		m.handleConnect(e)
	case channel.Disconnected:
		m.handleDisconnect(e)
	case channel.ConnectError:
		m.handleConnectError(e)
	case channel.ErrorEvent:
		m.log.Error().Str("error", e.Message).Msg("channel error")
		m.app.Fail(chaterr.Server, l10n.ErrGeneric, errors.New(e.Message))
	default:
		if m.route != nil {
			m.route(ev)
		}
	}
}

func (m *Manager) handleConnect(e channel.Connected) {
	m.stopWatchdog()
	m.stopReconnectTimer()
	m.attempts = 0
	m.status = StatusConnected
	m.log.Info().Str("sid", e.SID).Msg("connected")
	m.app.Changed()

	for _, fn := range m.onConnect {
		fn()
	}
	pending := m.once
	m.once = make(map[int]func())
	ids := make([]int, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		pending[id]()
	}
}

// handleDisconnect only raises the terminal error when connect errors already
// exhausted the attempts; a plain disconnect does not count as an attempt.
func (m *Manager) handleDisconnect(e channel.Disconnected) {
	m.status = StatusDisconnected
	m.log.Warn().Str("reason", e.Reason).Int("attempts", m.attempts).Msg("disconnected")
	m.app.Changed()
	if m.attempts >= m.app.Config.Reconnect.MaxAttempts {
		m.app.Fail(chaterr.Connectivity, l10n.ErrConnectionLost, nil)
	}
	for _, fn := range m.onDisconnect {
		fn(e.Reason)
	}
}

func (m *Manager) handleConnectError(e channel.ConnectError) {
	m.status = StatusDisconnected
	m.attempts++
	m.log.Warn().Err(e.Err).Int("attempts", m.attempts).Msg("connect error")
	m.app.Changed()
	if m.attempts >= m.app.Config.Reconnect.MaxAttempts {
		m.app.Fail(chaterr.Connectivity, l10n.ErrConnectFailed, e.Err)
	}
}

func (m *Manager) armWatchdog() {
	m.stopWatchdog()
	m.watchdog = m.app.Sched.AfterFunc(m.app.Config.Timeouts.Connect, func() {
		m.watchdog = nil
		if m.status == StatusConnected {
			return
		}
		m.log.Error().Dur("after", m.app.Config.Timeouts.Connect).Msg("connection watchdog fired")
		m.app.Fail(chaterr.Connectivity, l10n.ErrConnectTimeout, nil)
	})
}

func (m *Manager) stopWatchdog() {
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
}

func (m *Manager) stopReconnectTimer() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// dispose closes the transport and bumps the generation so its late events drop.
func (m *Manager) dispose() {
	m.stopWatchdog()
	if m.transport != nil {
		m.transport.Close()
		m.transport = nil
	}
	m.gen++
	m.status = StatusDisconnected
}
