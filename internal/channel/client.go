package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	outboxSize       = 64
	readLimit        = 1 << 20
)

// Disconnect reasons, as Socket.IO names them.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonPingTimeout      = "ping timeout"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

// Client is a Socket.IO client for the root namespace over a websocket. After a
// lost connection it retries at a fixed interval and gives up after MaxAttempts
// consecutive failures, like socket.io-client with a fixed reconnectionDelay.
type Client struct {
	URL         string
	MaxAttempts int
	Interval    time.Duration
	HTTPClient  *http.Client
	Log         zerolog.Logger

	handler Handler

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	sess    *session
}

// session is one established websocket connection.
type session struct {
	conn   *websocket.Conn
	outbox chan []byte

	mu     sync.Mutex
	nextID int
	acks   map[int]func(Ack)
	closed bool
}

var _ Transport = (*Client)(nil)

func NewClient(url string, maxAttempts int, interval time.Duration, h Handler, log zerolog.Logger) *Client {
	return &Client{
		URL:         url,
		MaxAttempts: maxAttempts,
		Interval:    interval,
		Log:         log,
		handler:     h,
	}
}

// NewDialer returns a Dialer producing Clients for url.
func NewDialer(url string, maxAttempts int, interval time.Duration, log zerolog.Logger) Dialer {
	return func(h Handler) (Transport, error) {
		if url == "" {
			return nil, errors.New("empty socket url")
		}
		return NewClient(url, maxAttempts, interval, h, log), nil
	}
}

// Connect starts the run loop. Calling it again is a no-op.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Close tells the server goodbye and waits for the run loop to exit.
func (c *Client) Close() {
	c.mu.Lock()
	cancel, done, sess := c.cancel, c.done, c.sess
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	if sess != nil {
		// Best effort: tell the server this side is leaving.
		sess.send([]byte{eioMessage, sioDisconnect})
	}
	cancel()
	<-done
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Emit queues req without waiting for the write.
func (c *Client) Emit(req Request) error {
	return c.emit(req, nil)
}

func (c *Client) EmitWithAck(req Request, ack func(Ack)) error {
	return c.emit(req, ack)
}

func (c *Client) emit(req Request, ack func(Ack)) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}
	id := -1
	if ack != nil {
		var ok bool
		if id, ok = sess.registerAck(ack); !ok {
			return ErrNotConnected
		}
	}
	frame, err := encodeEvent(id, req.Event(), req)
	if err != nil {
		sess.takeAck(id)
		return err
	}
	if err := sess.send(frame); err != nil {
		sess.takeAck(id)
		return err
	}
	c.Log.Debug().Str("event", req.Event()).Int("ack_id", id).Msg("emit")
	return nil
}

// run is the reconnect loop.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	failures := 0
	for {
		connected, reason, err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			failures = 0
			c.Log.Info().Str("reason", reason).Err(err).Msg("disconnected")
			c.deliver(ctx, Disconnected{Reason: reason})
			if reason == ReasonServerDisconnect {
				// The server kicked us; socket.io-client does not retry in this case.
				return
			}
		} else {
			failures++
			c.Log.Warn().Err(err).Int("attempt", failures).Msg("connect failed")
			c.deliver(ctx, ConnectError{Err: err})
			if c.MaxAttempts > 0 && failures >= c.MaxAttempts {
				c.Log.Error().Int("attempts", failures).Msg("giving up reconnecting")
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.Interval):
		}
	}
}

func (c *Client) deliver(ctx context.Context, ev Event) {
	if ctx.Err() != nil || c.handler == nil {
		return
	}
	c.handler(ev)
}

func (c *Client) connectAndServe(ctx context.Context) (connected bool, reason string, err error) {
	opts := &websocket.DialOptions{HTTPClient: c.HTTPClient}
	conn, _, err := websocket.Dial(ctx, c.URL, opts)
	if err != nil {
		return false, "", errors.Wrap(err, "dial")
	}
	conn.SetReadLimit(readLimit)
	defer conn.CloseNow()

	hs, err := c.handshake(ctx, conn)
	if err != nil {
		return false, "", err
	}

	sess := &session{
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		acks:   make(map[int]func(Ack)),
	}
	writeCtx, stopWriter := context.WithCancel(ctx)
	defer stopWriter()
	go sess.writeLoop(writeCtx)

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
		sess.close()
	}()

	c.Log.Info().Str("sid", hs.SID).Msg("connected")
	c.deliver(ctx, Connected{SID: hs.SID})

	reason, err = c.readLoop(ctx, conn, sess, hs.liveness())
	return true, reason, err
}

// handshake reads the Engine.IO open packet, then joins the root namespace.
func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) (handshake, error) {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	_, frame, err := conn.Read(hctx)
	if err != nil {
		return handshake{}, errors.Wrap(err, "read open packet")
	}
	hs, err := decodeHandshake(frame)
	if err != nil {
		return hs, err
	}
	if err := conn.Write(hctx, websocket.MessageText, []byte{eioMessage, sioConnect}); err != nil {
		return hs, errors.Wrap(err, "send connect")
	}

	for {
		_, frame, err := conn.Read(hctx)
		if err != nil {
			return hs, errors.Wrap(err, "await connect ack")
		}
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case eioPing:
			if err := conn.Write(hctx, websocket.MessageText, []byte{eioPong}); err != nil {
				return hs, errors.Wrap(err, "pong")
			}
			continue
		case eioMessage:
		default:
			continue
		}
		p, err := decodePacket(frame[1:])
		if err != nil {
			continue
		}
		switch p.Type {
		case sioConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			if len(p.Data) > 0 {
				json.Unmarshal(p.Data, &ack)
			}
			if ack.SID != "" {
				hs.SID = ack.SID
			}
			return hs, nil
		case sioConnectError:
			return hs, errors.Errorf("connect refused: %s", errorText(p.Data))
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, sess *session, liveness time.Duration) (string, error) {
	for {
		rctx, cancel := context.WithTimeout(ctx, liveness)
		_, frame, err := conn.Read(rctx)
		timedOut := rctx.Err() == context.DeadlineExceeded
		cancel()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ReasonClientDisconnect, nil
			case timedOut:
				return ReasonPingTimeout, err
			case websocket.CloseStatus(err) != -1:
				return ReasonTransportClose, err
			default:
				return ReasonTransportError, err
			}
		}
		if len(frame) == 0 {
			continue
		}

		switch frame[0] {
		case eioPing:
			sess.send([]byte{eioPong})
		case eioClose:
			return ReasonTransportClose, nil
		case eioNoop, eioPong:
		case eioMessage:
			p, err := decodePacket(frame[1:])
			if err != nil {
				c.Log.Debug().Err(err).Str("frame", truncate(frame)).Msg("skipping packet")
				continue
			}
			if done := c.handlePacket(ctx, sess, p); done {
				return ReasonServerDisconnect, nil
			}
		default:
			c.Log.Debug().Str("frame", truncate(frame)).Msg("unknown engine.io packet")
		}
	}
}

// handlePacket dispatches one Socket.IO packet. It reports true when the server
// closed the namespace.
func (c *Client) handlePacket(ctx context.Context, sess *session, p packet) bool {
	switch p.Type {
	case sioDisconnect:
		return true

	case sioAck:
		fn := sess.takeAck(p.ID)
		if fn == nil {
			return false
		}
		var args Ack
		if len(p.Data) > 0 {
			json.Unmarshal(p.Data, &args)
		}
		fn(args)

	case sioEvent:
		name, args, err := eventArgs(p.Data)
		if err != nil {
			c.Log.Warn().Err(err).Msg("bad event packet")
			return false
		}
		if p.ID >= 0 {
			if frame, err := encodeAck(p.ID); err == nil {
				sess.send(frame)
			}
		}
		var first json.RawMessage
		if len(args) > 0 {
			first = args[0]
		}
		ev, err := DecodeEvent(name, first)
		if err != nil {
			c.Log.Warn().Err(err).Str("event", name).Msg("dropping event")
			return false
		}
		c.Log.Debug().Str("event", name).Msg("received")
		c.deliver(ctx, ev)

	case sioConnectError:
		c.Log.Warn().Str("error", errorText(p.Data)).Msg("server error on namespace")
	}
	return false
}

func (s *session) send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	select {
	case s.outbox <- frame:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (s *session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.outbox:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				// Unblocks the read loop, which reports the disconnect.
				s.conn.CloseNow()
				return
			}
		}
	}
}

func (s *session) registerAck(fn func(Ack)) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	id := s.nextID
	s.nextID++
	s.acks[id] = fn
	return id, true
}

func (s *session) takeAck(id int) func(Ack) {
	if id < 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := s.acks[id]
	delete(s.acks, id)
	return fn
}

// close drops pending acks; their callers time out on their own.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.acks = nil
}

func (c *Client) String() string {
	return fmt.Sprintf("socket.io client %s", c.URL)
}
