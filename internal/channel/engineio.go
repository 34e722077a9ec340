package channel

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Engine.IO v4 packet types (first byte of every websocket frame).
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// Socket.IO v5 packet types, carried inside an Engine.IO message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

// handshake is the payload of the Engine.IO open packet.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"` // ms
	PingTimeout  int    `json:"pingTimeout"`  // ms
	MaxPayload   int    `json:"maxPayload"`
}

// liveness is how long a read may block before the server is presumed gone.
func (h handshake) liveness() time.Duration {
	d := time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
	if d <= 0 {
		return 45 * time.Second
	}
	return d
}

// packet is a decoded Socket.IO packet on the root namespace.
type packet struct {
	Type byte
	ID   int // -1 when absent
	Data json.RawMessage
}

// SocketURL maps an http(s) API base onto the Engine.IO websocket endpoint.
func SocketURL(apiURL, websiteID string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", errors.Wrap(err, "parse api url")
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket.io/"
	q := url.Values{}
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	q.Set("websiteId", websiteID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decodeHandshake(frame []byte) (handshake, error) {
	var h handshake
	if len(frame) == 0 || frame[0] != eioOpen {
		return h, errors.Errorf("expected open packet, got %q", truncate(frame))
	}
	if err := json.Unmarshal(frame[1:], &h); err != nil {
		return h, errors.Wrap(err, "decode open packet")
	}
	return h, nil
}

// decodePacket parses the part of an Engine.IO message after the leading '4'.
// Packets for other namespaces are rejected.
func decodePacket(b []byte) (packet, error) {
	p := packet{ID: -1}
	if len(b) == 0 {
		return p, errors.New("empty socket.io packet")
	}
	p.Type = b[0]
	rest := b[1:]

	if p.Type == '5' || p.Type == '6' {
		return p, errors.New("binary packets are not supported")
	}
	if len(rest) > 0 && rest[0] == '/' {
		i := bytes.IndexByte(rest, ',')
		nsp := rest
		if i >= 0 {
			nsp, rest = rest[:i], rest[i+1:]
		} else {
			rest = nil
		}
		if string(nsp) != "/" {
			return p, errors.Errorf("namespace %s not supported", nsp)
		}
	}

	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	if n > 0 {
		id, err := strconv.Atoi(string(rest[:n]))
		if err != nil {
			return p, errors.Wrap(err, "packet id")
		}
		p.ID = id
		rest = rest[n:]
	}
	if len(rest) > 0 {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// eventArgs splits an event packet's data into its name and arguments.
func eventArgs(data json.RawMessage) (string, []json.RawMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", nil, errors.Wrap(err, "decode event array")
	}
	if len(raw) == 0 {
		return "", nil, errors.New("event without name")
	}
	var name string
	if err := json.Unmarshal(raw[0], &name); err != nil {
		return "", nil, errors.Wrap(err, "decode event name")
	}
	return name, raw[1:], nil
}

// encodeEvent builds "42[id][name,args...]".
func encodeEvent(id int, name string, args ...any) ([]byte, error) {
	arr := make([]any, 0, len(args)+1)
	arr = append(arr, name)
	arr = append(arr, args...)
	body, err := json.Marshal(arr)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", name)
	}
	var buf bytes.Buffer
	buf.WriteByte(eioMessage)
	buf.WriteByte(sioEvent)
	if id >= 0 {
		buf.WriteString(strconv.Itoa(id))
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// encodeAck builds "43<id>[args...]".
func encodeAck(id int, args ...any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "encode ack")
	}
	out := []byte{eioMessage, sioAck}
	out = strconv.AppendInt(out, int64(id), 10)
	return append(out, body...), nil
}

func truncate(b []byte) string {
	if len(b) > 64 {
		return string(b[:64]) + "..."
	}
	return string(b)
}
