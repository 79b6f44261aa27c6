package socket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/vsa/internal/shared"
)

// FrameKind identifies a decoded packet after both framing layers are removed.
type FrameKind int

const (
	FrameNoop FrameKind = iota
	FrameOpen
	FrameClose
	FramePing
	FramePong
	FrameConnect
	FrameDisconnect
	FrameEvent
	FrameConnectError
)

func (k FrameKind) String() string {
	switch k {
	case FrameOpen:
		return "open"
	case FrameClose:
		return "close"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameConnect:
		return "connect"
	case FrameDisconnect:
		return "disconnect"
	case FrameEvent:
		return "event"
	case FrameConnectError:
		return "connect_error"
	default:
		return "noop"
	}
}

// Engine.IO packet types
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioUpgrade = '5'
	eioNoop    = '6'
)

// Socket.IO packet types carried inside an Engine.IO message
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
	sioBinaryEvent  = '5'
	sioBinaryAck    = '6'
)

// Frame is one decoded packet.
type Frame struct {
	Kind      FrameKind
	Namespace string
	Event     string
	Data      json.RawMessage
}

// OpenPayload is the Engine.IO handshake sent by the server as the first packet.
type OpenPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// DecodeFrame parses one WebSocket text message.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, fmt.Errorf("%w: empty packet", shared.ErrProtocol)
	}

	payload := b[1:]
	switch b[0] {
	case eioOpen:
		return Frame{Kind: FrameOpen, Data: payload}, nil
	case eioClose:
		return Frame{Kind: FrameClose}, nil
	case eioPing:
		return Frame{Kind: FramePing, Data: payload}, nil
	case eioPong:
		return Frame{Kind: FramePong, Data: payload}, nil
	case eioUpgrade, eioNoop:
		return Frame{Kind: FrameNoop}, nil
	case eioMessage:
		return decodeMessage(payload)
	default:
		return Frame{}, fmt.Errorf("%w: unknown packet type %q", shared.ErrProtocol, b[0])
	}
}

func decodeMessage(p []byte) (Frame, error) {
	if len(p) == 0 {
		return Frame{}, fmt.Errorf("%w: empty message", shared.ErrProtocol)
	}

	kind, rest := p[0], p[1:]
	if kind == sioBinaryEvent || kind == sioBinaryAck {
		// attachment count prefix, e.g. "1-"
		if i := bytes.IndexByte(rest, '-'); i >= 0 {
			rest = rest[i+1:]
		}
	}

	f := Frame{Namespace: "/"}
	if len(rest) > 0 && rest[0] == '/' {
		i := bytes.IndexByte(rest, ',')
		if i < 0 {
			f.Namespace, rest = string(rest), nil
		} else {
			f.Namespace, rest = string(rest[:i]), rest[i+1:]
		}
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	rest = rest[i:]

	switch kind {
	case sioConnect:
		f.Kind, f.Data = FrameConnect, rest
	case sioDisconnect:
		f.Kind = FrameDisconnect
	case sioConnectError:
		f.Kind, f.Data = FrameConnectError, rest
	case sioEvent, sioBinaryEvent:
		var args []json.RawMessage
		if err := json.Unmarshal(rest, &args); err != nil {
			return Frame{}, fmt.Errorf("%w: event body: %v", shared.ErrProtocol, err)
		}
		if len(args) == 0 {
			return Frame{}, fmt.Errorf("%w: event without name", shared.ErrProtocol)
		}
		if err := json.Unmarshal(args[0], &f.Event); err != nil {
			return Frame{}, fmt.Errorf("%w: event name: %v", shared.ErrProtocol, err)
		}
		f.Kind = FrameEvent
		if len(args) > 1 {
			f.Data = args[1]
		}
	case sioAck, sioBinaryAck:
		f.Kind = FrameNoop
	default:
		return Frame{}, fmt.Errorf("%w: unknown message type %q", shared.ErrProtocol, kind)
	}
	return f, nil
}

// ConnectErrorMessage extracts the server's reason from a connect error payload.
func ConnectErrorMessage(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s
	}
	return "connection refused"
}

// EncodeConnect builds the namespace connect packet carrying auth.
func EncodeConnect(auth any) ([]byte, error) {
	body, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("%w: connect payload: %v", shared.ErrProtocol, err)
	}
	return append([]byte{eioMessage, sioConnect}, body...), nil
}

// EncodeEvent builds an event packet for the default namespace.
func EncodeEvent(event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}

	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", shared.ErrProtocol, event, err)
	}
	return append([]byte{eioMessage, sioEvent}, body...), nil
}

var (
	pongPacket       = []byte{eioPong}
	closePacket      = []byte{eioClose}
	disconnectPacket = []byte{eioMessage, sioDisconnect}
)

// EndpointURL converts the backend's HTTP base URL into the WebSocket endpoint.
func EndpointURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: backend url: %v", shared.ErrInvalidConfig, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported backend scheme %q", shared.ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: backend url has no host", shared.ErrInvalidConfig)
	}

	if path == "" {
		path = "/socket.io/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	q := url.Values{}
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
