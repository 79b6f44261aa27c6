package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/desertthunder/vsa/internal/shared"
)

// DefaultConnectTimeout bounds a single connect attempt.
const DefaultConnectTimeout = 60 * time.Second

// Status is the connection state of a [Channel].
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
	default:
		return "disconnected"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

const (
	ReasonConnect          = "connect"
	ReasonConnectFailed    = "connect failed"
	ReasonReconnect        = "reconnect"
	ReasonReconnectFailed  = "reconnect failed"
	ReasonRetriesExhausted = "retries exhausted"
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

var (
	errServerDisconnect = fmt.Errorf("%w: %s", shared.ErrConnection, ReasonServerDisconnect)
	errTransportClose   = fmt.Errorf("%w: %s", shared.ErrConnection, ReasonTransportClose)
)

// StatusChange is delivered to [Channel.OnStatus] listeners on every transition.
//
// Attempt is the 1-based reconnect attempt, zero for the initial connect.
type StatusChange struct {
	Status  Status
	Reason  string
	Attempt int
	Err     error
}

// Handler receives the payload of one server event.
type Handler func(data json.RawMessage)

// Options configures a [Channel].
type Options struct {
	URL            string // WebSocket endpoint, see [EndpointURL]
	Dialer         Dialer
	ConnectTimeout time.Duration
	Policy         ReconnectPolicy
	Logger         *log.Logger
}

// Channel is one authenticated Socket.IO connection to the backend's default namespace.
//
// Connect binds the credential for the channel's lifetime. After a drop the channel redials under its [ReconnectPolicy];
// Close ends the lifecycle and never reconnects.
type Channel struct {
	url     string
	dialer  Dialer
	timeout time.Duration
	policy  ReconnectPolicy
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	status    Status
	conn      Transport
	cred      shared.Credential
	started   bool
	closed    bool
	done      chan struct{}
	nextID    uint64
	handlers  map[string]map[uint64]Handler
	listeners map[uint64]func(StatusChange)

	writeMu sync.Mutex
}

// New creates a disconnected channel.
func New(opts Options) *Channel {
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		url:       opts.URL,
		dialer:    opts.Dialer,
		timeout:   opts.ConnectTimeout,
		policy:    opts.Policy,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		handlers:  make(map[string]map[uint64]Handler),
		listeners: make(map[uint64]func(StatusChange)),
	}
}

// Status returns the current connection status.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect dials the backend and authenticates with cred.
//
// A missing or expired credential fails with [shared.ErrAuth] before any I/O. A rejected handshake also yields
// [shared.ErrAuth]; a transport failure or timeout yields [shared.ErrConnection].
func (c *Channel) Connect(ctx context.Context, cred shared.Credential) error {
	if err := cred.Check(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return shared.ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("%w: channel already connected", shared.ErrConnection)
	}
	c.started = true
	c.cred = cred
	c.mu.Unlock()

	c.setStatus(StatusChange{Status: StatusConnecting, Reason: ReasonConnect})

	conn, open, pending, err := c.dial(ctx, cred)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		c.setStatus(StatusChange{Status: StatusDisconnected, Reason: ReasonConnectFailed, Err: err})
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return shared.ErrClosed
	}
	c.conn = conn
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.logger.Info("connected", "sid", open.SID)
	c.setStatus(StatusChange{Status: StatusConnected, Reason: ReasonConnect})
	go c.run(done, conn, open, pending)
	return nil
}

// Send emits event with payload. It fails with [shared.ErrNotConnected] unless the channel is connected.
func (c *Channel) Send(event string, payload any) error {
	c.mu.Lock()
	conn, status := c.conn, c.status
	c.mu.Unlock()

	if status != StatusConnected || conn == nil {
		return fmt.Errorf("%w: cannot send %s while %s", shared.ErrNotConnected, event, status)
	}

	pkt, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	if err := c.write(conn, pkt); err != nil {
		return fmt.Errorf("%w: send %s: %v", shared.ErrConnection, event, err)
	}

	c.logger.Debug("sent", "event", event)
	return nil
}

// Subscribe registers handler for event. Handlers run on the channel's read goroutine and must not block.
func (c *Channel) Subscribe(event string, handler Handler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = handler

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

// OnStatus registers fn for connection status changes.
func (c *Channel) OnStatus(fn func(StatusChange)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Close disconnects from the namespace and releases the transport. The channel cannot be reused.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()

	c.cancel()

	var err error
	if conn != nil {
		_ = c.write(conn, disconnectPacket)
		_ = c.write(conn, closePacket)
		err = conn.Close()
	}
	if done != nil {
		<-done
	}

	c.publish(StatusChange{Status: StatusDisconnected, Reason: ReasonClientDisconnect})
	c.logger.Info("closed")
	return err
}

func (c *Channel) run(done chan struct{}, conn Transport, open OpenPayload, pending []Frame) {
	defer close(done)

	for {
		err := c.readLoop(conn, open, pending)
		conn.Close()
		if c.isClosed() {
			return
		}

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		c.logger.Warn("connection lost", "err", err)
		c.setStatus(StatusChange{Status: StatusDisconnected, Reason: reasonFor(err), Err: err})

		conn, open, pending, err = c.reconnect()
		if err != nil {
			c.mu.Lock()
			c.started = false
			c.mu.Unlock()
			return
		}
	}
}

func (c *Channel) reconnect() (Transport, OpenPayload, []Frame, error) {
	c.mu.Lock()
	cred := c.cred
	c.mu.Unlock()

	for attempt := 1; ; attempt++ {
		wait, ok := c.policy.Next(attempt)
		if !ok {
			err := fmt.Errorf("%w after %d attempts", shared.ErrRetriesExhausted, attempt-1)
			c.logger.Error("giving up", "err", err)
			c.setStatus(StatusChange{Status: StatusDisconnected, Reason: ReasonRetriesExhausted, Attempt: attempt - 1, Err: err})
			return nil, OpenPayload{}, nil, err
		}

		timer := time.NewTimer(wait)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return nil, OpenPayload{}, nil, shared.ErrClosed
		case <-timer.C:
		}

		c.setStatus(StatusChange{Status: StatusConnecting, Reason: ReasonReconnect, Attempt: attempt})
		conn, open, pending, err := c.dial(c.ctx, cred)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				conn.Close()
				return nil, OpenPayload{}, nil, shared.ErrClosed
			}
			c.conn = conn
			c.mu.Unlock()

			c.logger.Info("reconnected", "sid", open.SID, "attempt", attempt)
			c.setStatus(StatusChange{Status: StatusConnected, Reason: ReasonReconnect, Attempt: attempt})
			return conn, open, pending, nil
		}

		if c.ctx.Err() != nil {
			return nil, OpenPayload{}, nil, shared.ErrClosed
		}

		c.logger.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
		c.setStatus(StatusChange{Status: StatusDisconnected, Reason: ReasonReconnectFailed, Attempt: attempt, Err: err})
		if errors.Is(err, shared.ErrAuth) {
			return nil, OpenPayload{}, nil, err
		}
	}
}

// dial opens a transport and completes both handshakes within the connect timeout.
// Events that arrive ahead of the namespace ack are returned for dispatch once the channel is connected.
func (c *Channel) dial(ctx context.Context, cred shared.Credential) (Transport, OpenPayload, []Frame, error) {
	if err := cred.Check(); err != nil {
		return nil, OpenPayload{}, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Token())

	conn, err := c.dialer.Dial(ctx, c.url, header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, OpenPayload{}, nil, c.dialAborted(ctx)
		}
		if errors.Is(err, shared.ErrAuth) || errors.Is(err, shared.ErrConnection) {
			return nil, OpenPayload{}, nil, err
		}
		return nil, OpenPayload{}, nil, fmt.Errorf("%w: %v", shared.ErrConnection, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	open, pending, err := c.handshake(conn, cred)
	if !stop() {
		conn.Close()
		return nil, OpenPayload{}, nil, c.dialAborted(ctx)
	}
	if err != nil {
		conn.Close()
		return nil, OpenPayload{}, nil, err
	}

	_ = conn.SetReadDeadline(time.Time{})
	return conn, open, pending, nil
}

func (c *Channel) dialAborted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: connect timed out after %s", shared.ErrConnection, c.timeout)
	}
	return fmt.Errorf("%w: connect canceled", shared.ErrConnection)
}

func (c *Channel) handshake(conn Transport, cred shared.Credential) (OpenPayload, []Frame, error) {
	var open OpenPayload

	f, err := readFrame(conn)
	if err != nil {
		return open, nil, err
	}
	if f.Kind != FrameOpen {
		return open, nil, fmt.Errorf("%w: expected open packet, got %s", shared.ErrProtocol, f.Kind)
	}
	if err := json.Unmarshal(f.Data, &open); err != nil {
		return open, nil, fmt.Errorf("%w: open payload: %v", shared.ErrProtocol, err)
	}

	pkt, err := EncodeConnect(map[string]string{"token": cred.Token()})
	if err != nil {
		return open, nil, err
	}
	if err := c.write(conn, pkt); err != nil {
		return open, nil, fmt.Errorf("%w: %v", shared.ErrConnection, err)
	}

	var pending []Frame
	for {
		f, err := readFrame(conn)
		if err != nil {
			return open, nil, err
		}

		switch f.Kind {
		case FramePing:
			if err := c.write(conn, pongPacket); err != nil {
				return open, nil, fmt.Errorf("%w: %v", shared.ErrConnection, err)
			}
		case FrameConnect:
			return open, pending, nil
		case FrameConnectError:
			return open, nil, fmt.Errorf("%w: %s", shared.ErrAuth, ConnectErrorMessage(f.Data))
		case FrameEvent:
			pending = append(pending, f)
		case FrameClose, FrameDisconnect:
			return open, nil, fmt.Errorf("%w: closed during handshake", shared.ErrConnection)
		}
	}
}

func (c *Channel) readLoop(conn Transport, open OpenPayload, pending []Frame) error {
	for _, f := range pending {
		c.dispatch(f)
	}

	heartbeat := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	for {
		if heartbeat > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(heartbeat))
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrConnection, err)
		}

		f, err := DecodeFrame(msg)
		if err != nil {
			c.logger.Warn("dropping malformed packet", "err", err)
			continue
		}

		switch f.Kind {
		case FramePing:
			if err := c.write(conn, pongPacket); err != nil {
				return fmt.Errorf("%w: pong: %v", shared.ErrConnection, err)
			}
		case FrameEvent:
			c.dispatch(f)
		case FrameDisconnect:
			return errServerDisconnect
		case FrameClose:
			return errTransportClose
		}
	}
}

func (c *Channel) dispatch(f Frame) {
	if f.Namespace != "" && f.Namespace != "/" {
		return
	}

	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers[f.Event]))
	for _, h := range c.handlers[f.Event] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	c.logger.Debug("received", "event", f.Event, "handlers", len(handlers))
	for _, h := range handlers {
		h(f.Data)
	}
}

func (c *Channel) write(conn Transport, pkt []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, pkt)
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// setStatus records and publishes a transition unless the channel was closed.
func (c *Channel) setStatus(ch StatusChange) {
	if c.isClosed() {
		return
	}
	c.publish(ch)
}

func (c *Channel) publish(ch StatusChange) {
	c.mu.Lock()
	c.status = ch.Status
	listeners := make([]func(StatusChange), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(ch)
	}
}

func readFrame(conn Transport) (Frame, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", shared.ErrConnection, err)
	}
	return DecodeFrame(msg)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, errServerDisconnect):
		return ReasonServerDisconnect
	case errors.Is(err, errTransportClose):
		return ReasonTransportClose
	default:
		return ReasonTransportError
	}
}
