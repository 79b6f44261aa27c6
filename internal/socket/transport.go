package socket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/desertthunder/vsa/internal/shared"
)

// Transport is a message-oriented connection. [*websocket.Conn] satisfies it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a [Transport] to the endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Transport, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial opens the WebSocket. A 401 or 403 on the upgrade request maps to [shared.ErrAuth].
func (d WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: upgrade rejected with %s", shared.ErrAuth, resp.Status)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrConnection, err)
	}
	return conn, nil
}
