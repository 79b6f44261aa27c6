package socket_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/desertthunder/vsa/internal/shared"
	"github.com/desertthunder/vsa/internal/socket"
	tu "github.com/desertthunder/vsa/internal/testing"
)

const wait = 2 * time.Second

type statusRecorder struct {
	mu      sync.Mutex
	changes []socket.StatusChange
}

func (r *statusRecorder) record(ch socket.StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, ch)
}

func (r *statusRecorder) all() []socket.StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]socket.StatusChange(nil), r.changes...)
}

func (r *statusRecorder) count(status socket.Status, reason string) int {
	n := 0
	for _, ch := range r.all() {
		if ch.Status == status && (reason == "" || ch.Reason == reason) {
			n++
		}
	}
	return n
}

func newChannel(t *testing.T, dialer *tu.FakeDialer, policy socket.ReconnectPolicy) (*socket.Channel, *statusRecorder) {
	t.Helper()
	ch := socket.New(socket.Options{
		URL:            "ws://backend.test/socket.io/?EIO=4&transport=websocket",
		Dialer:         dialer,
		ConnectTimeout: 200 * time.Millisecond,
		Policy:         policy,
	})
	rec := &statusRecorder{}
	ch.OnStatus(rec.record)
	t.Cleanup(func() { ch.Close() })
	return ch, rec
}

func credential() shared.Credential {
	return shared.NewCredential("tok-1", time.Time{})
}

func TestChannelConnect(t *testing.T) {
	t.Run("Missing Credential Fails Without Dialing", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		ch, _ := newChannel(t, dialer, socket.ReconnectPolicy{})

		for _, cred := range []shared.Credential{{}, shared.NewCredential("   ", time.Time{}), shared.NewCredential("old", time.Now().Add(-time.Hour))} {
			err := ch.Connect(context.Background(), cred)
			if !errors.Is(err, shared.ErrAuth) {
				t.Errorf("expected ErrAuth, got %v", err)
			}
		}
		if dialer.Dials() != 0 {
			t.Errorf("expected no dials, got %d", dialer.Dials())
		}
		if ch.Status() != socket.StatusDisconnected {
			t.Errorf("expected disconnected, got %s", ch.Status())
		}
	})

	t.Run("Handshake Binds Credential", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		ch, rec := newChannel(t, dialer, socket.ReconnectPolicy{})

		if err := ch.Connect(context.Background(), credential()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ch.Status() != socket.StatusConnected {
			t.Errorf("expected connected, got %s", ch.Status())
		}

		writes := dialer.Last().Writes()
		if len(writes) == 0 || writes[0] != `40{"token":"tok-1"}` {
			t.Errorf("expected namespace connect with token, got %v", writes)
		}

		changes := rec.all()
		if len(changes) != 2 || changes[0].Status != socket.StatusConnecting || changes[1].Status != socket.StatusConnected {
			t.Errorf("unexpected transitions %+v", changes)
		}
	})

	t.Run("Rejected Handshake Is An Auth Error", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		dialer.SetReject("Invalid or expired token")
		ch, _ := newChannel(t, dialer, socket.ReconnectPolicy{})

		err := ch.Connect(context.Background(), credential())
		if !errors.Is(err, shared.ErrAuth) {
			t.Fatalf("expected ErrAuth, got %v", err)
		}
		if !strings.Contains(err.Error(), "Invalid or expired token") {
			t.Errorf("expected server reason in error, got %v", err)
		}
		if !dialer.Last().Closed() {
			t.Error("expected rejected transport to be closed")
		}
	})

	t.Run("Dial Failure Is A Connection Error", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		dialer.SetFail(errors.New("connection refused"))
		ch, _ := newChannel(t, dialer, socket.ReconnectPolicy{})

		if err := ch.Connect(context.Background(), credential()); !errors.Is(err, shared.ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}

		dialer.SetFail(nil)
		if err := ch.Connect(context.Background(), credential()); err != nil {
			t.Errorf("expected retry by caller to succeed, got %v", err)
		}
	})

	t.Run("Unresponsive Server Times Out", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		dialer.SetSilent(true)
		ch, _ := newChannel(t, dialer, socket.ReconnectPolicy{})

		start := time.Now()
		err := ch.Connect(context.Background(), credential())
		if !errors.Is(err, shared.ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > wait {
			t.Errorf("connect exceeded its bound: %v", elapsed)
		}
		if ch.Status() != socket.StatusDisconnected {
			t.Errorf("expected disconnected, got %s", ch.Status())
		}
	})

	t.Run("Closed Channel Cannot Connect", func(t *testing.T) {
		ch, _ := newChannel(t, &tu.FakeDialer{}, socket.ReconnectPolicy{})
		ch.Close()

		if err := ch.Connect(context.Background(), credential()); !errors.Is(err, shared.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestChannelMessaging(t *testing.T) {
	t.Run("Send Requires Connection", func(t *testing.T) {
		ch, _ := newChannel(t, &tu.FakeDialer{}, socket.ReconnectPolicy{})

		if err := ch.Send("get_analyses", map[string]string{"token": "x"}); !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("Send Writes Event Packet", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		ch, _ := newChannel(t, dialer, socket.ReconnectPolicy{})
		if err := ch.Connect(context.Background(), credential()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := ch.Send("get_analyses", map[string]string{"token": "tok-1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := dialer.Last().CountWrites(`42["get_analyses",{"token":"tok-1"}]`); got != 1 {
			t.Errorf("expected one get_analyses packet, got %d", got)
		}
	})

	t.Run("Subscribe Delivers In Order", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		ch, _ := newChannel(t, dialer, socket.ReconnectPolicy{})

		var mu sync.Mutex
		var got []string
		unsubscribe := ch.Subscribe("analysis_step", func(data json.RawMessage) {
			var body struct {
				Step struct {
					Step string `json:"step"`
				} `json:"step"`
			}
			json.Unmarshal(data, &body)
			mu.Lock()
			got = append(got, body.Step.Step)
			mu.Unlock()
		})

		if err := ch.Connect(context.Background(), credential()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		transport := dialer.Last()
		for _, step := range []string{"download", "transcription", "sentiment"} {
			transport.Event("analysis_step", `{"analysis_id":"a1","step":{"step":"`+step+`"}}`)
		}
		transport.Event("other", `{}`)

		ok := tu.Eventually(wait, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 3
		})
		if !ok {
			t.Fatalf("expected 3 steps, got %v", got)
		}
		if strings.Join(got, ",") != "download,transcription,sentiment" {
			t.Errorf("unexpected order %v", got)
		}

		unsubscribe()
		transport.Event("analysis_step", `{"analysis_id":"a1","step":{"step":"late"}}`)
		transport.Push("2")
		transport.WaitForWrites("3", 1, wait)

		mu.Lock()
		defer mu.Unlock()
		if len(got) != 3 {
			t.Errorf("expected no delivery after unsubscribe, got %v", got)
		}
	})

	t.Run("Ping Is Answered", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		ch, _ := newChannel(t, dialer, socket.ReconnectPolicy{})
		if err := ch.Connect(context.Background(), credential()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		dialer.Last().Push("2")
		if !dialer.Last().WaitForWrites("3", 1, wait) {
			t.Error("expected pong")
		}
	})
}

func TestChannelReconnect(t *testing.T) {
	policy := socket.ReconnectPolicy{Interval: 5 * time.Millisecond, MaxAttempts: 3}

	drops := []struct {
		name   string
		drop   func(*tu.FakeTransport)
		reason string
	}{
		{"Server Disconnect", func(tr *tu.FakeTransport) { tr.Push("41") }, socket.ReasonServerDisconnect},
		{"Transport Error", func(tr *tu.FakeTransport) { tr.Fail() }, socket.ReasonTransportError},
		{"Transport Close", func(tr *tu.FakeTransport) { tr.Push("1") }, socket.ReasonTransportClose},
	}

	for _, tt := range drops {
		t.Run(tt.name+" Reconnects Exactly Once", func(t *testing.T) {
			dialer := &tu.FakeDialer{}
			ch, rec := newChannel(t, dialer, policy)
			if err := ch.Connect(context.Background(), credential()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			tt.drop(dialer.Last())

			if !tu.Eventually(wait, func() bool { return rec.count(socket.StatusConnected, socket.ReasonReconnect) == 1 }) {
				t.Fatalf("expected a reconnect, got %+v", rec.all())
			}
			time.Sleep(50 * time.Millisecond)

			if dialer.Dials() != 2 {
				t.Errorf("expected exactly 2 dials, got %d", dialer.Dials())
			}
			if got := rec.count(socket.StatusDisconnected, tt.reason); got != 1 {
				t.Errorf("expected one %q transition, got %d", tt.reason, got)
			}
			if ch.Status() != socket.StatusConnected {
				t.Errorf("expected connected, got %s", ch.Status())
			}
			if err := ch.Send("get_analyses", nil); err != nil {
				t.Errorf("expected send on new transport, got %v", err)
			}
		})
	}

	t.Run("Gives Up After Policy Attempts", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		ch, rec := newChannel(t, dialer, policy)
		if err := ch.Connect(context.Background(), credential()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		dialer.SetFail(errors.New("connection refused"))
		dialer.Last().Fail()

		var final socket.StatusChange
		ok := tu.Eventually(wait, func() bool {
			for _, c := range rec.all() {
				if c.Reason == socket.ReasonRetriesExhausted {
					final = c
					return true
				}
			}
			return false
		})
		if !ok {
			t.Fatalf("expected retries to exhaust, got %+v", rec.all())
		}
		if !errors.Is(final.Err, shared.ErrRetriesExhausted) {
			t.Errorf("expected ErrRetriesExhausted, got %v", final.Err)
		}
		if got := rec.count(socket.StatusConnecting, socket.ReasonReconnect); got != 3 {
			t.Errorf("expected 3 attempts, got %d", got)
		}
		if ch.Status() != socket.StatusDisconnected {
			t.Errorf("expected disconnected, got %s", ch.Status())
		}
	})

	t.Run("Auth Rejection Stops Retrying", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		ch, rec := newChannel(t, dialer, policy)
		if err := ch.Connect(context.Background(), credential()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		dialer.SetReject("Invalid or expired token")
		dialer.Last().Push("41")

		ok := tu.Eventually(wait, func() bool { return rec.count(socket.StatusDisconnected, socket.ReasonReconnectFailed) == 1 })
		if !ok {
			t.Fatalf("expected a failed reconnect, got %+v", rec.all())
		}
		time.Sleep(50 * time.Millisecond)

		if got := rec.count(socket.StatusConnecting, socket.ReasonReconnect); got != 1 {
			t.Errorf("expected a single attempt, got %d", got)
		}
		for _, c := range rec.all() {
			if c.Reason == socket.ReasonReconnectFailed && !errors.Is(c.Err, shared.ErrAuth) {
				t.Errorf("expected ErrAuth, got %v", c.Err)
			}
		}
		if ch.Status() != socket.StatusDisconnected {
			t.Errorf("expected disconnected, got %s", ch.Status())
		}
	})

	t.Run("Close Never Reconnects", func(t *testing.T) {
		dialer := &tu.FakeDialer{}
		ch, rec := newChannel(t, dialer, policy)
		if err := ch.Connect(context.Background(), credential()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		transport := dialer.Last()
		if err := ch.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		time.Sleep(50 * time.Millisecond)

		if dialer.Dials() != 1 {
			t.Errorf("expected no redial, got %d dials", dialer.Dials())
		}
		if !transport.Closed() {
			t.Error("expected transport to be released")
		}
		if transport.CountWrites("41") != 1 {
			t.Error("expected namespace disconnect packet")
		}
		if writes := transport.Writes(); len(writes) == 0 || writes[len(writes)-1] != "1" {
			t.Errorf("expected engine close packet last, got %v", writes)
		}
		if got := rec.count(socket.StatusDisconnected, socket.ReasonClientDisconnect); got != 1 {
			t.Errorf("expected one client disconnect transition, got %d", got)
		}
		if err := ch.Send("get_analyses", nil); !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected after close, got %v", err)
		}
		if err := ch.Close(); err != nil {
			t.Errorf("expected second close to be a no-op, got %v", err)
		}
	})
}

func TestWebSocketDialer(t *testing.T) {
	upgrader := websocket.Upgrader{}

	t.Run("Connects To Socket.IO Server", func(t *testing.T) {
		received := make(chan string, 4)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("EIO") != "4" {
				t.Errorf("expected EIO=4, got %s", r.URL.RawQuery)
			}
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()

			conn.WriteMessage(websocket.TextMessage, []byte(tu.OpenPacket))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(msg)
			conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"srv"}`))
			conn.WriteMessage(websocket.TextMessage, []byte(`42["connected",{"message":"Connected to server"}]`))

			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				received <- string(msg)
			}
		}))
		defer server.Close()

		endpoint, err := socket.EndpointURL(server.URL, "/socket.io/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ch := socket.New(socket.Options{URL: endpoint, ConnectTimeout: time.Second})
		defer ch.Close()

		greeting := make(chan string, 1)
		ch.Subscribe("connected", func(data json.RawMessage) {
			var body struct {
				Message string `json:"message"`
			}
			json.Unmarshal(data, &body)
			greeting <- body.Message
		})

		if err := ch.Connect(context.Background(), credential()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		select {
		case msg := <-received:
			if msg != `40{"token":"tok-1"}` {
				t.Errorf("unexpected connect packet %s", msg)
			}
		case <-time.After(wait):
			t.Fatal("server never received connect packet")
		}

		select {
		case msg := <-greeting:
			if msg != "Connected to server" {
				t.Errorf("unexpected greeting %q", msg)
			}
		case <-time.After(wait):
			t.Fatal("expected connected event")
		}

		if err := ch.Send("get_analyses", map[string]string{"token": "tok-1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		select {
		case msg := <-received:
			if msg != `42["get_analyses",{"token":"tok-1"}]` {
				t.Errorf("unexpected event packet %s", msg)
			}
		case <-time.After(wait):
			t.Fatal("server never received event")
		}
	})

	t.Run("Unauthorized Upgrade", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}))
		defer server.Close()

		endpoint, _ := socket.EndpointURL(server.URL, "")
		_, err := socket.WebSocketDialer{}.Dial(context.Background(), endpoint, nil)
		if !errors.Is(err, shared.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
	})

	t.Run("Unreachable Server", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		endpoint, _ := socket.EndpointURL(server.URL, "")
		server.Close()

		_, err := socket.WebSocketDialer{}.Dial(context.Background(), endpoint, nil)
		if !errors.Is(err, shared.ErrConnection) {
			t.Errorf("expected ErrConnection, got %v", err)
		}
	})
}
