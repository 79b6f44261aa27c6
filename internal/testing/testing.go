// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/vsa/internal/socket"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// OpenPacket is the Engine.IO handshake [FakeDialer] transports start with.
const OpenPacket = `0{"sid":"eio-test","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`

// FakeTransport is an in-memory [socket.Transport]. The test plays the server by pushing packets.
type FakeTransport struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	writes  []string
	onWrite func(msg string)
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{inbound: make(chan []byte, 256), closed: make(chan struct{})}
}

// Push queues a server packet for the client to read.
func (f *FakeTransport) Push(msg string) {
	select {
	case f.inbound <- []byte(msg):
	case <-f.closed:
	}
}

// Event queues a Socket.IO event packet.
func (f *FakeTransport) Event(name, payload string) {
	f.Push(`42["` + name + `",` + payload + `]`)
}

// Fail simulates a transport error: pending and future reads fail.
func (f *FakeTransport) Fail() { f.Close() }

func (f *FakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case <-f.closed:
		return 0, nil, errors.New("use of closed network connection")
	default:
	}

	select {
	case msg := <-f.inbound:
		return 1, msg, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (f *FakeTransport) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("write on closed connection")
	default:
	}

	f.mu.Lock()
	f.writes = append(f.writes, string(data))
	hook := f.onWrite
	f.mu.Unlock()

	if hook != nil {
		hook(string(data))
	}
	return nil
}

func (f *FakeTransport) SetReadDeadline(time.Time) error { return nil }

func (f *FakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// Closed reports whether the client released the transport.
func (f *FakeTransport) Closed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// Writes returns every packet the client wrote, in order.
func (f *FakeTransport) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// CountWrites counts written packets starting with prefix.
func (f *FakeTransport) CountWrites(prefix string) int {
	n := 0
	for _, w := range f.Writes() {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}

// WaitForWrites polls until at least n packets starting with prefix were written.
func (f *FakeTransport) WaitForWrites(prefix string, n int, timeout time.Duration) bool {
	return Eventually(timeout, func() bool { return f.CountWrites(prefix) >= n })
}

// FakeDialer hands out [FakeTransport] values that complete the handshake on their own.
type FakeDialer struct {
	mu         sync.Mutex
	fail       error
	reject     string
	silent     bool
	transports []*FakeTransport
}

// SetFail makes subsequent dials return err. A nil err restores normal dialing.
func (d *FakeDialer) SetFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

// SetReject makes subsequent namespace connects fail with message.
func (d *FakeDialer) SetReject(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reject = message
}

// SetSilent makes subsequent transports never answer, simulating an unresponsive server.
func (d *FakeDialer) SetSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

func (d *FakeDialer) Dial(ctx context.Context, url string, header http.Header) (socket.Transport, error) {
	d.mu.Lock()
	fail, reject, silent := d.fail, d.reject, d.silent
	t := NewFakeTransport()
	if fail == nil {
		d.transports = append(d.transports, t)
	}
	d.mu.Unlock()

	if fail != nil {
		return nil, fail
	}
	if silent {
		return t, nil
	}

	t.onWrite = func(msg string) {
		if !strings.HasPrefix(msg, "40") {
			return
		}
		if reject != "" {
			t.Push(`44{"message":"` + reject + `"}`)
			return
		}
		t.Push(`40{"sid":"ns-test"}`)
	}
	t.Push(OpenPacket)
	return t, nil
}

// Dials returns the number of transports opened so far.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

// Last returns the most recently opened transport, or nil.
func (d *FakeDialer) Last() *FakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
