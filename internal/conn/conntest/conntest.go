// Package conntest provides an in-memory Conn and Dialer so that sessions
// can be driven without a live server.
package conntest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomchat/roomchat/internal/conn"
	"github.com/roomchat/roomchat/internal/protocol"
)

// ErrConnClosed is returned by reads and writes on a closed Conn.
var ErrConnClosed = errors.New("conntest: connection closed")

// Conn is an in-memory websocket connection. Frames pushed with Inject are
// returned by ReadMessage in order; text frames written by the manager are
// recorded.
type Conn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []protocol.Envelope
	notify  chan struct{}
}

// NewConn returns an open Conn.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Inject queues an inbound event as if the server had sent it.
func (c *Conn) Inject(kind protocol.EventKind, payload any) error {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	return c.InjectRaw(frame)
}

// InjectRaw queues an inbound frame verbatim.
func (c *Conn) InjectRaw(frame []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	case c.inbound <- frame:
		return nil
	}
}

// ReadMessage blocks for the next injected frame.
func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, ErrConnClosed
	case frame := <-c.inbound:
		return websocket.TextMessage, frame, nil
	}
}

// WriteMessage records text frames and ignores control frames.
func (c *Conn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	c.mu.Lock()
	c.written = append(c.written, env)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) SetReadLimit(int64) {}
func (c *Conn) SetReadDeadline(time.Time) error { return nil }
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }
func (c *Conn) SetPongHandler(func(appData string) error) {}

// Close closes the connection. It is idempotent.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Written returns a copy of the envelopes written so far.
func (c *Conn) Written() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, len(c.written))
	copy(out, c.written)
	return out
}

// Kinds returns the event kinds written so far, in order.
func (c *Conn) Kinds() []protocol.EventKind {
	written := c.Written()
	kinds := make([]protocol.EventKind, len(written))
	for i, env := range written {
		kinds[i] = env.Event
	}
	return kinds
}

// WaitWritten blocks until at least n frames were written or timeout passes.
func (c *Conn) WaitWritten(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		count := len(c.written)
		c.mu.Unlock()
		if count >= n {
			return true
		}
		select {
		case <-c.notify:
		case <-deadline:
			return false
		}
	}
}

// Dialer hands out one Conn and records the dial.
type Dialer struct {
	Conn *Conn
	Err  error

	mu           sync.Mutex
	endpoint     string
	connectionID string
	dials        int
}

// NewDialer returns a dialer backed by a fresh Conn.
func NewDialer() *Dialer {
	return &Dialer{Conn: NewConn()}
}

// Dial implements conn.Dialer.
func (d *Dialer) Dial(_ context.Context, endpoint, connectionID string) (conn.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.endpoint = endpoint
	d.connectionID = connectionID
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conn, nil
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// ConnectionID returns the ID passed to the last Dial.
func (d *Dialer) ConnectionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectionID
}

// Endpoint returns the endpoint passed to the last Dial.
func (d *Dialer) Endpoint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endpoint
}
