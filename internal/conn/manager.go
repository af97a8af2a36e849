// Package conn owns the client's single connection to the chat server.
//
// The Manager dials once, keeps exactly one handler per inbound event kind,
// sends outbound events fire-and-forget through a bounded queue, and tears
// the connection down exactly once. Inbound frames are read by one goroutine
// and dispatched serially in arrival order.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roomchat/roomchat/internal/protocol"
)

var (
	// ErrClosed is returned by operations on a manager that was torn down.
	ErrClosed = errors.New("connection manager closed")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrHandlerRegistered is returned when a second handler is registered for an event kind.
	ErrHandlerRegistered = errors.New("handler already registered for event")

	// ErrNilHandler is returned when On is given a nil handler.
	ErrNilHandler = errors.New("nil handler")
)

// Handler receives the raw payload of one inbound event.
type Handler func(data json.RawMessage)

// Options tunes the pumps.
type Options struct {
	// Time allowed to write a frame to the server.
	WriteWait time.Duration

	// Time allowed to read the next pong from the server.
	PongWait time.Duration

	// Ping period. Must be less than PongWait.
	PingPeriod time.Duration

	// Maximum inbound frame size.
	MaxMessageSize int64

	// Outbound queue length.
	SendBuffer int
}

// DefaultOptions returns the pump settings used by the chat client.
func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	return o
}

// Handle identifies the live connection.
type Handle struct {
	id       string
	endpoint string
}

// ID returns the connection ID.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// Endpoint returns the dialed endpoint.
func (h *Handle) Endpoint() string {
	if h == nil {
		return ""
	}
	return h.endpoint
}

type registration struct {
	id      uint64
	handler Handler
}

// Subscription is the registration returned by On.
type Subscription struct {
	manager *Manager
	kind    protocol.EventKind
	id      uint64
	once    sync.Once
}

// Release removes the handler. It is safe to call more than once.
func (s *Subscription) Release() {
	s.once.Do(func() {
		s.manager.release(s.kind, s.id)
	})
}

// Manager owns the connection handle.
type Manager struct {
	dialer Dialer
	opts   Options

	mu       sync.Mutex
	handlers map[protocol.EventKind]registration
	nextID   uint64
	conn     Conn
	handle   *Handle
	closed   bool

	// dispatchMu is held for the whole of each handler invocation so that
	// Teardown can wait out an in-flight handler.
	dispatchMu sync.Mutex

	send       chan []byte
	done       chan struct{}
	readerDone chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// NewManager creates a manager that dials with dialer.
func NewManager(dialer Dialer, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		dialer:   dialer,
		opts:     opts,
		handlers: make(map[protocol.EventKind]registration),
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
	}
}

// Connect dials endpoint and starts the pumps. Handlers registered before
// Connect see every frame the server sends.
func (m *Manager) Connect(ctx context.Context, endpoint string) (*Handle, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.handle != nil {
		m.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	// Reserve the slot so concurrent Connects fail fast.
	handle := &Handle{id: uuid.NewString(), endpoint: endpoint}
	m.handle = handle
	m.mu.Unlock()

	c, err := m.dialer.Dial(ctx, endpoint, handle.id)
	if err != nil {
		m.mu.Lock()
		m.handle = nil
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		c.Close()
		return nil, ErrClosed
	}
	m.conn = c
	m.readerDone = make(chan struct{})
	m.writerDone = make(chan struct{})
	m.mu.Unlock()

	go m.writePump(c)
	go m.readPump(c)

	log.Printf("Connected to %s as %s", endpoint, handle.id)
	return handle, nil
}

// Handle returns the live connection handle, or nil before Connect and after Teardown.
func (m *Manager) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.conn == nil {
		return nil
	}
	return m.handle
}

// On registers the handler for kind. Only one handler per kind is allowed.
func (m *Manager) On(kind protocol.EventKind, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if _, ok := m.handlers[kind]; ok {
		return nil, ErrHandlerRegistered
	}

	m.nextID++
	m.handlers[kind] = registration{id: m.nextID, handler: handler}
	return &Subscription{manager: m, kind: kind, id: m.nextID}, nil
}

func (m *Manager) release(kind protocol.EventKind, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg, ok := m.handlers[kind]; ok && reg.id == id {
		delete(m.handlers, kind)
	}
}

// Emit queues an outbound event. There is no delivery confirmation; frames
// that cannot be queued are logged and dropped.
func (m *Manager) Emit(kind protocol.EventKind, payload any) {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		log.Printf("Dropping %s: %v", kind, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.conn == nil {
		log.Printf("Dropping %s: not connected", kind)
		return
	}

	select {
	case m.send <- frame:
	default:
		log.Printf("Dropping %s: send queue full", kind)
	}
}

// Teardown closes the connection and invalidates every handler. It is
// idempotent. When it returns no handler is running and none will run again.
// It must not be called from inside a handler.
func (m *Manager) Teardown() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.handlers = make(map[protocol.EventKind]registration)
		c := m.conn
		writerDone := m.writerDone
		close(m.done)
		m.mu.Unlock()

		// Wait for an in-flight handler.
		m.dispatchMu.Lock()
		m.dispatchMu.Unlock()

		if c == nil {
			return
		}
		<-writerDone
		c.Close()
		log.Printf("Connection closed")
	})
}

// Done is closed when the manager is torn down.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) dispatch(env protocol.Envelope) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	reg, ok := m.handlers[env.Event]
	closed := m.closed
	m.mu.Unlock()

	if closed || !ok {
		return
	}
	reg.handler(env.Data)
}

// readPump reads frames from the server and dispatches them in order.
func (m *Manager) readPump(c Conn) {
	defer close(m.readerDone)

	c.SetReadLimit(m.opts.MaxMessageSize)
	c.SetReadDeadline(time.Now().Add(m.opts.PongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(m.opts.PongWait))
		return nil
	})

	for {
		_, frame, err := c.ReadMessage()
		if err != nil {
			select {
			case <-m.done:
			default:
				// Connection loss is not surfaced to the session.
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("WebSocket error: %v", err)
				} else {
					log.Printf("Connection lost: %v", err)
				}
			}
			return
		}
		c.SetReadDeadline(time.Now().Add(m.opts.PongWait))

		env, err := protocol.Decode(frame)
		if err != nil {
			log.Printf("Skipping frame: %v", err)
			continue
		}
		if !env.Event.IsInbound() {
			log.Printf("Skipping client-only event %s", env.Event)
			continue
		}

		m.dispatch(env)
	}
}

// writePump drains the send queue to the connection and keeps it alive.
func (m *Manager) writePump(c Conn) {
	ticker := time.NewTicker(m.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		close(m.writerDone)
	}()

	for {
		select {
		case frame := <-m.send:
			c.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("Write failed: %v", err)
				return
			}
		case <-ticker.C:
			c.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-m.readerDone:
			return
		case <-m.done:
			c.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
