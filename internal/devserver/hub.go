package devserver

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/roomchat/roomchat/internal/protocol"
)

const sendBufferSize = 256

// Client is one websocket connection to the dev server.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	send   chan []byte
	mu     sync.Mutex
	closed bool

	// Set by joinRoom; empty until then.
	username string
	room     string
}

// NewClient creates a new client for conn.
func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   id,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send queues a frame to be written to the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Slow consumer, drop it.
		c.closeLocked()
	}
}

// SendEvent encodes and queues one event.
func (c *Client) SendEvent(kind protocol.EventKind, payload any) error {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	c.Send(data)
	return nil
}

// Close closes the send channel, which makes the write pump hang up.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ID returns the connection ID.
func (c *Client) ID() string {
	return c.id
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Identity returns the username and room set by the last join.
func (c *Client) Identity() (username, room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username, c.room
}

// Joined reports whether the client has joined a room.
func (c *Client) Joined() bool {
	_, room := c.Identity()
	return room != ""
}

func (c *Client) join(username, room string) (prevRoom string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prevRoom = c.room
	c.username = username
	c.room = room
	return prevRoom
}

// Hub tracks connected clients and their rooms.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub and closes it. It reports whether
// the client was registered.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	client.Close()
	return ok
}

// BroadcastRoom sends data to every client in room except skip, which may be nil.
func (h *Hub) BroadcastRoom(room string, data []byte, skip *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client == skip {
			continue
		}
		if _, r := client.Identity(); r == room {
			client.Send(data)
		}
	}
}

// BroadcastRoomEvent encodes one event and sends it to room except skip.
func (h *Hub) BroadcastRoomEvent(room string, kind protocol.EventKind, payload any, skip *Client) error {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	h.BroadcastRoom(room, data, skip)
	return nil
}

// FindByUsername returns every joined client using username.
func (h *Hub) FindByUsername(username string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var found []*Client
	for client := range h.clients {
		if name, _ := client.Identity(); name == username {
			found = append(found, client)
		}
	}
	return found
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of clients joined to room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if _, r := client.Identity(); r == room {
			n++
		}
	}
	return n
}

// Close closes every client connection.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
