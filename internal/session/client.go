// Package session implements the client-side chat session: one connection,
// one Session record, and the controllers that move it between states.
//
// States: Disconnected -> Connected(NotJoined) -> Connected(Joined).
// JoinRoom moves to Joined, LeaveRoom back to NotJoined (the connection stays
// open), Close tears the connection down and is terminal. Connection loss is
// not modeled.
//
// User intents and inbound server events are applied one at a time under the
// session lock, in the order they arrive.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/roomchat/roomchat/internal/conn"
	"github.com/roomchat/roomchat/internal/messagelog"
	"github.com/roomchat/roomchat/internal/model"
	"github.com/roomchat/roomchat/internal/protocol"
)

// Config holds what Start needs to bring a session up.
type Config struct {
	Endpoint string
	Rooms    model.RoomSet
	Conn     conn.Options
}

// Client is one chat session bound to one connection.
type Client struct {
	manager *conn.Manager
	rooms   *RoomController
	typing  *TypingIndicator
	log     *messagelog.Log
	notices *NotificationRelay

	mu      sync.Mutex
	state   model.Session
	handle  *conn.Handle
	subs    []*conn.Subscription
	closed  bool
	changes chan struct{}

	closeOnce sync.Once
}

// New creates a session on manager and registers its inbound handlers. The
// manager must not be connected yet, or early frames may be missed.
func New(manager *conn.Manager, rooms model.RoomSet) (*Client, error) {
	if len(rooms.Rooms()) == 0 {
		rooms = model.DefaultRoomSet()
	}

	c := &Client{
		manager: manager,
		rooms:   NewRoomController(rooms, manager),
		typing:  NewTypingIndicator(manager),
		log:     messagelog.New(),
		notices: NewNotificationRelay(DefaultNotificationCapacity),
		state:   model.NewSession(rooms),
		changes: make(chan struct{}, 1),
	}

	if err := c.register(); err != nil {
		return nil, err
	}
	return c, nil
}

// Start creates a manager, a session on it, and connects to cfg.Endpoint.
func Start(ctx context.Context, dialer conn.Dialer, cfg Config) (*Client, error) {
	manager := conn.NewManager(dialer, cfg.Conn)

	c, err := New(manager, cfg.Rooms)
	if err != nil {
		manager.Teardown()
		return nil, err
	}

	if err := c.Connect(ctx, cfg.Endpoint); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Connect opens the connection.
func (c *Client) Connect(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return model.ErrSessionClosed
	}

	h, err := c.manager.Connect(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()

	c.changed()
	return nil
}

// Close ends the session: handlers are released and the connection is torn
// down. Every later intent and late inbound event is a no-op.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		subs := c.subs
		c.subs = nil
		c.mu.Unlock()

		for _, sub := range subs {
			sub.Release()
		}
		c.manager.Teardown()
		c.changed()
	})
}

// connected reports whether intents may reach the server. Callers hold c.mu.
func (c *Client) connected() bool {
	return !c.closed && c.handle != nil
}

// SetUsername updates the username input, capitalizing its first letter.
func (c *Client) SetUsername(name string) {
	c.mutate(func() {
		c.state.Username = model.Capitalize(name)
	})
}

// SelectRoom changes the selected room.
func (c *Client) SelectRoom(room model.Room) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return model.ErrSessionClosed
	}
	err := c.rooms.Select(&c.state, room)
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.changed()
	return nil
}

// SetRecipient sets the private-message recipient. Empty means the whole room.
func (c *Client) SetRecipient(recipient string) {
	c.mutate(func() {
		c.state.Recipient = recipient
	})
}

// EditDraft replaces the draft and signals typing or notTyping.
func (c *Client) EditDraft(text string) {
	c.mutate(func() {
		c.state.Draft = text
		if c.connected() {
			c.typing.DraftChanged(text)
		}
	})
}

// JoinRoom asks the server to join the selected room under the current
// username. Without a username or a connection it does nothing. It reports
// whether the join was sent.
func (c *Client) JoinRoom() bool {
	c.mu.Lock()
	if !c.connected() {
		c.mu.Unlock()
		return false
	}
	joined := c.rooms.Join(&c.state, c.handle.ID())
	c.mu.Unlock()

	if joined {
		c.changed()
	}
	return joined
}

// SendMessage posts the draft to the selected room, or privately to the
// recipient when one is set, then clears the draft and signals notTyping.
// An empty draft does nothing. Nothing is added to the log until the server
// echoes the message back. It reports whether the message was sent.
func (c *Client) SendMessage() bool {
	c.mu.Lock()
	if !c.connected() || c.state.Draft == "" {
		c.mu.Unlock()
		return false
	}

	c.manager.Emit(protocol.EventSendMessage, protocol.SendMessagePayload{
		Room:      string(c.state.Room),
		Message:   c.state.Draft,
		Recipient: c.state.Recipient,
	})
	c.state.Draft = ""
	c.typing.MessageSent()
	c.mu.Unlock()

	c.changed()
	return true
}

// LeaveRoom returns to the default room, not joined, with an empty draft.
// The server is not notified.
func (c *Client) LeaveRoom() {
	c.mutate(func() {
		c.rooms.Leave(&c.state)
	})
}

func (c *Client) mutate(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn()
	c.mu.Unlock()

	c.changed()
}

// Session returns a copy of the session record.
func (c *Client) Session() model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Phase returns the current state machine phase.
func (c *Client) Phase() model.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.connected():
		return model.PhaseDisconnected
	case c.state.Joined:
		return model.PhaseJoined
	default:
		return model.PhaseNotJoined
	}
}

// ConnectionID returns the ID of the live connection, or "".
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected() {
		return ""
	}
	return c.handle.ID()
}

// Endpoint returns the server endpoint of the live connection.
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected() {
		return ""
	}
	return c.handle.Endpoint()
}

// Rooms returns the selectable rooms.
func (c *Client) Rooms() model.RoomSet {
	return c.rooms.Rooms()
}

// Messages returns the message log in arrival order.
func (c *Client) Messages() []model.Message {
	return c.log.Snapshot()
}

// Typing returns the remote typing status.
func (c *Client) Typing() model.TypingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing.Status()
}

// Notifications drains the pending server notices.
func (c *Client) Notifications() []Notification {
	return c.notices.Drain()
}

// ScrollSignal fires when the message log changes.
func (c *Client) ScrollSignal() <-chan struct{} {
	return c.log.ScrollSignal()
}

// Changes fires after any state change. Signals coalesce.
func (c *Client) Changes() <-chan struct{} {
	return c.changes
}

// Done is closed once the session has been torn down.
func (c *Client) Done() <-chan struct{} {
	return c.manager.Done()
}

func (c *Client) changed() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
