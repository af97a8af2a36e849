package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roomchat/roomchat/internal/conn"
	"github.com/roomchat/roomchat/internal/model"
	"github.com/roomchat/roomchat/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Time allowed for one store call.
	storeTimeout = 5 * time.Second
)

var errNotJoined = errors.New("client has not joined a room")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local development only; any origin may connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MessageStore keeps room history.
type MessageStore interface {
	Append(ctx context.Context, room string, msg model.Message) (int64, error)
	Recent(ctx context.Context, room string, limit int) ([]model.Message, error)
}

// Handler upgrades connections and routes their events.
type Handler struct {
	hub          *Hub
	store        MessageStore
	historyLimit int
	now          func() time.Time
}

// NewHandler creates a new Handler. A nil store disables history.
func NewHandler(hub *Hub, store MessageStore, historyLimit int) *Handler {
	return &Handler{
		hub:          hub,
		store:        store,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// HandleConnection upgrades the request and serves the connection until it
// closes. The connection ID comes from the cid query parameter, or is
// generated when absent.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	id := r.URL.Query().Get(conn.ConnectionIDParam)
	if id == "" {
		id = uuid.NewString()
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	client := NewClient(h.hub, ws, id)
	h.hub.Register(client)
	log.Printf("Client %s connected", id)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// handleFrame routes one frame from a client.
func (h *Handler) handleFrame(client *Client, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		log.Printf("Dropping frame from %s: %v", client.ID(), err)
		return
	}

	if !env.Event.IsOutbound() {
		log.Printf("Ignoring %s from %s: not a client event", env.Event, client.ID())
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		err = h.handleJoin(client, env.Data)
	case protocol.EventSendMessage:
		err = h.handleSend(client, env.Data)
	case protocol.EventTyping, protocol.EventNotTyping:
		err = h.handleTyping(client, env.Event)
	default:
		err = fmt.Errorf("%s is not a client event", env.Event)
	}
	if err != nil {
		log.Printf("Ignoring %s from %s: %v", env.Event, client.ID(), err)
	}
}

func (h *Handler) handleJoin(client *Client, data json.RawMessage) error {
	p, err := protocol.DecodeJoinRoom(data)
	if err != nil {
		return err
	}
	if p.Username == "" || p.Room == "" {
		return errors.New("username and room are required")
	}

	prev := client.join(p.Username, p.Room)
	if prev != "" && prev != p.Room {
		h.notifyRoom(prev, fmt.Sprintf("%s has left %s", p.Username, prev), client)
	}

	history, err := h.history(p.Room)
	if err != nil {
		log.Printf("Failed to load history for %s: %v", p.Room, err)
		history = []model.Message{}
	}
	if err := client.SendEvent(protocol.EventHistory, history); err != nil {
		return err
	}

	h.notifyRoom(p.Room, fmt.Sprintf("%s has joined %s", p.Username, p.Room), client)
	return nil
}

func (h *Handler) handleSend(client *Client, data json.RawMessage) error {
	p, err := protocol.DecodeSendMessage(data)
	if err != nil {
		return err
	}
	if !client.Joined() {
		return errNotJoined
	}
	username, room := client.Identity()
	if p.Message == "" {
		return errors.New("empty message")
	}

	msg := model.Message{Sender: username, Text: p.Message, Time: h.now().UTC()}

	if p.Recipient == "" {
		if h.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			_, err := h.store.Append(ctx, room, msg)
			cancel()
			if err != nil {
				log.Printf("Failed to store message in %s: %v", room, err)
			}
		}
		return h.hub.BroadcastRoomEvent(room, protocol.EventMessage, msg, nil)
	}

	msg.Recipient = p.Recipient
	targets := h.hub.FindByUsername(p.Recipient)
	if len(targets) == 0 {
		return client.SendEvent(protocol.EventNotification, fmt.Sprintf("%s is not online", p.Recipient))
	}

	frame, err := protocol.Encode(protocol.EventPrivateMessage, msg)
	if err != nil {
		return err
	}
	echoed := false
	for _, target := range targets {
		target.Send(frame)
		echoed = echoed || target == client
	}
	if !echoed {
		client.Send(frame)
	}
	return nil
}

func (h *Handler) handleTyping(client *Client, kind protocol.EventKind) error {
	if !client.Joined() {
		return errNotJoined
	}
	username, room := client.Identity()

	var payload any
	if kind == protocol.EventTyping {
		payload = username
	}
	return h.hub.BroadcastRoomEvent(room, kind, payload, client)
}

func (h *Handler) history(room string) ([]model.Message, error) {
	if h.store == nil || h.historyLimit <= 0 {
		return []model.Message{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return h.store.Recent(ctx, room, h.historyLimit)
}

func (h *Handler) notifyRoom(room, text string, skip *Client) {
	if err := h.hub.BroadcastRoomEvent(room, protocol.EventNotification, text, skip); err != nil {
		log.Printf("Failed to notify %s: %v", room, err)
	}
}

// disconnect removes client and tells its room.
func (h *Handler) disconnect(client *Client) {
	if !h.hub.Unregister(client) {
		return
	}
	username, room := client.Identity()
	if room != "" {
		h.notifyRoom(room, fmt.Sprintf("%s has left", username), client)
	}
	log.Printf("Client %s disconnected", client.ID())
}

// readPump pumps frames from the connection to the router.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.disconnect(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		h.handleFrame(client, frame)
	}
}

// writePump pumps queued frames to the connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case frame, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One event per frame; the client decodes frames independently.
			if err := client.Conn().WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
