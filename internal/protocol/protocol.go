// Package protocol defines the named-event wire contract between the chat
// client and the chat server.
//
// Every frame is a JSON envelope {"event": kind, "data": payload} carried in
// one websocket text frame. The set of event kinds is closed.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roomchat/roomchat/internal/model"
)

// EventKind names an event on the wire.
type EventKind string

const (
	// Client -> Server
	EventJoinRoom    EventKind = "joinRoom"
	EventSendMessage EventKind = "sendMessage"

	// Both directions: from the client without payload, from the server with
	// the typer's username (typing only).
	EventTyping    EventKind = "typing"
	EventNotTyping EventKind = "notTyping"

	// Server -> Client
	EventMessage        EventKind = "message"
	EventPrivateMessage EventKind = "privateMessage"
	EventNotification   EventKind = "notification"
	EventHistory        EventKind = "history-message"
)

var (
	// ErrUnknownEvent is returned when a frame names an event outside the contract.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrMalformedFrame is returned when a frame is not a valid envelope.
	ErrMalformedFrame = errors.New("malformed frame")
)

var inbound = map[EventKind]bool{
	EventMessage:        true,
	EventPrivateMessage: true,
	EventNotification:   true,
	EventHistory:        true,
	EventTyping:         true,
	EventNotTyping:      true,
}

var outbound = map[EventKind]bool{
	EventJoinRoom:    true,
	EventSendMessage: true,
	EventTyping:      true,
	EventNotTyping:   true,
}

// InboundKinds lists the server -> client kinds in a stable order.
func InboundKinds() []EventKind {
	return []EventKind{
		EventMessage,
		EventPrivateMessage,
		EventNotification,
		EventHistory,
		EventTyping,
		EventNotTyping,
	}
}

// IsInbound reports whether the server may send k to a client.
func (k EventKind) IsInbound() bool {
	return inbound[k]
}

// IsOutbound reports whether a client may send k to the server.
func (k EventKind) IsOutbound() bool {
	return outbound[k]
}

// Envelope is one frame on the wire.
type Envelope struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is sent by a client to enter a room.
type JoinRoomPayload struct {
	Room         string `json:"room"`
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
}

// SendMessagePayload is sent by a client to post a message. An empty
// Recipient broadcasts to the room.
type SendMessagePayload struct {
	Room      string `json:"room"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
}

// Encode builds a frame. A nil payload produces an envelope without data.
func Encode(kind EventKind, payload any) ([]byte, error) {
	env := Envelope{Event: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a frame into its envelope. Kinds outside the contract are
// reported with ErrUnknownEvent alongside the decoded envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	}
	if !inbound[env.Event] && !outbound[env.Event] {
		return env, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return env, nil
}

// DecodeMessage decodes a message or privateMessage payload.
func DecodeMessage(data json.RawMessage) (model.Message, error) {
	var m model.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return model.Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return m, nil
}

// DecodeHistory decodes a history-message payload. A null payload is an empty history.
func DecodeHistory(data json.RawMessage) ([]model.Message, error) {
	if isEmpty(data) {
		return []model.Message{}, nil
	}
	var ms []model.Message
	if err := json.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	if ms == nil {
		ms = []model.Message{}
	}
	return ms, nil
}

// DecodeString decodes a string payload (notification, typing). Absent or
// null data decodes to "".
func DecodeString(data json.RawMessage) (string, error) {
	if isEmpty(data) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("failed to decode string payload: %w", err)
	}
	return s, nil
}

// DecodeJoinRoom decodes a joinRoom payload (server side).
func DecodeJoinRoom(data json.RawMessage) (JoinRoomPayload, error) {
	var p JoinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return JoinRoomPayload{}, fmt.Errorf("failed to decode joinRoom: %w", err)
	}
	return p, nil
}

// DecodeSendMessage decodes a sendMessage payload (server side).
func DecodeSendMessage(data json.RawMessage) (SendMessagePayload, error) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return SendMessagePayload{}, fmt.Errorf("failed to decode sendMessage: %w", err)
	}
	return p, nil
}

func isEmpty(data json.RawMessage) bool {
	return len(data) == 0 || string(data) == "null"
}
