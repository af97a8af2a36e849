package session

import (
	"github.com/roomchat/roomchat/internal/model"
	"github.com/roomchat/roomchat/internal/protocol"
)

// Emitter sends outbound events without waiting for delivery.
type Emitter interface {
	Emit(kind protocol.EventKind, payload any)
}

// RoomController owns the join/leave transitions of a session.
type RoomController struct {
	rooms   model.RoomSet
	emitter Emitter
}

// NewRoomController creates a RoomController over the given room set.
func NewRoomController(rooms model.RoomSet, emitter Emitter) *RoomController {
	return &RoomController{rooms: rooms, emitter: emitter}
}

// Join emits a join intent for the session's room and username and marks the
// session joined. The username input is cleared for reuse. An empty username
// makes Join a silent no-op. It reports whether the join was emitted.
func (c *RoomController) Join(s *model.Session, connectionID string) bool {
	if s.Username == "" {
		return false
	}

	c.emitter.Emit(protocol.EventJoinRoom, protocol.JoinRoomPayload{
		Room:         string(s.Room),
		Username:     s.Username,
		ConnectionID: connectionID,
	})

	s.JoinedAs = s.Username
	s.Username = ""
	s.Joined = true
	return true
}

// Leave returns the session to the default room, not joined, with an empty
// draft. The server is not told.
func (c *RoomController) Leave(s *model.Session) {
	s.Room = c.rooms.Default()
	s.Draft = ""
	s.Joined = false
}

// Select changes the session's room. Rooms outside the set are rejected.
func (c *RoomController) Select(s *model.Session, room model.Room) error {
	if !c.rooms.Contains(room) {
		return model.ErrUnknownRoom
	}
	s.Room = room
	return nil
}

// Rooms returns the room set.
func (c *RoomController) Rooms() model.RoomSet {
	return c.rooms
}
