package model

import "strings"

// Room is a named channel from a finite, configured set.
type Room string

const (
	RoomGeneral Room = "general"
	RoomRandom  Room = "random"
)

// RoomSet is the enumerated set of rooms a client may select. The first room
// is the default one, used on start and after leaving.
type RoomSet struct {
	rooms []Room
}

// NewRoomSet builds a RoomSet from names, trimming blanks and duplicates while
// keeping the given order.
func NewRoomSet(names ...string) (RoomSet, error) {
	seen := make(map[Room]bool, len(names))
	rooms := make([]Room, 0, len(names))
	for _, name := range names {
		r := Room(strings.TrimSpace(name))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		rooms = append(rooms, r)
	}
	if len(rooms) == 0 {
		return RoomSet{}, ErrNoRooms
	}
	return RoomSet{rooms: rooms}, nil
}

// DefaultRoomSet returns the general/random pair.
func DefaultRoomSet() RoomSet {
	return RoomSet{rooms: []Room{RoomGeneral, RoomRandom}}
}

// Default returns the default room.
func (s RoomSet) Default() Room {
	if len(s.rooms) == 0 {
		return RoomGeneral
	}
	return s.rooms[0]
}

// Contains reports whether r belongs to the set.
func (s RoomSet) Contains(r Room) bool {
	for _, room := range s.rooms {
		if room == r {
			return true
		}
	}
	return false
}

// Rooms returns a copy of the rooms in configured order.
func (s RoomSet) Rooms() []Room {
	out := make([]Room, len(s.rooms))
	copy(out, s.rooms)
	return out
}

// Next returns the room after r, wrapping around. Unknown rooms map to the default.
func (s RoomSet) Next(r Room) Room {
	for i, room := range s.rooms {
		if room == r {
			return s.rooms[(i+1)%len(s.rooms)]
		}
	}
	return s.Default()
}

// Label returns the display name of a room ("general" -> "General").
func (r Room) Label() string {
	return Capitalize(string(r))
}
