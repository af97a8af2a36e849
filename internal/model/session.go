package model

import (
	"unicode"
	"unicode/utf8"
)

// Phase is the connection/membership state of a session.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseNotJoined
	PhaseJoined
)

// String returns the string representation of a Phase.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseNotJoined:
		return "connected"
	case PhaseJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// Session is one client's identity, room membership and transient input
// state. It is owned by the session package and only changed through its
// transition operations.
type Session struct {
	Username  string `json:"username"`
	Room      Room   `json:"room"`
	Joined    bool   `json:"joined"`
	Draft     string `json:"draft"`
	Recipient string `json:"recipient"`

	// JoinedAs is the name the last successful join was emitted with; the
	// username input itself is cleared by the join.
	JoinedAs string `json:"joinedAs,omitempty"`
}

// NewSession returns a fresh, not-joined session in the default room.
func NewSession(rooms RoomSet) Session {
	return Session{Room: rooms.Default()}
}

// TypingStatus is the remote typing indicator. At most one typer is tracked;
// the last event wins.
type TypingStatus struct {
	Typer string `json:"typer,omitempty"`
}

// Active reports whether somebody is shown as typing.
func (t TypingStatus) Active() bool {
	return t.Typer != ""
}

// String renders the indicator line, or "" when nobody is typing.
func (t TypingStatus) String() string {
	if t.Typer == "" {
		return ""
	}
	return t.Typer + " is typing..."
}

// Capitalize upper-cases the first rune of s and leaves the rest untouched.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
