package model

import "errors"

var (
	// ErrUnknownRoom is returned when a room outside the configured room set is selected.
	ErrUnknownRoom = errors.New("unknown room")

	// ErrNoRooms is returned when a room set is built from no usable names.
	ErrNoRooms = errors.New("room set is empty")

	// ErrSessionClosed is returned when an operation needs a session that was already torn down.
	ErrSessionClosed = errors.New("session closed")

	// ErrMessageNotFound is returned when a stored message does not exist.
	ErrMessageNotFound = errors.New("message not found")
)
