package session

import (
	"github.com/roomchat/roomchat/internal/model"
	"github.com/roomchat/roomchat/internal/protocol"
)

// TypingIndicator tracks the local typing intent and the remote typing status.
//
// There is no timer: a remote typer stays displayed until an explicit
// notTyping arrives, even if that peer went away.
type TypingIndicator struct {
	emitter Emitter
	status  model.TypingStatus
}

// NewTypingIndicator creates a TypingIndicator.
func NewTypingIndicator(emitter Emitter) *TypingIndicator {
	return &TypingIndicator{emitter: emitter}
}

// DraftChanged emits typing for a non-empty draft and notTyping otherwise.
func (t *TypingIndicator) DraftChanged(draft string) {
	if draft != "" {
		t.emitter.Emit(protocol.EventTyping, nil)
		return
	}
	t.emitter.Emit(protocol.EventNotTyping, nil)
}

// MessageSent always emits notTyping.
func (t *TypingIndicator) MessageSent() {
	t.emitter.Emit(protocol.EventNotTyping, nil)
}

// RemoteTyping shows username as typing. An empty name clears the indicator.
func (t *TypingIndicator) RemoteTyping(username string) {
	t.status = model.TypingStatus{Typer: username}
}

// RemoteNotTyping clears the indicator.
func (t *TypingIndicator) RemoteNotTyping() {
	t.status = model.TypingStatus{}
}

// Status returns the remote typing status.
func (t *TypingIndicator) Status() model.TypingStatus {
	return t.status
}
