// Package messagelog provides the session's ordered record of chat messages.
package messagelog

import (
	"sync"

	"github.com/roomchat/roomchat/internal/model"
)

// Log is a thread-safe, arrival-ordered list of messages. It only grows at
// the tail (Append) or is replaced as a whole (Replace, used for history
// sync); it is never partially merged, edited or trimmed.
//
// Every mutation fires the scroll signal so the presentation layer can bring
// the newest message into view.
type Log struct {
	messages []model.Message
	scroll   chan struct{}
	mu       sync.RWMutex
}

// New creates an empty Log.
func New() *Log {
	return &Log{
		scroll: make(chan struct{}, 1),
	}
}

// Append adds m at the tail.
func (l *Log) Append(m model.Message) {
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()

	l.signal()
}

// Replace discards the current messages and installs a copy of ms.
func (l *Log) Replace(ms []model.Message) {
	next := make([]model.Message, len(ms))
	copy(next, ms)

	l.mu.Lock()
	l.messages = next
	l.mu.Unlock()

	l.signal()
}

// Snapshot returns a copy of all messages in arrival order, or nil when empty.
// The returned slice is safe to use without holding the lock.
func (l *Log) Snapshot() []model.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.messages) == 0 {
		return nil
	}

	result := make([]model.Message, len(l.messages))
	copy(result, l.messages)
	return result
}

// Len returns the current number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.messages)
}

// ScrollSignal fires after each mutation. Signals coalesce: a reader that
// falls behind sees one pending signal, not one per message.
func (l *Log) ScrollSignal() <-chan struct{} {
	return l.scroll
}

func (l *Log) signal() {
	select {
	case l.scroll <- struct{}{}:
	default:
	}
}
