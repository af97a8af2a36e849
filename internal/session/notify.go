package session

import (
	"sync"
	"time"
)

// NotificationLevel is the display style of a notice.
type NotificationLevel string

const NotificationSuccess NotificationLevel = "success"

// DefaultNotificationCapacity bounds the pending queue.
const DefaultNotificationCapacity = 32

// Notification is an ephemeral server notice. Expiry is up to the presentation layer.
type Notification struct {
	Text  string            `json:"text"`
	Level NotificationLevel `json:"level"`
	At    time.Time         `json:"at"`
}

// NotificationRelay queues server notices until the presentation layer drains
// them. When the queue is full the oldest notice is dropped.
type NotificationRelay struct {
	pending  []Notification
	capacity int
	signal   chan struct{}
	now      func() time.Time
	mu       sync.Mutex
}

// NewNotificationRelay creates a relay holding at most capacity pending notices.
// The capacity must be greater than 0; if not, DefaultNotificationCapacity is used.
func NewNotificationRelay(capacity int) *NotificationRelay {
	if capacity <= 0 {
		capacity = DefaultNotificationCapacity
	}
	return &NotificationRelay{
		capacity: capacity,
		signal:   make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Push records a success-style notice.
func (r *NotificationRelay) Push(text string) {
	r.mu.Lock()
	if len(r.pending) == r.capacity {
		r.pending = append(r.pending[:0], r.pending[1:]...)
	}
	r.pending = append(r.pending, Notification{
		Text:  text,
		Level: NotificationSuccess,
		At:    r.now(),
	})
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Drain returns and clears the pending notices, oldest first.
func (r *NotificationRelay) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return nil
	}
	out := r.pending
	r.pending = nil
	return out
}

// Len returns the number of pending notices.
func (r *NotificationRelay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Signal fires when a notice is pushed. Signals coalesce.
func (r *NotificationRelay) Signal() <-chan struct{} {
	return r.signal
}
