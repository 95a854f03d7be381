package clientrt

import (
	"sync"

	"github.com/omnish-sh/omnish/internal/wire"
)

const defaultOutboxCapacity = 256

// Outbox buffers IoData/CommandComplete/SessionUpdate messages produced
// while the transport connection is down, replaying them in order once
// SessionStart succeeds again. A full buffer drops its oldest entry — the
// on-disk stream is the authoritative long-term log, this is only a
// best-effort mirror.
type Outbox struct {
	mu       sync.Mutex
	capacity int
	messages []wire.Message
}

// NewOutbox creates an Outbox holding at most capacity messages (the
// package default is used when capacity <= 0).
func NewOutbox(capacity int) *Outbox {
	if capacity <= 0 {
		capacity = defaultOutboxCapacity
	}
	return &Outbox{capacity: capacity}
}

// Push appends m, dropping the oldest buffered message if over capacity.
func (o *Outbox) Push(m wire.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, m)
	if over := len(o.messages) - o.capacity; over > 0 {
		o.messages = o.messages[over:]
	}
}

// Drain returns every buffered message in order and empties the Outbox.
func (o *Outbox) Drain() []wire.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.messages
	o.messages = nil
	return out
}

// Len reports how many messages are currently buffered.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}
