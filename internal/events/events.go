// Package events is a minimal in-process notification hub. Orchestration
// components publish state changes; presentation layers subscribe and
// re-render. Delivery is non-blocking: a subscriber that falls behind
// drops events rather than stalling message ingestion.
package events

import "sync"

// Kind identifies what changed.
type Kind string

const (
	ChatUpdated         Kind = "chatUpdated"
	PermissionPending   Kind = "permissionPending"
	SessionPhaseChanged Kind = "sessionPhaseChanged"
	WorktreesChanged    Kind = "worktreesChanged"
)

// Event is one state-change notification.
type Event struct {
	Kind   Kind
	ChatID string
	// Detail is event-specific: a permission request id, a session
	// phase, or empty.
	Detail string
}

const subscriberBuffer = 32

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel function. The
// channel is buffered; events that arrive while it is full are dropped
// for that subscriber only.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
