package session

import "sync"

// SessionRequiredEvent is broadcast when a protected call was rejected as
// unauthorized somewhere in the application.
type SessionRequiredEvent struct {
	Message string
}

// SessionRequiredBus is the application wide channel for session required
// signals. Subscribers run synchronously, in subscription order.
type SessionRequiredBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(SessionRequiredEvent)
	order  []int
}

// NewSessionRequiredBus returns an empty bus.
func NewSessionRequiredBus() *SessionRequiredBus {
	return &SessionRequiredBus{subs: make(map[int]func(SessionRequiredEvent))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *SessionRequiredBus) Subscribe(fn func(SessionRequiredEvent)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers the event to every subscriber.
func (b *SessionRequiredBus) Publish(event SessionRequiredEvent) {
	b.mu.RLock()
	fns := make([]func(SessionRequiredEvent), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
}
