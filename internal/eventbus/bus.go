package eventbus

import "sync"

// DefaultSubscriberCapacity is the per-subscriber ring size used when a bus
// is created with capacity 0.
const DefaultSubscriberCapacity = 64

// Bus fans values out to any number of subscribers. Each subscriber owns a
// bounded RingChannel, so publishing never blocks: a subscriber that stops
// draining loses its oldest events rather than stalling the producer.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[*RingChannel[T]]struct{}
	subCap int
	closed bool
}

// NewBus creates a bus whose subscribers buffer up to capacity events each.
// capacity <= 0 selects DefaultSubscriberCapacity.
func NewBus[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultSubscriberCapacity
	}
	return &Bus[T]{
		subs:   make(map[*RingChannel[T]]struct{}),
		subCap: capacity,
	}
}

// Subscribe registers a new subscriber and returns its receive channel plus
// an unsubscribe function. Unsubscribing closes the channel; it is safe to
// call the returned function more than once. Subscribing to a closed bus
// yields an already-closed channel.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	ring := NewRingChannel[T](b.subCap)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ring.Close()
		return ring.C(), func() {}
	}
	b.subs[ring] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ring]; ok {
				delete(b.subs, ring)
				ring.Close()
			}
		})
	}
	return ring.C(), unsub
}

// Publish delivers v to every current subscriber, dropping each subscriber's
// oldest buffered event when its ring is full.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ring := range b.subs {
		ring.ForceSend(v)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close terminates every subscriber stream. Further Publish calls are no-ops
// and further Subscribe calls return closed channels. Idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ring := range b.subs {
		ring.Close()
		delete(b.subs, ring)
	}
}
