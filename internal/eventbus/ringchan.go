// Package eventbus provides the fan-out plumbing between the background
// producer tasks (accept loop, connect handshake, receive loop, inquiry scan)
// and application subscribers. Producers publish through bounded ring
// channels with overwrite-oldest semantics, so a slow or absent consumer can
// never stall a native callback path.
package eventbus

import "sync/atomic"

// RingChannel is a bounded channel-like buffer with overwrite-oldest
// semantics. It wraps a buffered channel and guarantees producers are never
// blocked indefinitely: when the buffer is full the oldest element is
// discarded to make room.
//
// Writers use Send, TrySend, or ForceSend. Readers either range over C() or
// use Receive/TryReceive when they want the Processed metric maintained.
type RingChannel[T any] struct {
	ch      chan T
	metrics Metrics
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("eventbus: ring capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over it
// until it is closed. Reads via C bypass the Processed metric.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest buffered element if the ring is full.
// It always succeeds without blocking indefinitely.
func (rc *RingChannel[T]) Send(v T) {
	select {
	case rc.ch <- v:
		rc.metrics.addWritten(1)
	default:
		<-rc.ch // drop oldest
		rc.metrics.addOverwritten(1)
		rc.ch <- v
		rc.metrics.addWritten(1)
	}
}

// TrySend attempts a non-blocking insert. Returns false if the ring is full.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		rc.metrics.addWritten(1)
		return true
	default:
		return false
	}
}

// ForceSend inserts v immediately, discarding the oldest element if needed.
// It never blocks. Returns true if an element was dropped to make room.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	dropped := false

	select {
	case rc.ch <- v:
		rc.metrics.addWritten(1)
	default:
		select {
		case <-rc.ch: // drop oldest
			rc.metrics.addOverwritten(1)
			dropped = true
		default:
		}
		rc.ch <- v
		rc.metrics.addWritten(1)
	}

	return dropped
}

// Receive blocks until a value is available or the ring is closed.
// ok is false once the ring is closed and drained.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.metrics.addProcessed(1)
	}
	return
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.addProcessed(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the ring capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. Send/ForceSend after Close panics;
// the producer must stop first.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// GetMetrics returns an atomic snapshot of the ring counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&rc.metrics.Processed),
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics tracks ring activity with lock-free counters.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (m *Metrics) addProcessed(n int) {
	atomic.AddInt64(&m.Processed, int64(n))
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}
