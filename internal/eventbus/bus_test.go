package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvOne[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed before a value arrived")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus[int](8)
	defer bus.Close()

	a, unsubA := bus.Subscribe()
	b, unsubB := bus.Subscribe()
	defer unsubA()
	defer unsubB()

	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(42)
	assert.Equal(t, 42, recvOne(t, a))
	assert.Equal(t, 42, recvOne(t, b))
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus[int](8)
	defer bus.Close()

	ch, unsub := bus.Subscribe()
	unsub()
	unsub() // second call is a no-op

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount())

	// Publishing with no subscribers is fine.
	bus.Publish(1)
}

func TestBusSlowSubscriberLosesOldest(t *testing.T) {
	bus := NewBus[int](4)
	defer bus.Close()

	ch, unsub := bus.Subscribe()
	defer unsub()

	// Nobody drains: only the newest 4 of 10 events survive.
	for i := 0; i < 10; i++ {
		bus.Publish(i)
	}

	var got []int
	for len(ch) > 0 {
		got = append(got, <-ch)
	}
	assert.Equal(t, []int{6, 7, 8, 9}, got)
}

func TestBusCloseTerminatesSubscribers(t *testing.T) {
	bus := NewBus[string](0) // default capacity
	ch, unsub := bus.Subscribe()

	bus.Publish("last")
	bus.Close()
	bus.Close() // idempotent

	v, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "last", v)

	_, ok = <-ch
	assert.False(t, ok)

	// Unsubscribing after Close must not panic on the already-closed ring.
	unsub()

	// Subscribing after Close yields an immediately closed channel.
	late, lateUnsub := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	lateUnsub()
}
