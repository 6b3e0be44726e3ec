package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannelDropsOldestWhenFull(t *testing.T) {
	rc := NewRingChannel[int](3)

	for i := 1; i <= 5; i++ {
		rc.Send(i)
	}

	// 1 and 2 were overwritten; 3, 4, 5 remain in order.
	var got []int
	for rc.Len() > 0 {
		v, ok := rc.Receive()
		require.True(t, ok)
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got)

	m := rc.GetMetrics()
	assert.Equal(t, int64(5), m.Written)
	assert.Equal(t, int64(2), m.Overwritten)
	assert.Equal(t, int64(3), m.Processed)
}

func TestRingChannelTrySend(t *testing.T) {
	rc := NewRingChannel[string](2)

	assert.True(t, rc.TrySend("a"))
	assert.True(t, rc.TrySend("b"))
	assert.False(t, rc.TrySend("c"), "TrySend on a full ring must fail instead of dropping")

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestRingChannelTryReceiveEmpty(t *testing.T) {
	rc := NewRingChannel[int](1)
	_, ok := rc.TryReceive()
	assert.False(t, ok)
}

func TestRingChannelForceSendReportsDrop(t *testing.T) {
	rc := NewRingChannel[int](1)

	assert.False(t, rc.ForceSend(1))
	assert.True(t, rc.ForceSend(2), "ForceSend into a full ring must report the drop")

	v, ok := rc.Receive()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestRingChannelCloseDrains(t *testing.T) {
	rc := NewRingChannel[int](4)
	rc.Send(7)
	rc.Close()

	// Buffered values survive Close.
	v, ok := <-rc.C()
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = rc.Receive()
	assert.False(t, ok)
}

func TestNewRingChannelPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { NewRingChannel[int](0) })
}
