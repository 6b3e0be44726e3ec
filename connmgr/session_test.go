package connmgr

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/btlink/internal/device"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// pipeSession wires a session over net.Pipe and returns the far end the test
// drives directly.
func pipeSession(t *testing.T, onClosed func(error)) (*Session, net.Conn) {
	t.Helper()
	near, far := net.Pipe()
	if onClosed == nil {
		onClosed = func(error) {}
	}
	s := newSession(near, device.Device{Address: "AA:BB:CC:DD:EE:01"}, 16,
		quietLogger(), onClosed, nil)
	t.Cleanup(func() {
		_ = s.Close()
		_ = far.Close()
	})
	return s, far
}

func recvFrame(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case f, ok := <-ch:
		require.True(t, ok, "frame stream closed unexpectedly")
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		panic("unreachable")
	}
}

func TestSessionSendReachesPeer(t *testing.T) {
	s, far := pipeSession(t, nil)

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, err := far.Read(buf)
		if err == nil {
			got <- buf[:n]
		}
	}()

	require.True(t, s.Send([]byte("hello")))
	select {
	case b := <-got:
		assert.Equal(t, "hello", string(b))
	case <-time.After(time.Second):
		t.Fatal("peer never received the payload")
	}
}

func TestSessionFramesPreserveOrder(t *testing.T) {
	s, far := pipeSession(t, nil)

	go func() {
		_, _ = far.Write([]byte("one"))
		_, _ = far.Write([]byte("two"))
		_, _ = far.Write([]byte("three"))
	}()

	// net.Pipe delivers each write as one read, so frame boundaries hold.
	assert.Equal(t, "one", string(recvFrame(t, s.Frames())))
	assert.Equal(t, "two", string(recvFrame(t, s.Frames())))
	assert.Equal(t, "three", string(recvFrame(t, s.Frames())))
}

func TestSessionSendAfterCloseReturnsFalse(t *testing.T) {
	s, _ := pipeSession(t, nil)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.False(t, s.IsOpen())
	assert.False(t, s.Send([]byte("late")), "Send after Close must fail quietly")
}

func TestSessionSendOnBrokenLinkReturnsFalse(t *testing.T) {
	s, far := pipeSession(t, nil)

	// The peer vanishes; the next write must fail without panicking.
	require.NoError(t, far.Close())

	assert.False(t, s.Send([]byte("into the void")))
	assert.False(t, s.IsOpen())
}

func TestSessionRemoteHangUpIsOrderly(t *testing.T) {
	var mu sync.Mutex
	var reasons []error
	s, far := pipeSession(t, func(reason error) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	})

	require.NoError(t, far.Close())

	// Frame stream terminates on hang-up.
	_, ok := <-s.Frames()
	assert.False(t, ok)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reasons, 1, "onClosed must fire exactly once")
	assert.NoError(t, reasons[0], "EOF from the remote is an orderly close, not a link failure")
}

func TestSessionLocalCloseReportsNoFailure(t *testing.T) {
	closed := make(chan error, 1)
	s, _ := pipeSession(t, func(reason error) { closed <- reason })

	require.NoError(t, s.Close())

	select {
	case reason := <-closed:
		assert.NoError(t, reason)
	case <-time.After(time.Second):
		t.Fatal("onClosed never fired")
	}
}

func TestSessionReadErrorReportsLinkFailure(t *testing.T) {
	closed := make(chan error, 1)
	near := &faultyLink{err: errors.New("read: connection reset by peer")}
	s := newSession(near, device.Device{Address: "AA:BB:CC:DD:EE:01"}, 16,
		quietLogger(), func(reason error) { closed <- reason }, nil)
	defer s.Close()

	select {
	case reason := <-closed:
		assert.ErrorIs(t, reason, device.ErrLinkFailure)
	case <-time.After(time.Second):
		t.Fatal("onClosed never fired")
	}
}

func TestSessionConcurrentSend(t *testing.T) {
	s, far := pipeSession(t, nil)

	var total int
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 256)
		for {
			n, err := far.Read(buf)
			total += n
			if err != nil {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.True(t, s.Send([]byte("0123456789")))
			}
		}()
	}
	wg.Wait()

	_ = s.Close()
	<-done
	assert.Equal(t, 4*25*10, total, "serialized writes must not interleave or drop bytes")
}

// faultyLink fails every read with a fixed error and swallows writes.
type faultyLink struct {
	err error
}

func (f *faultyLink) Read([]byte) (int, error)    { return 0, f.err }
func (f *faultyLink) Write(p []byte) (int, error) { return len(p), nil }
func (f *faultyLink) Close() error                { return nil }

var _ io.ReadWriteCloser = (*faultyLink)(nil)
