package connmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/srg/btlink/internal/device"
	"github.com/srg/btlink/internal/eventbus"
	"github.com/srg/btlink/internal/groutine"
)

// readBufferSize bounds a single link read; frame boundaries follow whatever
// the transport returns, no application framing is imposed.
const readBufferSize = 4096

// Session is the byte-stream channel of one established connection. Send may
// be called concurrently; writes are serialized onto the link. The frame
// stream runs independently of Send (full duplex) and ends when the
// underlying connection closes. A Session is not restartable; a new
// connection produces a new Session.
type Session struct {
	link   io.ReadWriteCloser
	remote device.Device
	logger *logrus.Logger
	frames *eventbus.RingChannel[[]byte]

	writeMu sync.Mutex
	closed  atomic.Bool
	shut    sync.Once

	// onClosed fires exactly once when the receive loop exits. reason is nil
	// for a deliberate close, non-nil for a link failure.
	onClosed func(reason error)
	// onFrame mirrors every inbound frame to the manager's data stream.
	onFrame func(frame []byte)
}

func newSession(link io.ReadWriteCloser, remote device.Device, frameCap int,
	logger *logrus.Logger, onClosed func(error), onFrame func([]byte)) *Session {

	if frameCap <= 0 {
		frameCap = eventbus.DefaultSubscriberCapacity
	}
	s := &Session{
		link:     link,
		remote:   remote,
		logger:   logger,
		frames:   eventbus.NewRingChannel[[]byte](frameCap),
		onClosed: onClosed,
		onFrame:  onFrame,
	}

	groutine.Go(context.Background(), "session-recv-"+remote.Address, func(ctx context.Context) {
		s.receiveLoop()
	})
	return s
}

// Remote returns the peer this session is connected to.
func (s *Session) Remote() device.Device {
	return s.remote
}

// IsOpen reports whether the session can still carry data.
func (s *Session) IsOpen() bool {
	return !s.closed.Load()
}

// Send writes p to the link. It returns false instead of an error on any
// failure (broken link, session closed) because link loss is routine, not
// exceptional. Concurrent callers are serialized.
func (s *Session) Send(p []byte) bool {
	if s.closed.Load() {
		return false
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for len(p) > 0 {
		n, err := s.link.Write(p)
		if err != nil {
			s.logger.WithError(err).Debug("Session write failed")
			s.shutdown()
			return false
		}
		p = p[n:]
	}
	return true
}

// Frames returns the inbound frame stream. Frames arrive in read order; the
// channel closes when the session ends.
func (s *Session) Frames() <-chan []byte {
	return s.frames.C()
}

// Close tears the session down. Idempotent; the frame stream terminates and
// subsequent Send calls return false.
func (s *Session) Close() error {
	s.shutdown()
	return nil
}

// shutdown marks the session closed and closes the link, which unblocks the
// receive loop. Only the receive loop closes the frame channel, so a producer
// can never race a close.
func (s *Session) shutdown() {
	s.shut.Do(func() {
		s.closed.Store(true)
		_ = s.link.Close()
	})
}

func (s *Session) receiveLoop() {
	buf := make([]byte, readBufferSize)
	var reason error

	for {
		n, err := s.link.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			s.frames.ForceSend(frame)
			if s.onFrame != nil {
				s.onFrame(frame)
			}
		}
		if err != nil {
			if !s.closed.Load() && !isOrderlyClose(err) {
				reason = fmt.Errorf("%w: %v", device.ErrLinkFailure, err)
			}
			break
		}
	}

	s.shutdown()
	s.frames.Close()
	if s.onClosed != nil {
		s.onClosed(reason)
	}
}

// isOrderlyClose distinguishes a remote hang-up from a broken link.
func isOrderlyClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
