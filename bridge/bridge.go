// Package bridge exposes a live RFCOMM session as a pseudo-terminal, giving
// any serial-minded program (terminal emulators, line tools, legacy SPP
// software) a tty node that reads and writes the remote device.
//
// Data pulled off the tty is staged in a ring buffer before being sent to the
// session, so a stalled link degrades by dropping the oldest staged bytes
// instead of wedging the tty.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/srg/btlink/connmgr"
	"github.com/srg/btlink/internal/groutine"
)

const (
	// DefaultBufferSize is the staging ring capacity in bytes.
	DefaultBufferSize = 4096

	// pollTimeoutMs bounds how long the tty read loop waits before rechecking
	// for shutdown.
	pollTimeoutMs = 50
)

// Options configures a Bridge.
type Options struct {
	BufferSize int            // staging ring capacity in bytes (0 = DefaultBufferSize)
	TTYSymlink string         // optional symlink to the slave tty (e.g. /tmp/btlink-dev)
	Logger     *logrus.Logger // optional
}

// Stats provides runtime counters useful for monitoring.
type Stats struct {
	TxBytes      uint64 // bytes sent to the remote device
	RxBytes      uint64 // bytes written to the tty
	DroppedBytes uint64 // tty bytes dropped due to staging overflow
}

// Bridge pumps bytes between one session and one PTY pair until either side
// closes. Construct with New; the caller must Close it.
type Bridge struct {
	sess    *connmgr.Session
	master  *os.File
	slave   *os.File
	symlink string
	logger  *logrus.Logger

	staging *ringbuffer.RingBuffer
	notify  chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	restore func()
	done    chan struct{}
	wg      sync.WaitGroup
	closed  sync.Once

	txBytes      uint64
	rxBytes      uint64
	droppedBytes uint64
}

// New creates the PTY pair and starts the pump tasks for sess.
func New(sess *connmgr.Session, opts *Options) (*Bridge, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("bridge: open pty: %w", err)
	}

	if err := unix.SetNonblock(int(master.Fd()), true); err != nil {
		_ = master.Close()
		_ = slave.Close()
		return nil, fmt.Errorf("bridge: set nonblocking: %w", err)
	}

	// Raw mode on the slave keeps the line discipline from echoing or
	// translating the byte stream.
	restore := func() {}
	if oldState, err := term.MakeRaw(int(slave.Fd())); err == nil {
		restore = func() { _ = term.Restore(int(slave.Fd()), oldState) }
	} else {
		logger.WithError(err).Debug("Could not set raw mode on tty slave")
	}

	symlink := ""
	if opts.TTYSymlink != "" {
		if err := os.Symlink(slave.Name(), opts.TTYSymlink); err != nil {
			restore()
			_ = master.Close()
			_ = slave.Close()
			return nil, fmt.Errorf("bridge: create tty symlink %s -> %s: %w", opts.TTYSymlink, slave.Name(), err)
		}
		symlink = opts.TTYSymlink
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		sess:    sess,
		master:  master,
		slave:   slave,
		symlink: symlink,
		logger:  logger,
		staging: ringbuffer.New(bufSize),
		notify:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		restore: restore,
		done:    make(chan struct{}),
	}

	logger.WithField("tty", slave.Name()).Info("Created PTY bridge")

	b.wg.Add(3)
	groutine.Go(ctx, "bridge-tty-read", func(ctx context.Context) { b.ttyReadLoop() })
	groutine.Go(ctx, "bridge-send", func(ctx context.Context) { b.sendLoop() })
	groutine.Go(ctx, "bridge-recv", func(ctx context.Context) { b.recvLoop() })

	go func() {
		b.wg.Wait()
		close(b.done)
	}()

	return b, nil
}

// TTYName returns the slave tty path applications should open.
func (b *Bridge) TTYName() string {
	return b.slave.Name()
}

// TTYSymlink returns the symlink path, empty if none was requested.
func (b *Bridge) TTYSymlink() string {
	return b.symlink
}

// Done is closed once all pump tasks have exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Stats returns a snapshot of the transfer counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		TxBytes:      atomic.LoadUint64(&b.txBytes),
		RxBytes:      atomic.LoadUint64(&b.rxBytes),
		DroppedBytes: atomic.LoadUint64(&b.droppedBytes),
	}
}

// Close stops the pumps and releases the PTY pair. The symlink is removed
// before the PTY closes (cleanup order matters). Idempotent; it does not
// close the session, which stays usable for other consumers.
func (b *Bridge) Close() error {
	b.closed.Do(func() {
		b.cancel()

		if b.symlink != "" {
			if err := os.Remove(b.symlink); err != nil {
				b.logger.WithError(err).WithField("ttySymlink", b.symlink).Warn("Failed to remove tty symlink")
			}
		}

		b.restore()
		_ = b.master.Close()
		_ = b.slave.Close()
	})
	return nil
}

// ttyReadLoop moves bytes from the tty into the staging ring, dropping the
// oldest staged bytes on overflow.
func (b *Bridge) ttyReadLoop() {
	defer b.wg.Done()

	fd := int(b.master.Fd())
	pollFd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	buf := make([]byte, 4096)

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		nReady, err := unix.Poll(pollFd, pollTimeoutMs)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			b.logger.WithError(err).Warn("tty poll error")
			continue
		}
		if nReady == 0 {
			continue // timeout, recheck shutdown
		}

		n, err := b.master.Read(buf)
		if n > 0 {
			b.stage(buf[:n])
		}
		if err != nil {
			switch {
			case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
				continue
			case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
				return // expected during Close
			case errors.Is(err, io.EOF):
				continue // slave reopened later is fine
			default:
				b.logger.WithError(err).Warn("tty read error")
				return
			}
		}
	}
}

// stage writes p into the staging ring, evicting oldest bytes when full.
func (b *Bridge) stage(p []byte) {
	for len(p) > 0 {
		n, err := b.staging.Write(p)
		p = p[n:]
		if err != nil && errors.Is(err, ringbuffer.ErrIsFull) {
			// Evict to make room for the newest bytes.
			scratch := make([]byte, len(p))
			d, _ := b.staging.Read(scratch)
			atomic.AddUint64(&b.droppedBytes, uint64(d))
		} else if err != nil {
			b.logger.WithError(err).Warn("staging write error")
			return
		}
	}

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// sendLoop drains the staging ring into the session.
func (b *Bridge) sendLoop() {
	defer b.wg.Done()

	buf := make([]byte, 4096)
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.notify:
		case <-time.After(pollTimeoutMs * time.Millisecond):
		}

		for {
			n, err := b.staging.TryRead(buf)
			if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
				break
			}
			if !b.sess.Send(buf[:n]) {
				b.logger.Debug("Session send failed, stopping bridge")
				b.cancel()
				return
			}
			atomic.AddUint64(&b.txBytes, uint64(n))
		}
	}
}

// recvLoop writes inbound session frames to the tty until the frame stream
// ends or the bridge closes.
func (b *Bridge) recvLoop() {
	defer b.wg.Done()
	defer b.cancel() // session gone means the bridge is over

	frames := b.sess.Frames()
	for {
		select {
		case <-b.ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := b.writeTTY(frame); err != nil {
				return
			}
			atomic.AddUint64(&b.rxBytes, uint64(len(frame)))
		}
	}
}

// writeTTY writes the whole frame to the nonblocking master, polling for
// writability as needed.
func (b *Bridge) writeTTY(p []byte) error {
	fd := int(b.master.Fd())
	pollFd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}

	for len(p) > 0 {
		n, err := b.master.Write(p)
		if n > 0 {
			p = p[n:]
		}
		if err != nil {
			switch {
			case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
				if _, pollErr := unix.Poll(pollFd, pollTimeoutMs); pollErr != nil && !errors.Is(pollErr, syscall.EINTR) {
					return pollErr
				}
				continue
			default:
				return err
			}
		}
	}
	return nil
}
