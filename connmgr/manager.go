// Package connmgr owns the lifecycle of the single active Bluetooth Classic
// connection: the client connect attempt, the server accept loop, and the
// live session. Exactly one Manager exists per process; every state
// transition is serialized through one mutex, and connection outcomes are
// reported only on the event stream, never from the call that started the
// attempt.
package connmgr

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/btlink/internal/device"
	"github.com/srg/btlink/internal/eventbus"
	"github.com/srg/btlink/internal/groutine"
	"github.com/srg/btlink/internal/platform"
)

// Options tunes Manager buffering. Zero values select defaults.
type Options struct {
	// EventBufferSize is the per-subscriber capacity of the connection event
	// stream.
	EventBufferSize int
	// FrameBufferSize is the capacity of a session's inbound frame ring and
	// of each data stream subscriber.
	FrameBufferSize int
}

// Manager drives connection establishment and teardown over the shared radio.
type Manager struct {
	radio    platform.Radio
	registry *device.Registry
	logger   *logrus.Logger
	events   *eventbus.Bus[Event]
	data     *eventbus.Bus[[]byte]
	frameCap int

	mu            sync.Mutex
	state         State
	session       *Session
	listener      platform.Listener
	attemptCancel context.CancelFunc

	// epoch invalidates in-flight attempt completions: Close bumps it, and a
	// completion whose epoch is stale must neither transition state nor
	// publish an event.
	epoch uint64
}

// NewManager creates the process's connection manager. registry is used to
// resolve device names for connection events; opts may be nil.
func NewManager(radio platform.Radio, registry *device.Registry, logger *logrus.Logger, opts *Options) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = &Options{}
	}
	frameCap := opts.FrameBufferSize
	if frameCap <= 0 {
		frameCap = eventbus.DefaultSubscriberCapacity
	}
	return &Manager{
		radio:    radio,
		registry: registry,
		logger:   logger,
		events:   eventbus.NewBus[Event](opts.EventBufferSize),
		data:     eventbus.NewBus[[]byte](frameCap),
		frameCap: frameCap,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the live session, or nil outside StateConnected.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Events returns the connection event stream plus an unsubscribe function.
// One event per observable state transition.
func (m *Manager) Events() (<-chan Event, func()) {
	return m.events.Subscribe()
}

// Data returns the inbound data stream plus an unsubscribe function. Frames
// from every session pass through here; the per-session stream is available
// on the Session itself.
func (m *Manager) Data() (<-chan []byte, func()) {
	return m.data.Subscribe()
}

// Connect starts a client connection attempt to addr. The call acknowledges
// the request only; the outcome arrives on the event stream, because the
// handshake is driven by platform callbacks outside the caller's control.
//
// Fails synchronously with ErrInvalidAddress, ErrAdapterOff, or
// ErrAlreadyActive when a connection or attempt is already active (the
// in-flight attempt is left untouched).
func (m *Manager) Connect(ctx context.Context, addr string) error {
	addr, err := device.NormalizeAddress(addr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeLocked() {
		return &StateError{State: m.state, Err: device.ErrAlreadyActive}
	}
	if !m.radio.Powered() {
		return device.ErrAdapterOff
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	m.attemptCancel = cancel
	m.state = StateConnecting
	ep := m.epoch

	m.logger.WithField("address", addr).Info("Connecting to device")

	groutine.Go(attemptCtx, "connect-"+addr, func(ctx context.Context) {
		link, dialErr := m.radio.Dial(ctx, addr)

		m.mu.Lock()
		defer m.mu.Unlock()

		if m.epoch != ep || m.state != StateConnecting {
			// Close raced the handshake; discard quietly.
			if dialErr == nil {
				_ = link.Close()
			}
			return
		}
		m.attemptCancel = nil

		if dialErr != nil {
			m.failLocked(fmt.Sprintf("connect to %s failed: %v", addr, dialErr))
			return
		}

		dev, ok := m.registry.Get(addr)
		if !ok {
			dev = device.Device{Address: addr}
		}
		m.startSessionLocked(link, dev)
	})

	return nil
}

// Listen opens the server endpoint and starts the accept loop. A single
// accepted client consumes the Listening state; serving another client
// requires a new Listen call after the session ends. Fails synchronously
// with ErrAlreadyActive or ErrAdapterOff.
func (m *Manager) Listen(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeLocked() {
		return &StateError{State: m.state, Err: device.ErrAlreadyActive}
	}
	if !m.radio.Powered() {
		return device.ErrAdapterOff
	}

	listener, err := m.radio.Listen()
	if err != nil {
		return err
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	m.attemptCancel = cancel
	m.listener = listener
	m.state = StateListening
	ep := m.epoch

	m.logger.Info("Listening for incoming connection")

	groutine.Go(attemptCtx, "accept-loop", func(ctx context.Context) {
		link, remote, acceptErr := listener.Accept(ctx)

		m.mu.Lock()
		defer m.mu.Unlock()

		if m.epoch != ep || m.state != StateListening {
			if acceptErr == nil {
				_ = link.Close()
			}
			return
		}
		m.attemptCancel = nil
		m.listener = nil
		_ = listener.Close()

		if acceptErr != nil {
			m.failLocked(fmt.Sprintf("accept failed: %v", acceptErr))
			return
		}

		if remote.Address != "" {
			m.registry.Upsert(remote)
		}
		m.startSessionLocked(link, remote)
	})

	return nil
}

// Close tears down whatever is active: a listening endpoint, an in-flight
// connect, or a live session. Valid in any state and idempotent; a second
// call produces no transition and no error. Once Close returns, no further
// events for the cancelled operation are delivered.
func (m *Manager) Close() error {
	m.mu.Lock()

	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}

	m.epoch++
	if m.attemptCancel != nil {
		m.attemptCancel()
		m.attemptCancel = nil
	}
	if m.listener != nil {
		_ = m.listener.Close()
		m.listener = nil
	}

	sess := m.session
	m.session = nil
	wasConnected := m.state == StateConnected
	m.state = StateClosed

	if wasConnected {
		// The single terminal event for this session, published before Close
		// returns so nothing trails the call.
		m.events.Publish(Event{Success: false, Message: "connection closed"})
	}
	m.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}

	m.logger.Info("Connection closed")
	return nil
}

// Shutdown closes the connection and terminates all subscriber streams.
func (m *Manager) Shutdown() {
	_ = m.Close()
	m.events.Close()
	m.data.Close()
}

// activeLocked reports whether a new attempt must be refused. Caller holds
// m.mu.
func (m *Manager) activeLocked() bool {
	return m.state == StateConnecting || m.state == StateListening || m.state == StateConnected
}

// failLocked records a failed attempt and settles back to StateIdle for the
// next one. Caller holds m.mu.
func (m *Manager) failLocked(msg string) {
	m.state = StateFailed
	m.logger.Warn(msg)
	m.events.Publish(Event{Success: false, Message: msg})
	m.state = StateIdle
}

// startSessionLocked transitions to StateConnected with a fresh session.
// Caller holds m.mu.
func (m *Manager) startSessionLocked(link io.ReadWriteCloser, dev device.Device) {
	m.state = StateConnected
	m.session = newSession(link, dev, m.frameCap, m.logger, m.onSessionClosed, m.data.Publish)

	m.logger.WithFields(logrus.Fields{
		"device":  dev.Name,
		"address": dev.Address,
	}).Info("Connected")

	d := dev
	m.events.Publish(Event{Success: true, Message: "connected to " + dev.Address, Device: &d})
}

// onSessionClosed runs exactly once when a session's receive loop exits. If
// the manager still believes it is connected, the session ended underneath it
// (remote hang-up or link failure) and the terminal event is published here;
// otherwise Close already handled the transition.
func (m *Manager) onSessionClosed(reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return
	}
	m.session = nil
	m.state = StateClosed

	msg := "connection closed"
	if reason != nil {
		msg = reason.Error()
	}
	m.events.Publish(Event{Success: false, Message: msg})
}
