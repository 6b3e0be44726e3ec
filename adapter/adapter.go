// Package adapter tracks the local Bluetooth adapter: its on/off state as an
// edge-detected event stream, and the adapter-level operations (name,
// discoverability) that must be serialized against each other because they
// mutate the shared radio handle.
package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/btlink/internal/eventbus"
	"github.com/srg/btlink/internal/groutine"
	"github.com/srg/btlink/internal/platform"
)

// Monitor observes adapter power transitions and hosts adapter mutations.
type Monitor struct {
	radio  platform.Radio
	logger *logrus.Logger
	bus    *eventbus.Bus[bool]

	mu      sync.Mutex // serializes adapter-level mutations
	watchMu sync.Mutex
	cancel  context.CancelFunc
}

// NewMonitor creates a monitor for radio. Call Start to begin streaming
// power transitions.
func NewMonitor(radio platform.Radio, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		radio:  radio,
		logger: logger,
		bus:    eventbus.NewBus[bool](16),
	}
}

// Start launches the watch task. Raw platform observations are edge-detected:
// subscribers see exactly one event per genuine on<->off transition, never a
// duplicate for a repeated observation of the same state.
func (m *Monitor) Start(ctx context.Context) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.cancel != nil {
		return // already watching
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	raw := m.radio.PowerEvents(watchCtx)
	last := m.radio.Powered()

	groutine.Go(watchCtx, "adapter-watch", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case on, ok := <-raw:
				if !ok {
					return
				}
				if on == last {
					continue
				}
				last = on
				m.logger.WithField("powered", on).Debug("Adapter power transition")
				m.bus.Publish(on)
			}
		}
	})
}

// IsOn reports the current adapter power state.
func (m *Monitor) IsOn() bool {
	return m.radio.Powered()
}

// Events returns a stream of power transitions plus an unsubscribe function.
// The stream is infinite until unsubscribed; resubscription restarts it.
func (m *Monitor) Events() (<-chan bool, func()) {
	return m.bus.Subscribe()
}

// Name returns the adapter's display name.
func (m *Monitor) Name() (string, error) {
	return m.radio.Name()
}

// SetName requests a new adapter display name.
func (m *Monitor) SetName(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.radio.SetName(name)
}

// Advertise makes the local device discoverable for d. d == 0 requests the
// platform's default timeout.
func (m *Monitor) Advertise(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.radio.SetDiscoverable(d)
}

// Close stops the watch task and terminates all subscriber streams.
func (m *Monitor) Close() {
	m.watchMu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.watchMu.Unlock()
	m.bus.Close()
}
