// Package scanner drives Bluetooth Classic device discovery. A scan session
// streams each distinct device once, feeds the shared registry, and runs
// until stopped by the caller; there is no built-in timeout.
package scanner

import (
	"context"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/btlink/internal/device"
	"github.com/srg/btlink/internal/eventbus"
	"github.com/srg/btlink/internal/groutine"
	"github.com/srg/btlink/internal/platform"
)

// Scanner handles device discovery over the shared radio.
type Scanner struct {
	radio    platform.Radio
	registry *device.Registry
	logger   *logrus.Logger
	events   *eventbus.Bus[device.Device]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// seen holds the per-session dedup set; replaced on every Start so a
	// stopped-and-restarted scan re-emits previously seen devices.
	seen *hashmap.Map[string, device.Device]
}

// NewScanner creates a scanner that records discoveries into registry.
func NewScanner(radio platform.Radio, registry *device.Registry, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		radio:    radio,
		registry: registry,
		logger:   logger,
		events:   eventbus.NewBus[device.Device](eventbus.DefaultSubscriberCapacity),
	}
}

// Start begins an asynchronous scan session. Fails with ErrAlreadyActive when
// a session is running and ErrAdapterOff when the adapter is down. The scan
// runs until Stop is called or ctx is canceled.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return device.ErrAlreadyActive
	}
	if !s.radio.Powered() {
		return device.ErrAdapterOff
	}

	s.seen = hashmap.New[string, device.Device]()
	scanCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.logger.Info("Starting device discovery")

	groutine.Go(scanCtx, "inquiry", func(ctx context.Context) {
		defer close(done)
		if err := s.radio.Inquiry(ctx, s.handleObservation); err != nil {
			s.logger.WithError(err).Warn("Inquiry ended with error")
		}

		s.mu.Lock()
		if s.done == done {
			s.cancel = nil
			s.done = nil
		}
		s.mu.Unlock()
	})

	return nil
}

// Stop halts the current scan session. Idempotent; returns only after the
// inquiry task has exited, so no further discovery events are delivered once
// Stop returns.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.WithField("device_count", s.registry.Len()).Info("Discovery stopped")
}

// IsScanning reports whether a scan session is active.
func (s *Scanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Events returns the discovery stream plus an unsubscribe function. One event
// per distinct device per scan session.
func (s *Scanner) Events() (<-chan device.Device, func()) {
	return s.events.Subscribe()
}

// Close stops any active session and terminates all subscriber streams.
func (s *Scanner) Close() {
	s.Stop()
	s.events.Close()
}

// handleObservation deduplicates raw inquiry observations within the session
// and forwards each new device exactly once.
func (s *Scanner) handleObservation(d device.Device) {
	if d.Address == "" {
		return
	}
	if _, loaded := s.seen.GetOrInsert(d.Address, d); loaded {
		return
	}

	s.registry.Upsert(d)
	s.logger.WithFields(logrus.Fields{
		"device":  d.Name,
		"address": d.Address,
	}).Info("Discovered new device")

	s.events.Publish(d)
}
