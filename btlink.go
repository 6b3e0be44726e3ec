// Package btlink exposes Bluetooth Classic operations - discovery, bonding
// queries, client/server RFCOMM connections, and byte-stream data transfer -
// through a single Service with a method-call surface and four event streams.
//
// The split between the two surfaces is deliberate: failures that are
// synchronously knowable (bad input, adapter off, conflicting request) come
// back from the method call, while outcomes of the asynchronous link
// (handshake result, disconnects, inbound data) are only observable on the
// event streams. An acknowledged ConnectToDevice call therefore says nothing
// about whether the connection will succeed.
package btlink

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/btlink/adapter"
	"github.com/srg/btlink/connmgr"
	"github.com/srg/btlink/internal/device"
	"github.com/srg/btlink/internal/platform"
	"github.com/srg/btlink/scanner"
)

// Device re-exports the shared identity record.
type Device = device.Device

// Sentinel errors returned by the method-call surface.
var (
	ErrAdapterOff       = device.ErrAdapterOff
	ErrAlreadyActive    = device.ErrAlreadyActive
	ErrInvalidAddress   = device.ErrInvalidAddress
	ErrNotConnected     = device.ErrNotConnected
	ErrPermissionDenied = device.ErrPermissionDenied
	ErrLinkFailure      = device.ErrLinkFailure
	ErrNotAvailable     = device.ErrNotAvailable
)

// ServiceOptions configures a Service. Zero values select defaults.
type ServiceOptions struct {
	Logger          *logrus.Logger
	EventBufferSize int // per-subscriber capacity for event streams
	FrameBufferSize int // inbound frame buffering per session and subscriber
}

// Service is the application-facing entry point. Construct exactly one per
// process with NewService and tear it down with Close on shutdown.
type Service struct {
	radio    platform.Radio
	registry *device.Registry
	scanner  *scanner.Scanner
	monitor  *adapter.Monitor
	manager  *connmgr.Manager
	logger   *logrus.Logger
	cancel   context.CancelFunc
}

// NewService wires the discovery engine, adapter monitor, and connection
// manager over the given radio and starts the adapter watch.
func NewService(radio platform.Radio, opts *ServiceOptions) *Service {
	if opts == nil {
		opts = &ServiceOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	registry := device.NewRegistry()
	monitor := adapter.NewMonitor(radio, logger)
	ctx, cancel := context.WithCancel(context.Background())
	monitor.Start(ctx)

	return &Service{
		radio:    radio,
		registry: registry,
		scanner:  scanner.NewScanner(radio, registry, logger),
		monitor:  monitor,
		manager: connmgr.NewManager(radio, registry, logger, &connmgr.Options{
			EventBufferSize: opts.EventBufferSize,
			FrameBufferSize: opts.FrameBufferSize,
		}),
		logger: logger,
		cancel: cancel,
	}
}

// IsBluetoothOn reports whether the local adapter is powered. Always
// resolves.
func (s *Service) IsBluetoothOn() bool {
	return s.monitor.IsOn()
}

// BluetoothName returns the adapter's display name, or ErrNotAvailable when
// there is no usable adapter.
func (s *Service) BluetoothName() (string, error) {
	return s.monitor.Name()
}

// ChangeBluetoothName requests a new adapter name; false on rejection.
func (s *Service) ChangeBluetoothName(name string) bool {
	if name == "" {
		return false
	}
	if err := s.monitor.SetName(name); err != nil {
		s.logger.WithError(err).Warn("Failed to change adapter name")
		return false
	}
	return true
}

// BondedDevices re-queries the platform's bonded set, records it in the
// registry, and returns the snapshot. Fails with ErrAdapterOff.
func (s *Service) BondedDevices() ([]Device, error) {
	if !s.radio.Powered() {
		return nil, ErrAdapterOff
	}
	bonded, err := s.radio.Bonded()
	if err != nil {
		return nil, err
	}
	for _, d := range bonded {
		s.registry.Upsert(d)
	}
	return bonded, nil
}

// KnownDevices returns every device seen this process lifetime, in first-seen
// order.
func (s *Service) KnownDevices() []Device {
	return s.registry.Snapshot()
}

// StartDiscovery begins a scan session. Fails with ErrAdapterOff or
// ErrAlreadyActive; the scan itself runs until StopDiscovery.
func (s *Service) StartDiscovery(ctx context.Context) error {
	return s.scanner.Start(ctx)
}

// StopDiscovery halts the scan. Idempotent; once it returns, no further
// discovery events are delivered.
func (s *Service) StopDiscovery() {
	s.scanner.Stop()
}

// StartAdvertising makes the local device discoverable for the given number
// of seconds; 0 means the platform's default timeout.
func (s *Service) StartAdvertising(seconds int) error {
	if !s.radio.Powered() {
		return ErrAdapterOff
	}
	return s.monitor.Advertise(time.Duration(seconds) * time.Second)
}

// ConnectToDevice starts a client connection attempt. The return value is an
// acknowledgement, not the outcome - watch ConnectionEvents.
func (s *Service) ConnectToDevice(ctx context.Context, address string) error {
	return s.manager.Connect(ctx, address)
}

// StartServer opens the RFCOMM server endpoint and awaits one client.
func (s *Service) StartServer(ctx context.Context) error {
	return s.manager.Listen(ctx)
}

// ConnectionState returns the manager's current lifecycle state.
func (s *Service) ConnectionState() connmgr.State {
	return s.manager.State()
}

// Session returns the live session, or nil when not connected.
func (s *Service) Session() *connmgr.Session {
	return s.manager.Session()
}

// SendMessage writes payload to the live session. Returns false when no
// session exists or the write fails; it never panics on a dead link.
func (s *Service) SendMessage(payload []byte) bool {
	sess := s.manager.Session()
	if sess == nil {
		return false
	}
	return sess.Send(payload)
}

// CloseConnection tears down the active connection or attempt. Idempotent.
func (s *Service) CloseConnection() error {
	return s.manager.Close()
}

// DiscoveryEvents streams one Device per discovery.
func (s *Service) DiscoveryEvents() (<-chan Device, func()) {
	return s.scanner.Events()
}

// ConnectionEvents streams one event per connection state transition.
func (s *Service) ConnectionEvents() (<-chan connmgr.Event, func()) {
	return s.manager.Events()
}

// DataEvents streams one byte-frame per inbound read, across sessions.
func (s *Service) DataEvents() (<-chan []byte, func()) {
	return s.manager.Data()
}

// AdapterEvents streams one bool per genuine adapter on/off transition.
func (s *Service) AdapterEvents() (<-chan bool, func()) {
	return s.monitor.Events()
}

// Close releases everything: scan session, connection, adapter watch, and
// all subscriber streams. Idempotent.
func (s *Service) Close() error {
	s.scanner.Close()
	s.manager.Shutdown()
	s.monitor.Close()
	s.cancel()
	return s.radio.Close()
}
