// Package platform abstracts the native Bluetooth Classic stack behind the
// Radio interface. The real implementation talks to BlueZ over D-Bus (see the
// bluez subpackage); the simulated implementation in sim.go backs the tests
// and the demo mode without hardware.
package platform

import (
	"context"
	"io"
	"time"

	"github.com/srg/btlink/internal/device"
)

// Listener is an open RFCOMM server endpoint. Accept blocks until a remote
// client connects or ctx is canceled; the returned link is owned by the
// caller. Close releases the endpoint and unblocks any pending Accept.
type Listener interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, device.Device, error)
	Close() error
}

// Radio is the single adapter handle shared by discovery, connections, and
// the adapter-state monitor. Implementations must tolerate concurrent calls;
// adapter-level mutations (SetName, SetDiscoverable) are serialized by the
// caller.
type Radio interface {
	// Powered reports whether the local adapter is on. False also covers the
	// no-adapter case; Name distinguishes the two.
	Powered() bool

	// Name returns the adapter's display name, or ErrNotAvailable when there
	// is no usable adapter.
	Name() (string, error)

	// SetName requests a new adapter display name.
	SetName(name string) error

	// SetDiscoverable makes the local device visible to inquiry scans for d.
	// d == 0 means the platform's default timeout.
	SetDiscoverable(d time.Duration) error

	// Bonded returns the platform's current bonded set. It is re-queried on
	// every call, never cached here.
	Bonded() ([]device.Device, error)

	// Inquiry runs a device scan, invoking found for every observation until
	// ctx is canceled. Observations may repeat; deduplication is the
	// caller's concern. Returns nil on cancellation.
	Inquiry(ctx context.Context, found func(device.Device)) error

	// Dial opens an RFCOMM link to the remote device at addr. The handshake
	// is bounded by ctx.
	Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error)

	// Listen opens an RFCOMM server endpoint.
	Listen() (Listener, error)

	// PowerEvents streams raw adapter power observations until ctx is
	// canceled. Duplicates are allowed; edge detection is the caller's
	// concern.
	PowerEvents(ctx context.Context) <-chan bool

	// Close releases the adapter handle. Idempotent.
	Close() error
}
