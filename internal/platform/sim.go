package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/srg/btlink/internal/device"
	"github.com/srg/btlink/internal/eventbus"
)

// SimRadio is an in-memory Radio over net.Pipe links. It backs the test
// suites and the CLI demo mode. The zero value is not usable; construct with
// NewSimRadio.
//
// Test hooks (SetPowered, AddPeer, Announce, ConnectClient, DenyPermission)
// are safe to call concurrently with Radio operations.
type SimRadio struct {
	mu         sync.Mutex
	powered    bool
	name       string
	bonded     []device.Device
	peers      map[string]*SimPeer
	listener   *simListener
	inquiries  map[*inquiryWatcher]struct{}
	powerBus   *eventbus.Bus[bool]
	denyPerm   bool
	discovSecs time.Duration
	closed     bool
}

// SimPeer is a dialable remote device in the simulated world. Links opened
// toward the peer via Radio.Dial arrive on Incoming; the test owns the far
// end of each pipe.
type SimPeer struct {
	Device   device.Device
	Incoming chan io.ReadWriteCloser
	refuse   bool
	hold     bool
}

// Refuse makes subsequent dials to this peer fail at handshake time.
func (p *SimPeer) Refuse(v bool) { p.refuse = v }

// Hold makes subsequent dials to this peer block until their context is
// canceled, simulating an unresponsive remote.
func (p *SimPeer) Hold(v bool) { p.hold = v }

type inquiryWatcher struct {
	found chan device.Device
}

type inbound struct {
	link io.ReadWriteCloser
	dev  device.Device
}

type simListener struct {
	radio  *SimRadio
	in     chan inbound
	done   chan struct{}
	closed sync.Once
}

// NewSimRadio creates a powered-on simulated adapter named name.
func NewSimRadio(name string) *SimRadio {
	if name == "" {
		name = "sim0"
	}
	return &SimRadio{
		powered:   true,
		name:      name,
		peers:     make(map[string]*SimPeer),
		inquiries: make(map[*inquiryWatcher]struct{}),
		powerBus:  eventbus.NewBus[bool](8),
	}
}

// SetPowered flips the simulated adapter power state and publishes the raw
// observation. Repeated calls with the same value still publish, so edge
// detection downstream can be exercised.
func (r *SimRadio) SetPowered(on bool) {
	r.mu.Lock()
	r.powered = on
	r.mu.Unlock()
	r.powerBus.Publish(on)
}

// DenyPermission makes scan and connect operations fail with
// ErrPermissionDenied, mimicking a platform authorization refusal.
func (r *SimRadio) DenyPermission(deny bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denyPerm = deny
}

// AddBonded appends d to the simulated bonded set.
func (r *SimRadio) AddBonded(d device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.Bonded = true
	r.bonded = append(r.bonded, d)
}

// AddPeer makes d dialable and visible to subsequent inquiry scans.
func (r *SimRadio) AddPeer(d device.Device) *SimPeer {
	p := &SimPeer{Device: d, Incoming: make(chan io.ReadWriteCloser, 4)}
	r.mu.Lock()
	r.peers[d.Address] = p
	r.mu.Unlock()
	return p
}

// Announce delivers an inquiry observation of d to every active scan.
// Calling it repeatedly with the same device simulates the duplicate
// advertisements a real inquiry produces.
func (r *SimRadio) Announce(d device.Device) {
	r.mu.Lock()
	watchers := make([]*inquiryWatcher, 0, len(r.inquiries))
	for w := range r.inquiries {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()

	for _, w := range watchers {
		select {
		case w.found <- d:
		default:
		}
	}
}

// ConnectClient simulates a remote client connecting to the local server
// endpoint. It returns the client-side link, which the caller owns.
func (r *SimRadio) ConnectClient(d device.Device) (io.ReadWriteCloser, error) {
	r.mu.Lock()
	l := r.listener
	r.mu.Unlock()
	if l == nil {
		return nil, errors.New("sim: no listening endpoint")
	}

	near, far := net.Pipe()
	select {
	case l.in <- inbound{link: far, dev: d}:
		return near, nil
	case <-l.done:
		_ = near.Close()
		_ = far.Close()
		return nil, errors.New("sim: listener closed")
	}
}

// DiscoverableFor returns the duration passed to the last SetDiscoverable
// call, for test assertions.
func (r *SimRadio) DiscoverableFor() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discovSecs
}

func (r *SimRadio) Powered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powered && !r.closed
}

func (r *SimRadio) Name() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", device.ErrNotAvailable
	}
	return r.name, nil
}

func (r *SimRadio) SetName(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return device.ErrNotAvailable
	}
	if name == "" {
		return errors.New("sim: empty adapter name")
	}
	r.name = name
	return nil
}

func (r *SimRadio) SetDiscoverable(d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.powered || r.closed {
		return device.ErrAdapterOff
	}
	r.discovSecs = d
	return nil
}

func (r *SimRadio) Bonded() ([]device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.powered || r.closed {
		return nil, device.ErrAdapterOff
	}
	out := make([]device.Device, len(r.bonded))
	copy(out, r.bonded)
	return out, nil
}

func (r *SimRadio) Inquiry(ctx context.Context, found func(device.Device)) error {
	r.mu.Lock()
	if !r.powered || r.closed {
		r.mu.Unlock()
		return device.ErrAdapterOff
	}
	if r.denyPerm {
		r.mu.Unlock()
		return device.ErrPermissionDenied
	}
	w := &inquiryWatcher{found: make(chan device.Device, 32)}
	r.inquiries[w] = struct{}{}
	snapshot := make([]device.Device, 0, len(r.peers))
	for _, p := range r.peers {
		snapshot = append(snapshot, p.Device)
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inquiries, w)
		r.mu.Unlock()
	}()

	for _, d := range snapshot {
		found(d)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-w.found:
			found(d)
		}
	}
}

func (r *SimRadio) Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	r.mu.Lock()
	if !r.powered || r.closed {
		r.mu.Unlock()
		return nil, device.ErrAdapterOff
	}
	if r.denyPerm {
		r.mu.Unlock()
		return nil, device.ErrPermissionDenied
	}
	p, ok := r.peers[addr]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("sim: host %s did not respond", addr)
	}
	if p.refuse {
		return nil, fmt.Errorf("sim: host %s refused the connection", addr)
	}
	if p.hold {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	near, far := net.Pipe()
	select {
	case p.Incoming <- far:
		return near, nil
	case <-ctx.Done():
		_ = near.Close()
		_ = far.Close()
		return nil, ctx.Err()
	}
}

func (r *SimRadio) Listen() (Listener, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.powered || r.closed {
		return nil, device.ErrAdapterOff
	}
	if r.listener != nil {
		return nil, errors.New("sim: endpoint already listening")
	}
	l := &simListener{
		radio: r,
		in:    make(chan inbound, 1),
		done:  make(chan struct{}),
	}
	r.listener = l
	return l, nil
}

func (r *SimRadio) PowerEvents(ctx context.Context) <-chan bool {
	ch, unsub := r.powerBus.Subscribe()
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return ch
}

func (r *SimRadio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	l := r.listener
	r.listener = nil
	r.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}
	r.powerBus.Close()
	return nil
}

func (l *simListener) Accept(ctx context.Context) (io.ReadWriteCloser, device.Device, error) {
	select {
	case <-ctx.Done():
		return nil, device.Device{}, ctx.Err()
	case <-l.done:
		return nil, device.Device{}, errors.New("sim: listener closed")
	case in := <-l.in:
		return in.link, in.dev, nil
	}
}

func (l *simListener) Close() error {
	l.closed.Do(func() {
		close(l.done)
		l.radio.mu.Lock()
		if l.radio.listener == l {
			l.radio.listener = nil
		}
		l.radio.mu.Unlock()

		// Drain and close any link that raced the shutdown.
		select {
		case in := <-l.in:
			_ = in.link.Close()
		default:
		}
	})
	return nil
}
