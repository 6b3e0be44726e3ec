//go:build linux

// Package bluez implements platform.Radio on top of the BlueZ D-Bus API.
// RFCOMM link FDs are obtained by exporting org.bluez.Profile1 objects and
// waiting for NewConnection callbacks; inquiry rides on ObjectManager
// InterfacesAdded signals.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/btlink/internal/device"
	"github.com/srg/btlink/internal/platform"
)

const (
	// SPPUUID is the Serial Port Profile UUID used for RFCOMM connections.
	SPPUUID = "00001101-0000-1000-8000-00805f9b34fb"

	// DefaultRFCOMMChannel is the fixed RFCOMM channel for the server-side profile.
	DefaultRFCOMMChannel uint16 = 22

	serverServiceName = "btlink"
)

const (
	bluezService        = "org.bluez"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	deviceIface         = "org.bluez.Device1"
	adapterIface        = "org.bluez.Adapter1"
	objManagerIface     = "org.freedesktop.DBus.ObjectManager"
	propsIface          = "org.freedesktop.DBus.Properties"
)

var pathCounter uint64

// Radio is the BlueZ-backed adapter handle. One instance owns one system bus
// connection and the first adapter found on it.
type Radio struct {
	mu          sync.Mutex
	bus         *dbus.Conn
	adapterPath dbus.ObjectPath
	logger      *logrus.Logger
	closed      bool

	clientProf *profile
	clientPath dbus.ObjectPath

	// cleanup functions executed once in reverse order by Close.
	cleanup []func()
}

// New connects to the system bus and binds the first available adapter.
// Returns device.ErrNotAvailable when no adapter exists.
func New(logger *logrus.Logger) (*Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}

	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}

	r := &Radio{bus: bus, logger: logger}
	r.cleanup = append(r.cleanup, func() { _ = bus.Close() })

	adapters, err := r.listAdapters()
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	if len(adapters) == 0 {
		_ = bus.Close()
		return nil, fmt.Errorf("%w: no adapter on system bus", device.ErrNotAvailable)
	}
	r.adapterPath = adapters[0]

	logger.WithField("adapter", string(r.adapterPath)).Debug("Bound BlueZ adapter")
	return r, nil
}

// profile implements org.bluez.Profile1 and forwards NewConnection FDs.
type profile struct {
	ch chan connResult
}

type connResult struct {
	fd  int
	dev device.Device
}

func (p *profile) Release() *dbus.Error { return nil }

func (p *profile) Cancel() *dbus.Error { return nil }

func (p *profile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection delivers the RFCOMM FD to the waiting goroutine. When nobody
// is waiting the FD is closed and the connection rejected, which is how a
// second inbound client is refused while a session is active.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	res := connResult{
		fd:  int(fd),
		dev: device.Device{Address: macFromPath(dev)},
	}
	select {
	case p.ch <- res:
		return nil
	default:
		_ = os.NewFile(uintptr(res.fd), "rfcomm").Close()
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no receiver"}}
	}
}

func (r *Radio) Powered() bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	bus, ap := r.bus, r.adapterPath
	r.mu.Unlock()

	v, err := bus.Object(bluezService, ap).GetProperty(adapterIface + ".Powered")
	if err != nil {
		return false
	}
	on, _ := v.Value().(bool)
	return on
}

func (r *Radio) Name() (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", device.ErrNotAvailable
	}
	bus, ap := r.bus, r.adapterPath
	r.mu.Unlock()

	v, err := bus.Object(bluezService, ap).GetProperty(adapterIface + ".Alias")
	if err != nil {
		return "", fmt.Errorf("%w: %v", device.ErrNotAvailable, err)
	}
	name, _ := v.Value().(string)
	return name, nil
}

func (r *Radio) SetName(name string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return device.ErrNotAvailable
	}
	bus, ap := r.bus, r.adapterPath
	r.mu.Unlock()

	call := bus.Object(bluezService, ap).Call(propsIface+".Set", 0,
		adapterIface, "Alias", dbus.MakeVariant(name))
	if call.Err != nil {
		return device.NormalizeError(fmt.Errorf("bluez: set alias: %w", call.Err))
	}
	return nil
}

func (r *Radio) SetDiscoverable(d time.Duration) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return device.ErrNotAvailable
	}
	bus, ap := r.bus, r.adapterPath
	r.mu.Unlock()

	obj := bus.Object(bluezService, ap)
	if d > 0 {
		call := obj.Call(propsIface+".Set", 0,
			adapterIface, "DiscoverableTimeout", dbus.MakeVariant(uint32(d/time.Second)))
		if call.Err != nil {
			return device.NormalizeError(fmt.Errorf("bluez: set discoverable timeout: %w", call.Err))
		}
	}
	call := obj.Call(propsIface+".Set", 0,
		adapterIface, "Discoverable", dbus.MakeVariant(true))
	if call.Err != nil {
		return device.NormalizeError(fmt.Errorf("bluez: set discoverable: %w", call.Err))
	}
	return nil
}

func (r *Radio) Bonded() ([]device.Device, error) {
	objs, err := r.managedObjects()
	if err != nil {
		return nil, err
	}

	var out []device.Device
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		paired, _ := variantBool(props, "Paired")
		if !paired {
			continue
		}
		out = append(out, deviceFromProps(path, props))
	}
	return out, nil
}

func (r *Radio) Inquiry(ctx context.Context, found func(device.Device)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return device.ErrNotAvailable
	}
	bus, ap := r.bus, r.adapterPath
	r.mu.Unlock()

	adapter := bus.Object(bluezService, ap)
	if call := adapter.Call(adapterIface+".StartDiscovery", 0); call.Err != nil {
		return device.NormalizeError(fmt.Errorf("bluez: StartDiscovery: %w", call.Err))
	}
	defer func() {
		_ = adapter.Call(adapterIface+".StopDiscovery", 0).Err
	}()

	sigCh := make(chan *dbus.Signal, 32)
	bus.Signal(sigCh)
	defer bus.RemoveSignal(sigCh)
	if err := bus.AddMatchSignal(
		dbus.WithMatchInterface(objManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return fmt.Errorf("bluez: AddMatchSignal: %w", err)
	}
	defer func() {
		_ = bus.RemoveMatchSignal(
			dbus.WithMatchInterface(objManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		)
	}()

	// Prime with devices BlueZ already knows about.
	if objs, err := r.managedObjects(); err == nil {
		for path, ifaces := range objs {
			if props, ok := ifaces[deviceIface]; ok {
				found(deviceFromProps(path, props))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			if sig == nil || len(sig.Body) < 2 {
				continue
			}
			path, _ := sig.Body[0].(dbus.ObjectPath)
			ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
			if props, ok := ifaces[deviceIface]; ok {
				found(deviceFromProps(path, props))
			}
		}
	}
}

func (r *Radio) Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, device.ErrNotAvailable
	}
	if err := r.ensureClientProfileLocked(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	bus, ap := r.bus, r.adapterPath
	ch := r.clientProf.ch
	r.mu.Unlock()

	devPath := devicePath(ap, addr)
	devObj := bus.Object(bluezService, devPath)

	// Pair first if needed; a pre-registered agent handles any authorization.
	if v, err := devObj.GetProperty(deviceIface + ".Paired"); err == nil {
		if paired, ok := v.Value().(bool); ok && !paired {
			if err := devObj.Call(deviceIface+".Pair", 0).Err; err != nil {
				return nil, device.NormalizeError(fmt.Errorf("bluez: Pair: %w", err))
			}
		}
	}

	if call := devObj.Call(deviceIface+".ConnectProfile", 0, SPPUUID); call.Err != nil {
		return nil, device.NormalizeError(fmt.Errorf("bluez: ConnectProfile: %w", call.Err))
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("bluez: connect canceled: %w", ctx.Err())
	case res := <-ch:
		return os.NewFile(uintptr(res.fd), "rfcomm"), nil
	}
}

func (r *Radio) Listen() (platform.Listener, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, device.ErrNotAvailable
	}

	prof := &profile{ch: make(chan connResult, 1)}
	id := atomic.AddUint64(&pathCounter, 1)
	path := dbus.ObjectPath("/com/srg/btlink/server/p" + strconv.FormatUint(id, 10))
	if err := r.bus.Export(prof, path, profileIface); err != nil {
		return nil, fmt.Errorf("bluez: export server profile: %w", err)
	}

	opts := map[string]dbus.Variant{
		"Name":    dbus.MakeVariant(serverServiceName),
		"Role":    dbus.MakeVariant("server"),
		"Channel": dbus.MakeVariant(DefaultRFCOMMChannel),
	}
	pm := r.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, path, SPPUUID, opts); call.Err != nil {
		_ = r.bus.Export(nil, path, profileIface)
		return nil, device.NormalizeError(fmt.Errorf("bluez: RegisterProfile(server): %w", call.Err))
	}

	return &listener{radio: r, prof: prof, path: path, done: make(chan struct{})}, nil
}

func (r *Radio) PowerEvents(ctx context.Context) <-chan bool {
	out := make(chan bool, 8)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(out)
		return out
	}
	bus, ap := r.bus, r.adapterPath
	r.mu.Unlock()

	go func() {
		defer close(out)

		sigCh := make(chan *dbus.Signal, 16)
		bus.Signal(sigCh)
		defer bus.RemoveSignal(sigCh)
		if err := bus.AddMatchSignal(
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchObjectPath(ap),
		); err != nil {
			r.logger.WithError(err).Warn("Failed to watch adapter properties")
			return
		}
		defer func() {
			_ = bus.RemoveMatchSignal(
				dbus.WithMatchInterface(propsIface),
				dbus.WithMatchMember("PropertiesChanged"),
				dbus.WithMatchObjectPath(ap),
			)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if sig == nil || len(sig.Body) < 2 {
					continue
				}
				iface, _ := sig.Body[0].(string)
				if iface != adapterIface {
					continue
				}
				changed, _ := sig.Body[1].(map[string]dbus.Variant)
				if v, ok := changed["Powered"]; ok {
					if on, ok := v.Value().(bool); ok {
						select {
						case out <- on:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
	}()
	return out
}

// Close releases profiles and the bus connection. Idempotent and safe for
// concurrent use.
func (r *Radio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cleanup := r.cleanup
	r.cleanup = nil
	r.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		if cleanup[i] != nil {
			cleanup[i]()
		}
	}
	return nil
}

// ensureClientProfileLocked exports and registers the client-role Profile1
// object once per radio. Caller holds r.mu.
func (r *Radio) ensureClientProfileLocked() error {
	if r.clientProf != nil {
		return nil
	}

	prof := &profile{ch: make(chan connResult, 1)}
	id := atomic.AddUint64(&pathCounter, 1)
	path := dbus.ObjectPath("/com/srg/btlink/client/p" + strconv.FormatUint(id, 10))
	if err := r.bus.Export(prof, path, profileIface); err != nil {
		return fmt.Errorf("bluez: export client profile: %w", err)
	}

	opts := map[string]dbus.Variant{
		"Role": dbus.MakeVariant("client"),
	}
	pm := r.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, path, SPPUUID, opts); call.Err != nil {
		_ = r.bus.Export(nil, path, profileIface)
		return device.NormalizeError(fmt.Errorf("bluez: RegisterProfile(client): %w", call.Err))
	}

	r.clientProf = prof
	r.clientPath = path
	r.cleanup = append(r.cleanup, func() {
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, path).Err
		_ = r.bus.Export(nil, path, profileIface)
	})
	return nil
}

type listener struct {
	radio  *Radio
	prof   *profile
	path   dbus.ObjectPath
	closed sync.Once
	done   chan struct{}
}

func (l *listener) Accept(ctx context.Context) (io.ReadWriteCloser, device.Device, error) {
	select {
	case <-ctx.Done():
		return nil, device.Device{}, ctx.Err()
	case <-l.done:
		return nil, device.Device{}, errors.New("bluez: listener closed")
	case res := <-l.prof.ch:
		// Fill in the name if BlueZ has one for this device.
		d := res.dev
		if d.Address != "" {
			devObj := l.radio.bus.Object(bluezService, devicePath(l.radio.adapterPath, d.Address))
			if v, err := devObj.GetProperty(deviceIface + ".Alias"); err == nil {
				d.Name, _ = v.Value().(string)
			}
			if v, err := devObj.GetProperty(deviceIface + ".Paired"); err == nil {
				d.Bonded, _ = v.Value().(bool)
			}
		}
		return os.NewFile(uintptr(res.fd), "rfcomm"), d, nil
	}
}

func (l *listener) Close() error {
	l.closed.Do(func() {
		close(l.done)
		pm := l.radio.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, l.path).Err
		_ = l.radio.bus.Export(nil, l.path, profileIface)

		// Close any FD that arrived after the last Accept.
		select {
		case res := <-l.prof.ch:
			_ = os.NewFile(uintptr(res.fd), "rfcomm").Close()
		default:
		}
	})
	return nil
}

// Helpers

func (r *Radio) listAdapters() ([]dbus.ObjectPath, error) {
	objs, err := r.managedObjects()
	if err != nil {
		return nil, err
	}
	var out []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok {
			out = append(out, path)
		}
	}
	return out, nil
}

func (r *Radio) managedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	obj := r.bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := obj.Call(objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, device.NormalizeError(fmt.Errorf("bluez: GetManagedObjects: %w", call.Err))
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez: decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

func deviceFromProps(path dbus.ObjectPath, props map[string]dbus.Variant) device.Device {
	d := device.Device{}
	if v, ok := props["Address"]; ok {
		d.Address, _ = v.Value().(string)
	}
	if d.Address == "" {
		d.Address = macFromPath(path)
	}
	if v, ok := props["Alias"]; ok {
		d.Name, _ = v.Value().(string)
	}
	if d.Name == "" {
		if v, ok := props["Name"]; ok {
			d.Name, _ = v.Value().(string)
		}
	}
	d.Bonded, _ = variantBool(props, "Paired")
	return d
}

func variantBool(props map[string]dbus.Variant, key string) (bool, bool) {
	v, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

func devicePath(adapter dbus.ObjectPath, addr string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(strings.ToUpper(addr), ":", "_"))
}

func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}
