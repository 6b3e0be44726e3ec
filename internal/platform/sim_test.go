package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/btlink/internal/device"
)

func TestSimRadioPowerGates(t *testing.T) {
	r := NewSimRadio("test0")
	defer r.Close()

	require.True(t, r.Powered())
	r.SetPowered(false)
	assert.False(t, r.Powered())

	_, err := r.Bonded()
	assert.ErrorIs(t, err, device.ErrAdapterOff)

	_, err = r.Dial(context.Background(), "AA:BB:CC:DD:EE:01")
	assert.ErrorIs(t, err, device.ErrAdapterOff)

	_, err = r.Listen()
	assert.ErrorIs(t, err, device.ErrAdapterOff)

	err = r.Inquiry(context.Background(), func(device.Device) {})
	assert.ErrorIs(t, err, device.ErrAdapterOff)
}

func TestSimRadioDialOutcomes(t *testing.T) {
	r := NewSimRadio("test0")
	defer r.Close()

	_, err := r.Dial(context.Background(), "AA:BB:CC:DD:EE:09")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not respond")

	peer := r.AddPeer(device.Device{Address: "AA:BB:CC:DD:EE:01", Name: "peer"})
	peer.Refuse(true)
	_, err = r.Dial(context.Background(), "AA:BB:CC:DD:EE:01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")

	peer.Refuse(false)
	link, err := r.Dial(context.Background(), "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	defer link.Close()

	far := <-peer.Incoming
	defer far.Close()

	go func() { _, _ = link.Write([]byte("ping")) }()
	buf := make([]byte, 16)
	n, err := far.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestSimRadioDialHoldRespectsContext(t *testing.T) {
	r := NewSimRadio("test0")
	defer r.Close()

	peer := r.AddPeer(device.Device{Address: "AA:BB:CC:DD:EE:01"})
	peer.Hold(true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Dial(ctx, "AA:BB:CC:DD:EE:01")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimRadioListenAccept(t *testing.T) {
	r := NewSimRadio("test0")
	defer r.Close()

	l, err := r.Listen()
	require.NoError(t, err)

	// One listening endpoint at a time.
	_, err = r.Listen()
	require.Error(t, err)

	remote := device.Device{Address: "AA:BB:CC:DD:EE:05", Name: "client"}
	clientLink, err := r.ConnectClient(remote)
	require.NoError(t, err)
	defer clientLink.Close()

	serverLink, dev, err := l.Accept(context.Background())
	require.NoError(t, err)
	defer serverLink.Close()
	assert.Equal(t, remote, dev)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	// Endpoint slot is free again after Close.
	l2, err := r.Listen()
	require.NoError(t, err)
	defer l2.Close()
}

func TestSimRadioInquiryAnnounce(t *testing.T) {
	r := NewSimRadio("test0")
	defer r.Close()

	r.AddPeer(device.Device{Address: "AA:BB:CC:DD:EE:01", Name: "known"})

	ctx, cancel := context.WithCancel(context.Background())
	found := make(chan device.Device, 8)

	done := make(chan error, 1)
	go func() {
		done <- r.Inquiry(ctx, func(d device.Device) { found <- d })
	}()

	// Snapshot of existing peers arrives first.
	d := <-found
	assert.Equal(t, "AA:BB:CC:DD:EE:01", d.Address)

	r.Announce(device.Device{Address: "AA:BB:CC:DD:EE:02", Name: "late"})
	d = <-found
	assert.Equal(t, "AA:BB:CC:DD:EE:02", d.Address)

	cancel()
	assert.NoError(t, <-done, "canceled inquiry ends cleanly")
}
