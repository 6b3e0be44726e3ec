package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/btlink"
)

// TestDemoRadioEchoPeer exercises the full --sim path: connect to the echo
// peer and verify a round trip.
func TestDemoRadioEchoPeer(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	svc := btlink.NewService(demoRadio(), &btlink.ServiceOptions{Logger: logger})
	defer svc.Close()

	events, unsub := svc.ConnectionEvents()
	defer unsub()
	data, unsubData := svc.DataEvents()
	defer unsubData()

	require.NoError(t, svc.ConnectToDevice(context.Background(), "AA:BB:CC:DD:EE:01"))

	select {
	case ev := <-events:
		require.True(t, ev.Success)
		require.NotNil(t, ev.Device)
		assert.Equal(t, "AA:BB:CC:DD:EE:01", ev.Device.Address)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echo peer connection")
	}

	require.True(t, svc.SendMessage([]byte("marco")))

	select {
	case frame := <-data:
		assert.Equal(t, "marco", string(frame))
	case <-time.After(time.Second):
		t.Fatal("echo peer never answered")
	}
}

func TestDemoRadioBondedPeer(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	svc := btlink.NewService(demoRadio(), &btlink.ServiceOptions{Logger: logger})
	defer svc.Close()

	bonded, err := svc.BondedDevices()
	require.NoError(t, err)
	require.Len(t, bonded, 1)
	assert.Equal(t, "sim-bonded", bonded[0].Name)
}
