//go:build !linux

// Package bluez implements platform.Radio on top of the BlueZ D-Bus API.
// BlueZ only exists on Linux; other platforms get ErrNotAvailable.
package bluez

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/btlink/internal/device"
	"github.com/srg/btlink/internal/platform"
)

// New reports that no BlueZ stack is available on this platform.
func New(_ *logrus.Logger) (platform.Radio, error) {
	return nil, device.ErrNotAvailable
}
