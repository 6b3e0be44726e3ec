// Package radiofactory selects the platform.Radio implementation for the
// running system.
package radiofactory

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/btlink/internal/platform"
	"github.com/srg/btlink/internal/platform/bluez"
)

// RadioFactory creates the native Radio for the host platform.
// This is a variable so that it can be overridden in tests.
var RadioFactory = func(logger *logrus.Logger) (platform.Radio, error) {
	return bluez.New(logger)
}
