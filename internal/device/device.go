// Package device holds the remote-device identity model shared by the
// scanner, the connection manager, and the public service surface: the
// immutable Device record, the address-keyed registry, and the error
// taxonomy used across the module.
package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Device identifies a remote Bluetooth Classic device.
//
// Address is the stable key; Name may be empty when the remote has not
// responded to a name request yet. A Device is a value: re-discovery with an
// updated name produces a new Device that supersedes the old one, the fields
// of an existing Device are never mutated.
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Bonded  bool   `json:"bonded"`
}

// String renders the device for logs and table output.
func (d Device) String() string {
	if d.Name == "" {
		return d.Address
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Address)
}

var addrPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// ValidAddress reports whether s is a well-formed Bluetooth device address
// (six colon-separated hex octets, e.g. "AA:BB:CC:DD:EE:FF").
func ValidAddress(s string) bool {
	return addrPattern.MatchString(s)
}

// NormalizeAddress validates s and returns it in canonical upper-case form.
// Returns ErrInvalidAddress for anything that is not a device address.
func NormalizeAddress(s string) (string, error) {
	if !ValidAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return strings.ToUpper(s), nil
}
