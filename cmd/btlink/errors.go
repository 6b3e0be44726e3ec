package main

import (
	"errors"

	"github.com/srg/btlink"
)

// FormatUserError turns internal errors into actionable one-liners for the
// terminal. Unknown errors pass through unchanged.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, btlink.ErrAdapterOff):
		return "bluetooth adapter is off - turn it on and try again"
	case errors.Is(err, btlink.ErrNotAvailable):
		return "no bluetooth adapter available on this system"
	case errors.Is(err, btlink.ErrAlreadyActive):
		return "another connection attempt or scan is already in progress"
	case errors.Is(err, btlink.ErrInvalidAddress):
		return "invalid device address (expected AA:BB:CC:DD:EE:FF)"
	case errors.Is(err, btlink.ErrPermissionDenied):
		return "permission denied by the platform - check bluetooth permissions"
	case errors.Is(err, btlink.ErrNotConnected):
		return "no active connection"
	default:
		return err.Error()
	}
}
