package device

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the module. Synchronously knowable failures
// (bad input, conflicting request, adapter down) are returned directly from
// the triggering call; failures inherent to the asynchronous link (handshake
// timeout, unexpected disconnect) are reported on the connection event stream
// instead, never from the call that started the attempt.
var (
	// ErrAdapterOff indicates the operation requires the local adapter to be
	// powered on.
	ErrAdapterOff = errors.New("bluetooth adapter is off")

	// ErrAlreadyActive indicates a conflicting connection attempt or scan is
	// already in progress. The in-flight operation is left untouched.
	ErrAlreadyActive = errors.New("operation already active")

	// ErrInvalidAddress indicates a malformed or unknown device address.
	ErrInvalidAddress = errors.New("invalid device address")

	// ErrNotConnected indicates a data operation without a live session.
	ErrNotConnected = errors.New("not connected")

	// ErrPermissionDenied indicates the platform refused the operation due to
	// missing authorization.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrLinkFailure indicates an established connection broke unexpectedly.
	ErrLinkFailure = errors.New("link failure")

	// ErrNotAvailable indicates the platform has no usable adapter at all.
	ErrNotAvailable = errors.New("bluetooth not available")
)

// NormalizeError maps known platform error strings to the sentinel taxonomy.
// It keeps callers insulated from the exact wording of BlueZ / D-Bus errors.
// The original error is preserved via wrapping.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "org.bluez.Error.NotAuthorized"),
		containsIgnoreCase(msg, "org.bluez.Error.NotPermitted"),
		containsIgnoreCase(msg, "org.freedesktop.DBus.Error.AccessDenied"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "org.bluez.Error.NotReady"):
		return fmt.Errorf("%w: %v", ErrAdapterOff, err)
	case containsIgnoreCase(msg, "org.bluez.Error.InProgress"),
		containsIgnoreCase(msg, "org.bluez.Error.Busy"):
		return fmt.Errorf("%w: %v", ErrAlreadyActive, err)
	case containsIgnoreCase(msg, "org.bluez.Error.DoesNotExist"):
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	case containsIgnoreCase(msg, "broken pipe"),
		containsIgnoreCase(msg, "connection reset"):
		return fmt.Errorf("%w: %v", ErrLinkFailure, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
