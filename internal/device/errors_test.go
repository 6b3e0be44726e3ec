package device

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		sentinel error
	}{
		{
			name:     "bluez not authorized",
			input:    fmt.Errorf("org.bluez.Error.NotAuthorized: rejected by user"),
			sentinel: ErrPermissionDenied,
		},
		{
			name:     "dbus access denied",
			input:    fmt.Errorf("org.freedesktop.DBus.Error.AccessDenied"),
			sentinel: ErrPermissionDenied,
		},
		{
			name:     "bluez not ready",
			input:    fmt.Errorf("org.bluez.Error.NotReady: resource not ready"),
			sentinel: ErrAdapterOff,
		},
		{
			name:     "bluez in progress",
			input:    fmt.Errorf("org.bluez.Error.InProgress"),
			sentinel: ErrAlreadyActive,
		},
		{
			name:     "bluez busy",
			input:    fmt.Errorf("org.bluez.Error.Busy"),
			sentinel: ErrAlreadyActive,
		},
		{
			name:     "bluez does not exist",
			input:    fmt.Errorf("org.bluez.Error.DoesNotExist"),
			sentinel: ErrInvalidAddress,
		},
		{
			name:     "broken pipe from socket",
			input:    fmt.Errorf("write: broken pipe"),
			sentinel: ErrLinkFailure,
		},
		{
			name:     "connection reset from socket",
			input:    fmt.Errorf("read: connection reset by peer"),
			sentinel: ErrLinkFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.input)
			assert.ErrorIs(t, got, tt.sentinel)
			// The platform detail stays reachable for logs.
			assert.Contains(t, got.Error(), tt.input.Error())
		})
	}
}

func TestNormalizeErrorPassThrough(t *testing.T) {
	assert.NoError(t, NormalizeError(nil))

	// Unknown errors are returned unchanged, not wrapped.
	plain := errors.New("something else entirely")
	assert.Same(t, plain, NormalizeError(plain))
	assert.Same(t, context.Canceled, NormalizeError(context.Canceled))
}
