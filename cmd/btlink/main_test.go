package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/btlink"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "numeric version gets v prefix",
			input:    "1.2.3",
			expected: "v1.2.3",
		},
		{
			name:     "already prefixed version unchanged",
			input:    "v1.2.3",
			expected: "v1.2.3",
		},
		{
			name:     "dev build unchanged",
			input:    "dev",
			expected: "dev",
		},
		{
			name:     "empty version unchanged",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatVersion(tt.input))
		})
	}
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "adapter off",
			err:      btlink.ErrAdapterOff,
			expected: "bluetooth adapter is off - turn it on and try again",
		},
		{
			name:     "wrapped adapter off",
			err:      fmt.Errorf("start scan: %w", btlink.ErrAdapterOff),
			expected: "bluetooth adapter is off - turn it on and try again",
		},
		{
			name:     "no adapter",
			err:      btlink.ErrNotAvailable,
			expected: "no bluetooth adapter available on this system",
		},
		{
			name:     "already active",
			err:      btlink.ErrAlreadyActive,
			expected: "another connection attempt or scan is already in progress",
		},
		{
			name:     "invalid address",
			err:      btlink.ErrInvalidAddress,
			expected: "invalid device address (expected AA:BB:CC:DD:EE:FF)",
		},
		{
			name:     "permission denied",
			err:      btlink.ErrPermissionDenied,
			expected: "permission denied by the platform - check bluetooth permissions",
		},
		{
			name:     "not connected",
			err:      btlink.ErrNotConnected,
			expected: "no active connection",
		},
		{
			name:     "unknown error passes through",
			err:      errors.New("something odd"),
			expected: "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err))
		})
	}
}
