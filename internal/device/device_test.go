package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{
			name:  "canonical uppercase",
			input: "AA:BB:CC:DD:EE:FF",
			valid: true,
		},
		{
			name:  "lowercase accepted",
			input: "aa:bb:cc:dd:ee:ff",
			valid: true,
		},
		{
			name:  "mixed case accepted",
			input: "Aa:bB:cC:Dd:Ee:fF",
			valid: true,
		},
		{
			name:  "digits only",
			input: "00:11:22:33:44:55",
			valid: true,
		},
		{
			name:  "too few octets",
			input: "AA:BB:CC:DD:EE",
			valid: false,
		},
		{
			name:  "too many octets",
			input: "AA:BB:CC:DD:EE:FF:00",
			valid: false,
		},
		{
			name:  "dashes instead of colons",
			input: "AA-BB-CC-DD-EE-FF",
			valid: false,
		},
		{
			name:  "non-hex characters",
			input: "GG:BB:CC:DD:EE:FF",
			valid: false,
		},
		{
			name:  "empty string",
			input: "",
			valid: false,
		},
		{
			name:  "trailing garbage",
			input: "AA:BB:CC:DD:EE:FF ",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidAddress(tt.input))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := NormalizeAddress("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", addr)

	_, err = NormalizeAddress("not-an-address")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Contains(t, err.Error(), "not-an-address")
}

func TestDeviceString(t *testing.T) {
	named := Device{Address: "AA:BB:CC:DD:EE:01", Name: "headset"}
	assert.Equal(t, "headset (AA:BB:CC:DD:EE:01)", named.String())

	anon := Device{Address: "AA:BB:CC:DD:EE:02"}
	assert.Equal(t, "AA:BB:CC:DD:EE:02", anon.String())
}
