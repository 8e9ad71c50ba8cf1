package pci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_IsDisplay(t *testing.T) {
	tests := []struct {
		name     string
		class    string
		expected bool
	}{
		{"VGA controller", "VGA compatible controller", true},
		{"VGA lowercase", "vga compatible controller", true},
		{"3D controller", "3D controller", true},
		{"display controller", "Display controller", true},
		{"audio device", "Audio device", false},
		{"host bridge", "Host bridge", false},
		{"empty class", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Device{Class: tt.class}
			assert.Equal(t, tt.expected, d.IsDisplay())
		})
	}
}

func TestDevice_IDPair(t *testing.T) {
	d := Device{VendorID: "1002", DeviceID: "73bf"}
	assert.Equal(t, "1002:73bf", d.IDPair())
	assert.True(t, d.HasIDs())
}

func TestDevice_IDPair_MissingIDs(t *testing.T) {
	tests := []struct {
		name   string
		device Device
	}{
		{"no vendor", Device{DeviceID: "73bf"}},
		{"no device", Device{VendorID: "1002"}},
		{"neither", Device{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, tt.device.IDPair())
			assert.False(t, tt.device.HasIDs())
		})
	}
}

func TestDevice_Drivers(t *testing.T) {
	bound := Device{Driver: "amdgpu"}
	assert.True(t, bound.HasDriver())
	assert.False(t, bound.IsUsingVFIO())

	vfio := Device{Driver: "vfio-pci"}
	assert.True(t, vfio.IsUsingVFIO())

	unbound := Device{}
	assert.False(t, unbound.HasDriver())
}

func TestShortAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0000:0b:00.0", "0b:00.0"},
		{"0b:00.0", "0b:00.0"},
		{"0000:0b:00.1", "0b:00.1"},
		{"garbage", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShortAddress(tt.input))
		})
	}
}

func TestSlotPrefix(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0000:0b:00.0", "0b:00"},
		{"0b:00.0", "0b:00"},
		{"0000:0b:00.1", "0b:00"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			prefix, err := SlotPrefix(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, prefix)
		})
	}
}

func TestSlotPrefix_SameSlotDifferentSpelling(t *testing.T) {
	// Domain-full and domain-less spellings normalize to the same key.
	full, err := SlotPrefix("0000:0b:00.0")
	require.NoError(t, err)
	short, err := SlotPrefix("0b:00.1")
	require.NoError(t, err)
	assert.Equal(t, full, short)
}

func TestSlotPrefix_Invalid(t *testing.T) {
	tests := []string{"", "not-an-address", "0b:00", "0b.00.0", "zz:00.0"}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := SlotPrefix(input)
			assert.Error(t, err)
		})
	}
}

func TestParseHexID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0x1002", "1002"},
		{"0X73BF", "73bf"},
		{"  0x1002\n", "1002"},
		{"ab28", "ab28"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseHexID(tt.input))
		})
	}
}

func TestDevice_String(t *testing.T) {
	d := Device{
		Address:  "0b:00.0",
		Name:     "Navi 21 [1002:73bf]",
		VendorID: "1002",
		DeviceID: "73bf",
		Driver:   "amdgpu",
	}
	s := d.String()
	assert.Contains(t, s, "0b:00.0")
	assert.Contains(t, s, "1002:73bf")
	assert.Contains(t, s, "amdgpu")

	unbound := Device{Address: "0b:00.0"}
	assert.Contains(t, unbound.String(), "no driver")
}
