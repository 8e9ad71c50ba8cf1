package pci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMMOutput = `00:00.0 "Host bridge" "RS780 Host Bridge" "Advanced Micro Devices, Inc. [AMD]" -r01 "" ""
0b:00.0 "VGA compatible controller" "Navi 21 [Radeon RX 6800/6800 XT / 6900 XT] [1002:73bf]" "Advanced Micro Devices, Inc. [AMD/ATI]" -rc0 "" ""
0b:00.1 "Audio device" "Navi 21/23 HDMI/DP Audio Controller [1002:ab28]" "Advanced Micro Devices, Inc. [AMD/ATI]" "" ""
`

const sampleKOutput = `0b:00.0 VGA compatible controller: Advanced Micro Devices, Inc. [AMD/ATI] Navi 21 (rev c0)
	Subsystem: Sapphire Technology Limited Device 440d
	Kernel driver in use: amdgpu
	Kernel modules: amdgpu
0b:00.1 Audio device: Advanced Micro Devices, Inc. [AMD/ATI] Navi 21/23 HDMI/DP Audio Controller
	Kernel driver in use: snd_hda_intel
	Kernel modules: snd_hda_intel
`

func TestParseMMLine_WithIDsInNameColumn(t *testing.T) {
	line := `0b:00.0 "VGA compatible controller" "Navi 21 [1002:73bf]" "Advanced Micro Devices, Inc. [AMD/ATI]" -rc0 "" ""`

	d, ok := parseMMLine(line)

	require.True(t, ok)
	assert.Equal(t, "0b:00.0", d.Address)
	assert.Equal(t, "VGA compatible controller", d.Class)
	assert.Equal(t, "Navi 21 [1002:73bf]", d.Name)
	assert.Equal(t, "1002", d.VendorID)
	assert.Equal(t, "73bf", d.DeviceID)
	assert.Equal(t, "Advanced Micro Devices, Inc.", d.Vendor)
}

func TestParseMMLine_IDsFallBackToVendorColumn(t *testing.T) {
	line := `01:00.0 "3D controller" "Some Accelerator" "Vendor Corp [10de:2684]"`

	d, ok := parseMMLine(line)

	require.True(t, ok)
	assert.Equal(t, "10de", d.VendorID)
	assert.Equal(t, "2684", d.DeviceID)
}

func TestParseMMLine_NoIDs(t *testing.T) {
	line := `00:00.0 "Host bridge" "RS780 Host Bridge" "Advanced Micro Devices, Inc."`

	d, ok := parseMMLine(line)

	require.True(t, ok)
	assert.Empty(t, d.VendorID)
	assert.Empty(t, d.DeviceID)
	assert.Empty(t, d.IDPair())
}

func TestParseMMLine_UppercaseIDsNormalized(t *testing.T) {
	line := `0b:00.0 "VGA compatible controller" "Card [1002:73BF]" "AMD"`

	d, ok := parseMMLine(line)

	require.True(t, ok)
	assert.Equal(t, "1002:73bf", d.IDPair())
}

func TestParseMMLine_SkipsUnrecognizedLines(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"plain text", "this is not lspci output"},
		{"missing fields", `0b:00.0 "VGA compatible controller"`},
		{"bad address", `zz:xx.q "VGA compatible controller" "Card" "Vendor"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseMMLine(tt.line)
			assert.False(t, ok)
		})
	}
}

func TestParseMMOutput(t *testing.T) {
	devices := parseMMOutput(sampleMMOutput)

	require.Len(t, devices, 3)
	assert.Equal(t, "00:00.0", devices[0].Address)
	assert.Equal(t, "0b:00.0", devices[1].Address)
	assert.Equal(t, "0b:00.1", devices[2].Address)

	// Discovery order is preserved
	assert.True(t, devices[1].IsDisplay())
	assert.False(t, devices[2].IsDisplay())
}

func TestParseMMOutput_GarbageLinesSkipped(t *testing.T) {
	output := "garbage line\n" + sampleMMOutput + "\nmore garbage\n"

	devices := parseMMOutput(output)

	assert.Len(t, devices, 3)
}

func TestParseMMOutput_EmptyInput(t *testing.T) {
	assert.Empty(t, parseMMOutput(""))
}

func TestParseKOutput(t *testing.T) {
	drivers := parseKOutput(sampleKOutput)

	require.Len(t, drivers, 2)
	assert.Equal(t, "amdgpu", drivers["0b:00.0"])
	assert.Equal(t, "snd_hda_intel", drivers["0b:00.1"])
}

func TestParseKOutput_DeviceWithoutDriver(t *testing.T) {
	output := `0c:00.0 Ethernet controller: Realtek RTL8111
	Kernel modules: r8169
`
	drivers := parseKOutput(output)

	assert.Empty(t, drivers)
}

func TestParseKOutput_DriverLineBeforeAnyHeader(t *testing.T) {
	output := "\tKernel driver in use: orphan\n"

	drivers := parseKOutput(output)

	assert.Empty(t, drivers)
}

func TestMergeDrivers(t *testing.T) {
	devices := []Device{
		{Address: "0b:00.0"},
		{Address: "0b:00.1"},
		{Address: "0c:00.0"},
	}
	drivers := map[string]string{
		"0b:00.0": "amdgpu",
		"0b:00.1": "snd_hda_intel",
	}

	mergeDrivers(devices, drivers)

	assert.Equal(t, "amdgpu", devices[0].Driver)
	assert.Equal(t, "snd_hda_intel", devices[1].Driver)
	assert.Empty(t, devices[2].Driver)
}

func TestMergeDrivers_FullFormAddresses(t *testing.T) {
	// Devices carrying a domain prefix still match short-form driver keys.
	devices := []Device{{Address: "0000:0b:00.0"}}
	drivers := map[string]string{"0b:00.0": "amdgpu"}

	mergeDrivers(devices, drivers)

	assert.Equal(t, "amdgpu", devices[0].Driver)
}

func TestMergeDrivers_NoDrivers(t *testing.T) {
	devices := []Device{{Address: "0b:00.0", Driver: ""}}

	mergeDrivers(devices, nil)

	assert.Empty(t, devices[0].Driver)
}
