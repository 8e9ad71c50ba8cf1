package pci

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tungetti/carve/internal/errors"
)

func displayCandidates(n int) []Device {
	devices := make([]Device, n)
	for i := range devices {
		devices[i] = Device{
			Address:  fmt.Sprintf("%02x:00.0", i+1),
			Class:    "VGA compatible controller",
			VendorID: "1002",
			DeviceID: fmt.Sprintf("%04x", i+1),
		}
	}
	return devices
}

// recordingChooser counts invocations and returns a fixed answer.
type recordingChooser struct {
	index int
	err   error
	calls int
}

func (c *recordingChooser) Choose(candidates []Device) (int, error) {
	c.calls++
	return c.index, c.err
}

func TestSelectForIsolation_NoCandidates(t *testing.T) {
	chooser := &recordingChooser{}

	_, err := SelectForIsolation(nil, chooser)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Selection))
	assert.Equal(t, 0, chooser.calls)
}

func TestSelectForIsolation_SingleCandidate_NoPrompt(t *testing.T) {
	candidates := displayCandidates(1)
	chooser := &recordingChooser{index: 99} // would be out of range if consulted

	selected, err := SelectForIsolation(candidates, chooser)

	require.NoError(t, err)
	assert.Equal(t, candidates[0], selected)
	assert.Equal(t, 0, chooser.calls, "chooser must not be invoked for a single candidate")
}

func TestSelectForIsolation_MultipleCandidates_ValidChoice(t *testing.T) {
	candidates := displayCandidates(3)

	for k := 1; k <= 3; k++ {
		chooser := &recordingChooser{index: k}
		selected, err := SelectForIsolation(candidates, chooser)

		require.NoError(t, err)
		assert.Equal(t, candidates[k-1], selected)
		assert.Equal(t, 1, chooser.calls)
	}
}

func TestSelectForIsolation_OutOfRangeChoiceFails(t *testing.T) {
	candidates := displayCandidates(3)

	// No out-of-range answer falls back to a default selection.
	for _, k := range []int{0, -1, 4, 99} {
		chooser := &recordingChooser{index: k}
		_, err := SelectForIsolation(candidates, chooser)

		require.Error(t, err, "index %d must fail", k)
		assert.True(t, errors.IsCode(err, errors.Selection))
	}
}

func TestSelectForIsolation_ChooserError(t *testing.T) {
	candidates := displayCandidates(2)
	chooser := &recordingChooser{err: fmt.Errorf("input closed")}

	_, err := SelectForIsolation(candidates, chooser)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Selection))
}

func TestSelectForIsolation_NilChooser(t *testing.T) {
	candidates := displayCandidates(2)

	_, err := SelectForIsolation(candidates, nil)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Selection))
}

func TestSelectForIsolation_ChooserFunc(t *testing.T) {
	candidates := displayCandidates(2)
	chooser := ChooserFunc(func(cs []Device) (int, error) {
		return 2, nil
	})

	selected, err := SelectForIsolation(candidates, chooser)

	require.NoError(t, err)
	assert.Equal(t, candidates[1], selected)
}

func TestRelatedDevices_GroupingUnavailable(t *testing.T) {
	selected := Device{Address: "0000:0b:00.0"}

	_, err := RelatedDevices(selected, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Grouping))

	_, err = RelatedDevices(selected, GroupMap{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Grouping))
}

func TestRelatedDevices_VideoAndAudioSameGroup(t *testing.T) {
	video := Device{Address: "0000:0b:00.0", Class: "VGA compatible controller", VendorID: "1002", DeviceID: "73bf"}
	audio := Device{Address: "0000:0b:00.1", Class: "Audio device", VendorID: "1002", DeviceID: "ab28"}
	groups := GroupMap{12: {video, audio}}

	sel, err := RelatedDevices(video, groups)

	require.NoError(t, err)
	assert.Equal(t, 12, sel.PrimaryGroup)
	require.Len(t, sel.Related, 2)
	assert.Equal(t, []string{"1002:73bf", "1002:ab28"}, []string{sel.Related[0].Device.IDPair(), sel.Related[1].Device.IDPair()})
}

func TestRelatedDevices_FunctionsInDifferentGroups(t *testing.T) {
	// Some platforms place the audio function in its own group; it is
	// still related through the shared slot prefix.
	video := Device{Address: "0000:0b:00.0", VendorID: "1002", DeviceID: "73bf"}
	audio := Device{Address: "0000:0b:00.1", VendorID: "1002", DeviceID: "ab28"}
	other := Device{Address: "0000:0c:00.0", VendorID: "10ec", DeviceID: "8168"}
	groups := GroupMap{
		12: {video},
		13: {audio},
		14: {other},
	}

	sel, err := RelatedDevices(video, groups)

	require.NoError(t, err)
	assert.Equal(t, 12, sel.PrimaryGroup)
	require.Len(t, sel.Related, 2)

	groupByAddr := make(map[string]int)
	for _, r := range sel.Related {
		groupByAddr[r.Device.Address] = r.GroupID
	}
	assert.Equal(t, 12, groupByAddr["0000:0b:00.0"])
	assert.Equal(t, 13, groupByAddr["0000:0b:00.1"])
}

func TestRelatedDevices_MixedAddressSpellings(t *testing.T) {
	// The selected record comes from lspci in short form, the grouping from
	// sysfs in full form; matching normalizes both.
	selected := Device{Address: "0b:00.0", VendorID: "1002", DeviceID: "73bf"}
	groups := GroupMap{
		12: {
			{Address: "0000:0b:00.0", VendorID: "1002", DeviceID: "73bf"},
			{Address: "0000:0b:00.1", VendorID: "1002", DeviceID: "ab28"},
		},
	}

	sel, err := RelatedDevices(selected, groups)

	require.NoError(t, err)
	assert.Equal(t, 12, sel.PrimaryGroup)
	assert.Len(t, sel.Related, 2)
}

func TestRelatedDevices_DeviceAloneInGroup(t *testing.T) {
	// A GPU with no separate audio function is a valid single-record result.
	video := Device{Address: "0000:0b:00.0", VendorID: "1002", DeviceID: "73bf"}
	groups := GroupMap{12: {video}}

	sel, err := RelatedDevices(video, groups)

	require.NoError(t, err)
	assert.Equal(t, 12, sel.PrimaryGroup)
	require.Len(t, sel.Related, 1)
	assert.Equal(t, video.Address, sel.Related[0].Device.Address)
}

func TestRelatedDevices_SelectedNotInAnyGroup(t *testing.T) {
	// Present in the device listing but absent from every group is a
	// contradictory state, reported as an error.
	selected := Device{Address: "0000:0b:00.0"}
	groups := GroupMap{14: {{Address: "0000:0c:00.0"}}}

	_, err := RelatedDevices(selected, groups)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Grouping))
}

func TestRelatedDevices_InvalidAddress(t *testing.T) {
	selected := Device{Address: "not-an-address"}
	groups := GroupMap{12: {{Address: "0000:0b:00.0"}}}

	_, err := RelatedDevices(selected, groups)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Validation))
}

func TestRelatedDevices_ContainsSelectedDevice(t *testing.T) {
	video := Device{Address: "0000:0b:00.0", VendorID: "1002", DeviceID: "73bf"}
	groups := GroupMap{12: {video, {Address: "0000:0b:00.1"}}}

	sel, err := RelatedDevices(video, groups)

	require.NoError(t, err)
	found := false
	for _, r := range sel.Related {
		if ShortAddress(r.Device.Address) == ShortAddress(video.Address) {
			found = true
		}
	}
	assert.True(t, found, "selected device must appear in its own related list")
}

func TestExtractIDPairs(t *testing.T) {
	related := []GroupedDevice{
		{Device: Device{VendorID: "1002", DeviceID: "73bf"}, GroupID: 12},
		{Device: Device{VendorID: "1002", DeviceID: "ab28"}, GroupID: 12},
	}

	pairs := ExtractIDPairs(related)

	assert.Equal(t, []string{"1002:73bf", "1002:ab28"}, pairs)
}

func TestExtractIDPairs_Deduplicates(t *testing.T) {
	related := []GroupedDevice{
		{Device: Device{VendorID: "1002", DeviceID: "73bf"}},
		{Device: Device{VendorID: "1002", DeviceID: "73bf"}},
	}

	pairs := ExtractIDPairs(related)

	assert.Equal(t, []string{"1002:73bf"}, pairs)
}

func TestExtractIDPairs_OrderIndependent(t *testing.T) {
	a := GroupedDevice{Device: Device{VendorID: "1002", DeviceID: "73bf"}}
	b := GroupedDevice{Device: Device{VendorID: "1002", DeviceID: "ab28"}}
	c := GroupedDevice{Device: Device{VendorID: "10de", DeviceID: "2684"}}

	forward := ExtractIDPairs([]GroupedDevice{a, b, c})
	backward := ExtractIDPairs([]GroupedDevice{c, b, a})

	assert.Equal(t, forward, backward)
}

func TestExtractIDPairs_SkipsRecordsMissingIDs(t *testing.T) {
	related := []GroupedDevice{
		{Device: Device{VendorID: "1002", DeviceID: "73bf"}},
		{Device: Device{VendorID: "", DeviceID: "ffff"}},
		{Device: Device{VendorID: "ffff", DeviceID: ""}},
	}

	pairs := ExtractIDPairs(related)

	assert.Equal(t, []string{"1002:73bf"}, pairs)
}

func TestExtractIDPairs_EmptyResultIsValid(t *testing.T) {
	pairs := ExtractIDPairs([]GroupedDevice{{Device: Device{}}})

	assert.Empty(t, pairs)
}

// End-to-end scenario: a Radeon card with video and audio functions in
// group 12 flows from enumeration to the final ID-pair set.
func TestDiscoveryScenario_RadeonPair(t *testing.T) {
	scanner, _, mfs := newTestScanner(t, sampleMMOutput, sampleKOutput)
	mfs.AddGroup("/iommu", 12, "0000:0b:00.0", "0000:0b:00.1")
	ctx := context.Background()

	displays, err := scanner.DisplayDevices(ctx)
	require.NoError(t, err)
	require.Len(t, displays, 1)
	assert.Equal(t, "0b:00.0", displays[0].Address)

	chooser := &recordingChooser{index: 99}
	selected, err := SelectForIsolation(displays, chooser)
	require.NoError(t, err)
	assert.Equal(t, 0, chooser.calls)

	groups, err := scanner.Groups(ctx)
	require.NoError(t, err)
	require.NotNil(t, groups)

	sel, err := RelatedDevices(selected, groups)
	require.NoError(t, err)
	assert.Equal(t, 12, sel.PrimaryGroup)
	require.Len(t, sel.Related, 2)

	assert.Equal(t, []string{"1002:73bf", "1002:ab28"}, sel.IDPairs())
}

// Scenario: grouping source absent entirely.
func TestDiscoveryScenario_GroupingAbsent(t *testing.T) {
	scanner, _, _ := newTestScanner(t, sampleMMOutput, sampleKOutput)
	ctx := context.Background()

	groups, err := scanner.Groups(ctx)
	require.NoError(t, err)
	assert.Nil(t, groups)

	selected := Device{Address: "0000:0b:00.0"}
	_, err = RelatedDevices(selected, groups)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Grouping))
}
