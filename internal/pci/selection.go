package pci

import (
	"sort"

	"github.com/tungetti/carve/internal/errors"
)

// Chooser resolves an ambiguous candidate list to a single choice. It is
// the presentation-layer boundary: implementations may prompt the user, but
// the model-building code never touches the terminal itself. Choose returns
// a 1-based index into the candidate list; any error or out-of-range index
// is a selection failure, never a silent default.
type Chooser interface {
	Choose(candidates []Device) (int, error)
}

// ChooserFunc adapts a function to the Chooser interface.
type ChooserFunc func(candidates []Device) (int, error)

// Choose calls the wrapped function.
func (f ChooserFunc) Choose(candidates []Device) (int, error) {
	return f(candidates)
}

// GroupedDevice pairs a device with the IOMMU group the kernel placed it in.
type GroupedDevice struct {
	Device  Device
	GroupID int
}

// Selection is the outcome of matching a chosen display device against the
// IOMMU grouping: the device itself, the group holding its exact address,
// and every function sharing its bus/slot prefix across all groups. The
// related list always contains the selected device's own record.
type Selection struct {
	Device       Device
	PrimaryGroup int
	Related      []GroupedDevice
}

// IDPairs returns the deduplicated, sorted vendor:device pairs of the
// related devices.
func (s *Selection) IDPairs() []string {
	return ExtractIDPairs(s.Related)
}

// SelectForIsolation picks the device to isolate from the candidate list.
// Exactly one candidate is returned directly without consulting the
// chooser. With several candidates the chooser must return a valid 1-based
// index; anything else is an ambiguous-selection failure. Zero candidates
// is a no-candidates failure.
func SelectForIsolation(candidates []Device, chooser Chooser) (Device, error) {
	switch len(candidates) {
	case 0:
		return Device{}, errors.ErrNoCandidates
	case 1:
		return candidates[0], nil
	}

	if chooser == nil {
		return Device{}, errors.Wrap(errors.Selection, "multiple candidates and no chooser available", errors.ErrAmbiguousSelection).WithOp("pci.SelectForIsolation")
	}

	idx, err := chooser.Choose(candidates)
	if err != nil {
		return Device{}, errors.Wrap(errors.Selection, "device choice failed", err).WithOp("pci.SelectForIsolation")
	}
	if idx < 1 || idx > len(candidates) {
		return Device{}, errors.Newf(errors.Selection, "choice %d out of range [1,%d]", idx, len(candidates)).WithOp("pci.SelectForIsolation")
	}
	return candidates[idx-1], nil
}

// RelatedDevices matches the selected device against the IOMMU grouping.
// Every group member sharing the selected device's bus/slot prefix is
// related; the primary group is the one holding the exact selected address.
// A nil grouping is rejected with a grouping-unavailable failure. The
// selected device missing from every group is a contradictory state and is
// reported as an error rather than treated as "device alone"; a related set
// of exactly one (the device itself) is a valid result.
func RelatedDevices(selected Device, groups GroupMap) (*Selection, error) {
	if len(groups) == 0 {
		return nil, errors.ErrGroupingUnavailable
	}

	prefix, err := SlotPrefix(selected.Address)
	if err != nil {
		return nil, errors.Wrap(errors.Validation, "invalid selected device address", err).WithOp("pci.RelatedDevices")
	}
	selectedShort := ShortAddress(selected.Address)

	sel := &Selection{Device: selected}
	foundPrimary := false

	for _, id := range groups.GroupIDs() {
		for _, d := range groups[id] {
			memberPrefix, err := SlotPrefix(d.Address)
			if err != nil {
				continue
			}
			if memberPrefix != prefix {
				continue
			}

			sel.Related = append(sel.Related, GroupedDevice{Device: d, GroupID: id})
			if ShortAddress(d.Address) == selectedShort {
				sel.PrimaryGroup = id
				foundPrimary = true
			}
		}
	}

	if !foundPrimary {
		return nil, errors.Wrapf(errors.Grouping, errors.ErrNoRelatedDevices,
			"device %s not found in any IOMMU group", selected.Address).WithOp("pci.RelatedDevices")
	}

	return sel, nil
}

// ExtractIDPairs pulls the vendor:device pairs from the related devices,
// skipping records missing either ID. The result is deduplicated and
// sorted; feeding the same list in any order yields the same set. An empty
// result is valid and means the caller cannot proceed with driver binding.
func ExtractIDPairs(related []GroupedDevice) []string {
	seen := make(map[string]struct{})
	for _, r := range related {
		if pair := r.Device.IDPair(); pair != "" {
			seen[pair] = struct{}{}
		}
	}

	pairs := make([]string, 0, len(seen))
	for pair := range seen {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}
