package pci

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
)

// GroupMap maps an IOMMU group ID to the devices the kernel placed in it.
// A nil map signals that grouping is unavailable (IOMMU disabled in
// firmware or missing kernel parameters); this is an expected condition,
// distinct from a discovery error.
type GroupMap map[int][]Device

// GroupIDs returns the group IDs in ascending order.
func (g GroupMap) GroupIDs() []int {
	ids := make([]int, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// GroupOf returns the ID of the group containing the given bus address,
// compared in normalized short form. The second return is false when the
// address is in no group.
func (g GroupMap) GroupOf(address string) (int, bool) {
	short := ShortAddress(address)
	for _, id := range g.GroupIDs() {
		for _, d := range g[id] {
			if ShortAddress(d.Address) == short {
				return id, true
			}
		}
	}
	return 0, false
}

// Groups walks the sysfs IOMMU tree and returns the kernel's grouping.
// An absent or empty tree returns a nil map with no error: IOMMU being
// disabled is a valid, expected state that downstream reports to the user.
// Members are enriched from the lspci pass when the address is known there,
// otherwise minimally from the sysfs vendor/device files.
func (s *Scanner) Groups(ctx context.Context) (GroupMap, error) {
	if s.cache.groupsSet {
		return s.cache.groups, nil
	}

	entries, err := s.fs.ReadDir(s.iommuPath)
	if err != nil {
		s.logger.Warn("IOMMU groups unavailable", "path", s.iommuPath)
		s.cache.groupsSet = true
		return nil, nil
	}
	if len(entries) == 0 {
		s.logger.Warn("IOMMU groups directory is empty; IOMMU may not be enabled")
		s.cache.groupsSet = true
		return nil, nil
	}

	byAddr := s.deviceByShortAddress(ctx)

	groups := make(GroupMap)
	for _, entry := range entries {
		id, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		devicesDir := filepath.Join(s.iommuPath, entry.Name(), "devices")
		members, err := s.fs.ReadDir(devicesDir)
		if err != nil {
			continue
		}

		var devices []Device
		for _, member := range members {
			address := member.Name()
			if d, ok := byAddr[ShortAddress(address)]; ok {
				d.Address = address
				devices = append(devices, d)
				continue
			}
			devices = append(devices, s.readSysfsDevice(devicesDir, address))
		}

		if len(devices) > 0 {
			groups[id] = devices
		}
	}

	if len(groups) == 0 {
		s.logger.Warn("no usable IOMMU groups found")
		s.cache.groupsSet = true
		return nil, nil
	}

	s.logger.Debug("built IOMMU group map", "groups", len(groups))
	s.cache.groups = groups
	s.cache.groupsSet = true
	return groups, nil
}

// readSysfsDevice builds a minimal record for a group member that the lspci
// pass did not cover, reading the vendor and device ID files under the
// member's sysfs link. Missing files leave the corresponding fields empty.
func (s *Scanner) readSysfsDevice(devicesDir, address string) Device {
	d := Device{Address: address}

	if vendor, err := s.fs.ReadFile(filepath.Join(devicesDir, address, "vendor")); err == nil {
		d.VendorID = ParseHexID(string(vendor))
	}
	if device, err := s.fs.ReadFile(filepath.Join(devicesDir, address, "device")); err == nil {
		d.DeviceID = ParseHexID(string(device))
	}
	if class, err := s.fs.ReadFile(filepath.Join(devicesDir, address, "class")); err == nil {
		d.Class = classText(ParseHexID(string(class)))
	}

	return d
}

// classText maps a numeric sysfs class code to the free-text form used by
// the lspci columns, so display detection works on either source.
func classText(code string) string {
	switch {
	case len(code) >= 2 && code[:2] == "03":
		return "Display controller"
	case len(code) >= 2 && code[:2] == "04":
		return "Multimedia controller"
	default:
		return "PCI device (class " + code + ")"
	}
}
