// Package pci builds the PCI device and IOMMU group model used to decide
// which devices get carved out of the host for VFIO passthrough. It parses
// lspci output into device records, walks /sys/kernel/iommu_groups for the
// kernel's isolation grouping, and matches a selected display device to the
// sibling functions on the same physical slot.
package pci

import (
	"fmt"
	"regexp"
	"strings"
)

// Display-class markers as they appear in the lspci class column.
// A device whose class contains one of these (case-insensitive) is a
// candidate for passthrough.
const (
	ClassMarkerVGA     = "vga"
	ClassMarker3D      = "3d controller"
	ClassMarkerDisplay = "display controller"
)

// Common driver names for display devices.
const (
	DriverAMDGPU  = "amdgpu"
	DriverRadeon  = "radeon"
	DriverNVIDIA  = "nvidia"
	DriverNouveau = "nouveau"
	DriverI915    = "i915"
	DriverVFIOPCI = "vfio-pci"
	DriverNone    = ""
)

// addressRe matches a PCI bus address with an optional domain prefix.
// Both "0000:0b:00.0" and "0b:00.0" are accepted.
var addressRe = regexp.MustCompile(`^(?:([0-9a-fA-F]{4}):)?([0-9a-fA-F]{2}:[0-9a-fA-F]{2})\.([0-9a-fA-F])$`)

// Device represents one PCI function discovered during a scan.
// Records are constructed fresh on every discovery pass and never mutated.
type Device struct {
	// Address is the PCI bus address (e.g., "0000:0b:00.0" or "0b:00.0")
	Address string

	// Class is the device class as free text (e.g., "VGA compatible controller")
	Class string

	// Name is the human-readable device description
	Name string

	// Vendor is the human-readable vendor name
	Vendor string

	// VendorID is the 4-hex-digit PCI vendor ID (e.g., "1002" for AMD)
	VendorID string

	// DeviceID is the 4-hex-digit PCI device ID
	DeviceID string

	// Driver is the currently bound kernel driver (empty when unbound)
	Driver string
}

// IsDisplay returns true if this device is a display-class device
// (VGA compatible, 3D controller, or display controller).
func (d *Device) IsDisplay() bool {
	class := strings.ToLower(d.Class)
	return strings.Contains(class, ClassMarkerVGA) ||
		strings.Contains(class, ClassMarker3D) ||
		strings.Contains(class, ClassMarkerDisplay)
}

// HasIDs returns true if both vendor and device IDs are known.
func (d *Device) HasIDs() bool {
	return d.VendorID != "" && d.DeviceID != ""
}

// IDPair returns the "vendor:device" pair used as a driver-binding filter
// key, or the empty string when either ID is missing.
func (d *Device) IDPair() string {
	if !d.HasIDs() {
		return ""
	}
	return fmt.Sprintf("%s:%s", d.VendorID, d.DeviceID)
}

// HasDriver returns true if a driver is currently bound to this device.
func (d *Device) HasDriver() bool {
	return d.Driver != ""
}

// IsUsingVFIO returns true if the device is already bound to vfio-pci.
func (d *Device) IsUsingVFIO() bool {
	return d.Driver == DriverVFIOPCI
}

// String returns a human-readable representation of the device.
func (d *Device) String() string {
	driverInfo := "no driver"
	if d.Driver != "" {
		driverInfo = fmt.Sprintf("driver: %s", d.Driver)
	}
	id := d.IDPair()
	if id == "" {
		id = "????:????"
	}
	return fmt.Sprintf("%s %s [%s] (%s)", d.Address, d.Name, id, driverInfo)
}

// ShortAddress normalizes a bus address to its domain-less form so that the
// two spellings used by different enumeration sources compare equal.
// Input: "0000:0b:00.0" -> "0b:00.0". Already-short addresses pass through.
func ShortAddress(address string) string {
	m := addressRe.FindStringSubmatch(address)
	if m == nil {
		return address
	}
	return m[2] + "." + m[3]
}

// SlotPrefix returns the bus/slot portion of an address with the function
// component stripped, normalized to the domain-less form. Functions .0 and
// .1 of the same physical card share a slot prefix even when the kernel
// places them in different IOMMU groups.
func SlotPrefix(address string) (string, error) {
	m := addressRe.FindStringSubmatch(address)
	if m == nil {
		return "", fmt.Errorf("cannot parse PCI address %q", address)
	}
	return m[2], nil
}

// ParseHexID normalizes a hex ID string by removing the "0x" prefix and
// converting to lowercase.
func ParseHexID(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return strings.ToLower(s)
}
