package pci

import (
	"bufio"
	"regexp"
	"strings"
)

// idPairRe extracts a bracketed "[vvvv:dddd]" vendor/device ID token from a
// device or vendor description column.
var idPairRe = regexp.MustCompile(`\[([0-9a-fA-F]{4}):([0-9a-fA-F]{4})\]`)

// bracketSuffixRe strips a trailing bracketed token from a vendor name,
// e.g. "Advanced Micro Devices, Inc. [AMD/ATI]" -> "Advanced Micro Devices, Inc.".
var bracketSuffixRe = regexp.MustCompile(`\s*\[.*?\]$`)

// kHeaderRe matches the device header line of `lspci -k` output.
var kHeaderRe = regexp.MustCompile(`^([0-9a-fA-F]{2}:[0-9a-fA-F]{2}\.[0-9a-fA-F]) `)

// parseMMOutput parses `lspci -mm` output into device records, in input
// order. Lines that do not match the expected quoted-field shape are
// skipped; a malformed listing degrades to fewer (or zero) devices, never
// to a parse error.
func parseMMOutput(output string) []Device {
	var devices []Device
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if d, ok := parseMMLine(scanner.Text()); ok {
			devices = append(devices, d)
		}
	}
	return devices
}

// parseMMLine parses a single machine-readable line of the form
//
//	0b:00.0 "VGA compatible controller" "Navi 21 [1002:73bf]" "Advanced Micro Devices, Inc. [AMD/ATI]" ...
//
// The vendor:device ID pair is taken from a bracketed token in the device
// column, falling back to the vendor column; records with no bracketed IDs
// keep empty ID fields and are skipped later by ID-pair extraction.
func parseMMLine(line string) (Device, bool) {
	parts := strings.Split(strings.TrimSpace(line), ` "`)
	if len(parts) < 3 {
		return Device{}, false
	}

	address := strings.TrimSpace(parts[0])
	if !addressRe.MatchString(address) {
		return Device{}, false
	}

	d := Device{
		Address: address,
		Class:   strings.Trim(parts[1], `"`),
		Name:    strings.Trim(parts[2], `"`),
	}

	if m := idPairRe.FindStringSubmatch(parts[2]); m != nil {
		d.VendorID = strings.ToLower(m[1])
		d.DeviceID = strings.ToLower(m[2])
	}

	if len(parts) > 3 {
		vendorCol := strings.Trim(parts[3], `"`)
		if !d.HasIDs() {
			if m := idPairRe.FindStringSubmatch(parts[3]); m != nil {
				d.VendorID = strings.ToLower(m[1])
				d.DeviceID = strings.ToLower(m[2])
			}
		}
		d.Vendor = strings.TrimSpace(bracketSuffixRe.ReplaceAllString(vendorCol, ""))
	}

	return d, true
}

// parseKOutput parses `lspci -k` output into a map of bus address to bound
// driver name. Device blocks start with a BDF header line; the driver is
// carried on an indented "Kernel driver in use:" line within the block.
// Unrecognized lines are skipped.
func parseKOutput(output string) map[string]string {
	drivers := make(map[string]string)
	current := ""

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if m := kHeaderRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			continue
		}

		if current == "" {
			continue
		}
		if idx := strings.Index(line, "Kernel driver in use:"); idx != -1 {
			drivers[current] = strings.TrimSpace(line[idx+len("Kernel driver in use:"):])
		}
	}

	return drivers
}

// mergeDrivers annotates devices with the bound driver from a `lspci -k`
// pass. Addresses are compared in their normalized short form.
func mergeDrivers(devices []Device, drivers map[string]string) {
	if len(drivers) == 0 {
		return
	}
	for i := range devices {
		if driver, ok := drivers[ShortAddress(devices[i].Address)]; ok {
			devices[i].Driver = driver
		}
	}
}
