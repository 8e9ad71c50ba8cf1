package syscheck

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tungetti/carve/internal/errors"
)

// vfioIDsRe finds a vfio-pci.ids= parameter on the kernel command line.
var vfioIDsRe = regexp.MustCompile(`vfio-pci\.ids=(\S+)`)

// requiredModules are the VFIO modules expected after a successful reboot.
// vfio_virqfd is checked separately since kernel 6.2 folded it into vfio.
var requiredModules = []string{"vfio", "vfio_iommu_type1", "vfio_pci"}

// setupTools are the external commands the setup workflow shells out to.
var setupTools = []string{"lspci", "lsmod", "uname"}

// virtTools are the virtualization stack binaries checked for VM readiness.
var virtTools = []string{"libvirtd", "qemu-system-x86_64", "virsh"}

// CPUVendorID reads the vendor_id field from cpuinfo.
func (c *Checker) CPUVendorID() CPUVendor {
	data, err := c.readFile(c.cpuinfoPath)
	if err != nil {
		c.logger.Warn("cannot read cpuinfo", "path", c.cpuinfoPath)
		return VendorUnknown
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "vendor_id") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		switch strings.TrimSpace(parts[1]) {
		case "AuthenticAMD":
			return VendorAMD
		case "GenuineIntel":
			return VendorIntel
		default:
			return VendorUnknown
		}
	}
	return VendorUnknown
}

// Virtualization checks that the CPU exposes the hardware virtualization
// flag matching its vendor (svm for AMD, vmx for Intel). A flag that
// contradicts the reported vendor is treated as a failure since it points
// at firmware misreporting.
func (c *Checker) Virtualization() Result {
	vendor := c.CPUVendorID()

	data, err := c.readFile(c.cpuinfoPath)
	if err != nil {
		return Result{Name: "cpu-virtualization", Status: StatusUnknown, Detail: "cannot read " + c.cpuinfoPath}
	}

	content := string(data)
	hasSVM := strings.Contains(content, "svm")
	hasVMX := strings.Contains(content, "vmx")

	switch {
	case vendor == VendorAMD && hasSVM:
		return Result{Name: "cpu-virtualization", Status: StatusPass, Detail: "AMD-V (svm) available"}
	case vendor == VendorIntel && hasVMX:
		return Result{Name: "cpu-virtualization", Status: StatusPass, Detail: "Intel VT-x (vmx) available"}
	case vendor == VendorAMD && hasVMX, vendor == VendorIntel && hasSVM:
		return Result{Name: "cpu-virtualization", Status: StatusFail,
			Detail: fmt.Sprintf("virtualization flag does not match CPU vendor %s; firmware misreporting?", vendor)}
	default:
		return Result{Name: "cpu-virtualization", Status: StatusFail,
			Detail: "no virtualization flag found; enable SVM/VT-x in BIOS/UEFI"}
	}
}

// IOMMUState describes the IOMMU-related kernel parameters of the running
// system.
type IOMMUState struct {
	// Enabled is true when amd_iommu=on or intel_iommu=on is present.
	Enabled bool
	// Passthrough is true when iommu=pt is present.
	Passthrough bool
	// ConflictingIDs carries a vfio-pci.ids= value found directly on the
	// command line, which conflicts with modprobe.d management.
	ConflictingIDs string
}

// IOMMU inspects the kernel command line for IOMMU parameters and
// conflicting vfio-pci.ids declarations.
func (c *Checker) IOMMU() IOMMUState {
	data, err := c.readFile(c.cmdlinePath)
	if err != nil {
		c.logger.Warn("cannot read kernel cmdline", "path", c.cmdlinePath)
		return IOMMUState{}
	}

	cmdline := string(data)
	state := IOMMUState{
		Enabled:     strings.Contains(cmdline, "amd_iommu=on") || strings.Contains(cmdline, "intel_iommu=on"),
		Passthrough: strings.Contains(cmdline, "iommu=pt"),
	}
	if m := vfioIDsRe.FindStringSubmatch(cmdline); m != nil {
		state.ConflictingIDs = m[1]
	}
	return state
}

// SecureBoot determines whether Secure Boot is enabled. It prefers
// mokutil and falls back to the EFI variable; nil means the state could
// not be determined.
func (c *Checker) SecureBoot(ctx context.Context) *bool {
	if _, err := c.lookPath("mokutil"); err == nil {
		res := c.executor.Execute(ctx, "mokutil", "--sb-state")
		if res.Success() {
			out := strings.ToLower(res.StdoutString())
			if strings.Contains(out, "secureboot enabled") {
				enabled := true
				return &enabled
			}
			if strings.Contains(out, "secureboot disabled") {
				enabled := false
				return &enabled
			}
		}
	}

	// The last byte of the EFI variable carries the state.
	if data, err := c.readFile(secureBootEfiVar); err == nil && len(data) > 0 {
		switch data[len(data)-1] {
		case 1:
			enabled := true
			return &enabled
		case 0:
			enabled := false
			return &enabled
		}
	}

	return nil
}

// LoadedModules parses lsmod output into the set of loaded module names.
func (c *Checker) LoadedModules(ctx context.Context) (map[string]bool, error) {
	res := c.executor.Execute(ctx, "lsmod")
	if res.Error != nil || !res.Success() {
		return nil, errors.Wrap(errors.Execution, "lsmod failed", res.Error).WithOp("syscheck.LoadedModules")
	}

	loaded := make(map[string]bool)
	lines := res.StdoutLines()
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			loaded[fields[0]] = true
		}
	}
	return loaded, nil
}

// VFIOModules checks whether the required VFIO modules are currently
// loaded. Before the configuration reboot this is expected to warn.
func (c *Checker) VFIOModules(ctx context.Context) Result {
	loaded, err := c.LoadedModules(ctx)
	if err != nil {
		return Result{Name: "vfio-modules", Status: StatusUnknown, Detail: "cannot list loaded modules"}
	}

	var missing []string
	for _, mod := range requiredModules {
		if !loaded[mod] {
			missing = append(missing, mod)
		}
	}
	if len(missing) > 0 {
		return Result{Name: "vfio-modules", Status: StatusWarn,
			Detail: "not loaded: " + strings.Join(missing, ", ") + " (expected before reboot)"}
	}
	return Result{Name: "vfio-modules", Status: StatusPass, Detail: "all VFIO modules loaded"}
}

// MissingTools returns the given binaries that cannot be found in PATH.
func (c *Checker) MissingTools(tools []string) []string {
	var missing []string
	for _, tool := range tools {
		if _, err := c.lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	return missing
}

// VirtualizationStack checks for the libvirt/QEMU binaries needed to
// actually run a VM with the isolated GPU.
func (c *Checker) VirtualizationStack() Result {
	missing := c.MissingTools(virtTools)
	if len(missing) > 0 {
		return Result{Name: "virtualization-stack", Status: StatusWarn,
			Detail: "missing: " + strings.Join(missing, ", ")}
	}
	return Result{Name: "virtualization-stack", Status: StatusPass, Detail: "libvirt, QEMU and virsh present"}
}

// Report runs the full prerequisite suite and returns one result per check.
func (c *Checker) Report(ctx context.Context) []Result {
	var results []Result

	vendor := c.CPUVendorID()
	if vendor == VendorUnknown {
		results = append(results, Result{Name: "cpu-vendor", Status: StatusWarn, Detail: "unrecognized CPU vendor"})
	} else {
		results = append(results, Result{Name: "cpu-vendor", Status: StatusPass, Detail: string(vendor)})
	}

	results = append(results, c.Virtualization())

	iommu := c.IOMMU()
	switch {
	case iommu.Enabled && iommu.Passthrough:
		results = append(results, Result{Name: "iommu-cmdline", Status: StatusPass, Detail: "IOMMU enabled with passthrough mode"})
	case iommu.Enabled:
		results = append(results, Result{Name: "iommu-cmdline", Status: StatusWarn, Detail: "IOMMU enabled but iommu=pt not set"})
	default:
		results = append(results, Result{Name: "iommu-cmdline", Status: StatusWarn, Detail: "IOMMU kernel parameters not set (configured during setup)"})
	}
	if iommu.ConflictingIDs != "" {
		results = append(results, Result{Name: "cmdline-conflict", Status: StatusWarn,
			Detail: "vfio-pci.ids already on kernel command line: " + iommu.ConflictingIDs})
	}

	if sb := c.SecureBoot(ctx); sb == nil {
		results = append(results, Result{Name: "secure-boot", Status: StatusUnknown, Detail: "state could not be determined"})
	} else if *sb {
		results = append(results, Result{Name: "secure-boot", Status: StatusWarn,
			Detail: "enabled; may interfere with loading VFIO modules"})
	} else {
		results = append(results, Result{Name: "secure-boot", Status: StatusPass, Detail: "disabled"})
	}

	if missing := c.MissingTools(setupTools); len(missing) > 0 {
		results = append(results, Result{Name: "required-tools", Status: StatusFail,
			Detail: "missing: " + strings.Join(missing, ", ")})
	} else {
		results = append(results, Result{Name: "required-tools", Status: StatusPass, Detail: "all required tools present"})
	}

	results = append(results, c.VFIOModules(ctx))
	results = append(results, c.VirtualizationStack())

	return results
}

// HasFailures returns true if any result in the report is a hard failure.
func HasFailures(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}
