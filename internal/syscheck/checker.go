// Package syscheck verifies the host prerequisites for GPU passthrough:
// CPU virtualization support, IOMMU kernel parameters, Secure Boot state,
// loaded VFIO modules, and the external tools the setup workflow shells
// out to. Checks degrade to warnings when a source is unavailable; they
// never abort discovery on their own.
package syscheck

import (
	"os"
	osexec "os/exec"

	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/exec"
	"github.com/tungetti/carve/internal/logging"
)

// Status classifies the outcome of a single check.
type Status int

const (
	// StatusPass indicates the check succeeded.
	StatusPass Status = iota
	// StatusWarn indicates a non-fatal problem the user should know about.
	StatusWarn
	// StatusFail indicates a prerequisite is not met.
	StatusFail
	// StatusUnknown indicates the check could not determine a result.
	StatusUnknown
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Result is the outcome of one prerequisite check.
type Result struct {
	// Name identifies the check (e.g., "cpu-virtualization").
	Name string
	// Status is the check outcome.
	Status Status
	// Detail is a human-readable explanation.
	Detail string
}

// CPUVendor identifies the CPU manufacturer.
type CPUVendor string

const (
	// VendorAMD is the AuthenticAMD vendor string family.
	VendorAMD CPUVendor = "AMD"
	// VendorIntel is the GenuineIntel vendor string family.
	VendorIntel CPUVendor = "Intel"
	// VendorUnknown indicates an unrecognized CPU vendor.
	VendorUnknown CPUVendor = "Unknown"
)

// secureBootEfiVar is the EFI variable consulted when mokutil is missing.
const secureBootEfiVar = "/sys/firmware/efi/efivars/SecureBoot-8be4df61-93ca-11d2-aa0d-00e098032b8c"

// Checker runs host prerequisite checks.
type Checker struct {
	executor    exec.Executor
	logger      logging.Logger
	readFile    func(string) ([]byte, error)
	lookPath    func(string) (string, error)
	cpuinfoPath string
	cmdlinePath string
}

// CheckerOption configures the checker.
type CheckerOption func(*Checker)

// WithLogger sets the logger used for check diagnostics.
func WithLogger(logger logging.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithReadFile overrides the file reader (useful for testing).
func WithReadFile(fn func(string) ([]byte, error)) CheckerOption {
	return func(c *Checker) {
		c.readFile = fn
	}
}

// WithLookPath overrides binary lookup (useful for testing).
func WithLookPath(fn func(string) (string, error)) CheckerOption {
	return func(c *Checker) {
		c.lookPath = fn
	}
}

// WithCPUInfoPath overrides the cpuinfo pseudo-file path (useful for testing).
func WithCPUInfoPath(path string) CheckerOption {
	return func(c *Checker) {
		c.cpuinfoPath = path
	}
}

// WithCmdlinePath overrides the kernel cmdline pseudo-file path (useful for testing).
func WithCmdlinePath(path string) CheckerOption {
	return func(c *Checker) {
		c.cmdlinePath = path
	}
}

// NewChecker creates a checker that reads /proc pseudo-files directly and
// shells out through the given executor.
func NewChecker(executor exec.Executor, opts ...CheckerOption) *Checker {
	c := &Checker{
		executor:    executor,
		logger:      logging.NewNop(),
		readFile:    os.ReadFile,
		lookPath:    osexec.LookPath,
		cpuinfoPath: constants.ProcCPUInfoPath,
		cmdlinePath: constants.ProcCmdlinePath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
