package pci

import (
	"context"
	"io/fs"
	"os"

	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/exec"
	"github.com/tungetti/carve/internal/logging"
)

// DefaultIommuPath is the sysfs tree exposing IOMMU group membership.
const DefaultIommuPath = "/sys/kernel/iommu_groups"

// FileSystem abstracts filesystem operations for testing.
type FileSystem interface {
	// ReadDir reads the directory named by dirname and returns a list of directory entries.
	ReadDir(dirname string) ([]fs.DirEntry, error)

	// ReadFile reads the file named by filename and returns the contents.
	ReadFile(filename string) ([]byte, error)

	// Readlink returns the destination of the named symbolic link.
	Readlink(name string) (string, error)

	// Stat returns the FileInfo structure describing file.
	Stat(name string) (fs.FileInfo, error)
}

// RealFileSystem implements FileSystem using the actual operating system.
type RealFileSystem struct{}

// ReadDir reads the directory named by dirname and returns a list of directory entries.
func (RealFileSystem) ReadDir(dirname string) ([]fs.DirEntry, error) {
	return os.ReadDir(dirname)
}

// ReadFile reads the file named by filename and returns the contents.
func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Readlink returns the destination of the named symbolic link.
func (RealFileSystem) Readlink(name string) (string, error) {
	return os.Readlink(name)
}

// Stat returns the FileInfo structure describing file.
func (RealFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// cache memoizes the external queries made during one discovery pass so
// that lspci and sysfs are consulted at most once per pass. It is owned by
// the Scanner and rebuilt on Reset; it is an optimization, not a
// correctness mechanism.
type cache struct {
	devices    []Device
	devicesSet bool
	groups     GroupMap
	groupsSet  bool
}

func (c *cache) reset() {
	c.devices = nil
	c.devicesSet = false
	c.groups = nil
	c.groupsSet = false
}

// Scanner discovers PCI devices and IOMMU groups. One Scanner represents
// one discovery pass over the current hardware state; call Reset before
// reusing it after the system may have changed.
type Scanner struct {
	executor  exec.Executor
	fs        FileSystem
	iommuPath string
	logger    logging.Logger
	cache     cache
}

// ScannerOption configures the scanner.
type ScannerOption func(*Scanner)

// WithFileSystem sets a custom filesystem implementation (useful for testing).
func WithFileSystem(fs FileSystem) ScannerOption {
	return func(s *Scanner) {
		s.fs = fs
	}
}

// WithIommuPath sets a custom IOMMU groups path (useful for testing).
func WithIommuPath(path string) ScannerOption {
	return func(s *Scanner) {
		s.iommuPath = path
	}
}

// WithLogger sets the logger used for discovery diagnostics.
func WithLogger(logger logging.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// NewScanner creates a new scanner that invokes lspci through the given
// executor and reads IOMMU grouping from sysfs.
func NewScanner(executor exec.Executor, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		executor:  executor,
		fs:        RealFileSystem{},
		iommuPath: DefaultIommuPath,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset discards all memoized discovery results. The next query re-reads
// the underlying sources.
func (s *Scanner) Reset() {
	s.cache.reset()
}

// Devices returns every PCI function known to lspci, in discovery order.
// The machine-readable pass supplies identity fields; a second -k pass
// supplies bound drivers. Failure of the -k pass degrades to records
// without driver information; failure of the machine-readable pass means
// the discovery source is unavailable.
func (s *Scanner) Devices(ctx context.Context) ([]Device, error) {
	if s.cache.devicesSet {
		return s.cache.devices, nil
	}

	res := s.executor.Execute(ctx, "lspci", "-mm")
	if res.Error != nil || !res.Success() {
		return nil, errors.Wrap(errors.Discovery, "lspci -mm failed; install pciutils", res.Error).WithOp("pci.Devices")
	}

	devices := parseMMOutput(res.StdoutString())
	s.logger.Debug("parsed PCI device listing", "devices", len(devices))

	kres := s.executor.Execute(ctx, "lspci", "-k")
	if kres.Error != nil || !kres.Success() {
		s.logger.Warn("lspci -k failed, driver information unavailable")
	} else {
		mergeDrivers(devices, parseKOutput(kres.StdoutString()))
	}

	s.cache.devices = devices
	s.cache.devicesSet = true
	return devices, nil
}

// DisplayDevices returns every display-class function (VGA compatible, 3D
// controller, display controller) in discovery order. An empty result is a
// valid return when no display devices are present.
func (s *Scanner) DisplayDevices(ctx context.Context) ([]Device, error) {
	devices, err := s.Devices(ctx)
	if err != nil {
		return nil, err
	}

	var displays []Device
	for _, d := range devices {
		if d.IsDisplay() {
			displays = append(displays, d)
		}
	}
	return displays, nil
}

// deviceByShortAddress builds a lookup of the current device listing keyed
// by normalized short address, for enriching IOMMU group members.
func (s *Scanner) deviceByShortAddress(ctx context.Context) map[string]Device {
	devices, err := s.Devices(ctx)
	if err != nil {
		return nil
	}
	byAddr := make(map[string]Device, len(devices))
	for _, d := range devices {
		byAddr[ShortAddress(d.Address)] = d
	}
	return byAddr
}
