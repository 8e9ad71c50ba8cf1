// Package bootloader detects the system bootloader and installs the
// kernel parameters VFIO needs (IOMMU enablement, passthrough mode, and
// early vfio-pci loading). GRUB systems are edited through
// /etc/default/grub, Pop!_OS through kernelstub. Anything else gets
// manual instructions instead of a mutation.
package bootloader

import (
	"context"
	"os"
	osexec "os/exec"

	"github.com/tungetti/carve/internal/backup"
	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/distro"
	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/exec"
	"github.com/tungetti/carve/internal/logging"
	"github.com/tungetti/carve/internal/syscheck"
)

// Kind identifies the detected bootloader flavor.
type Kind string

const (
	// KindGrubDebian is GRUB managed with update-grub.
	KindGrubDebian Kind = "grub-debian"
	// KindGrubFedora is GRUB managed with grub2-mkconfig.
	KindGrubFedora Kind = "grub-fedora"
	// KindGrubArch is GRUB managed with grub-mkconfig.
	KindGrubArch Kind = "grub-arch"
	// KindGrubUnknown is a GRUB install whose update command is unknown.
	KindGrubUnknown Kind = "grub-unknown"
	// KindSystemdBoot is plain systemd-boot.
	KindSystemdBoot Kind = "systemd-boot"
	// KindKernelstub is systemd-boot managed through kernelstub (Pop!_OS).
	KindKernelstub Kind = "systemd-boot-popos"
	// KindUnknown means no supported bootloader was found.
	KindUnknown Kind = "unknown"
)

// IsGrub reports whether the kind is any GRUB variant.
func (k Kind) IsGrub() bool {
	switch k {
	case KindGrubDebian, KindGrubFedora, KindGrubArch, KindGrubUnknown:
		return true
	}
	return false
}

// systemd-boot loader configuration locations.
var loaderConfPaths = []string{
	"/boot/efi/loader/loader.conf",
	"/boot/loader/loader.conf",
}

// RequiredParams returns the kernel parameters needed for passthrough on
// the given CPU vendor. rd.driver.pre forces vfio-pci to load before the
// display drivers inside the initramfs.
func RequiredParams(vendor syscheck.CPUVendor) []string {
	iommu := "intel_iommu=on"
	if vendor == syscheck.VendorAMD {
		iommu = "amd_iommu=on"
	}
	return []string{iommu, "iommu=pt", "rd.driver.pre=vfio-pci"}
}

// Result describes a completed parameter change.
type Result struct {
	// Kind is the bootloader that was configured.
	Kind Kind
	// Backup is the backup of the edited file, nil when nothing was
	// edited (kernelstub path, or no change needed).
	Backup *backup.Record
	// AddedParams are the parameters newly added or replaced.
	AddedParams []string
	// Changed is false when the configuration was already up to date.
	Changed bool
	// Path is the edited configuration file, empty for kernelstub.
	Path string
	// RegenCommand is the command that rebuilt the bootloader
	// configuration from the edited file, empty for kernelstub and
	// dry runs.
	RegenCommand string
}

// Configurator applies kernel parameter changes.
type Configurator struct {
	executor        exec.Executor
	dist            *distro.Distribution
	backups         *backup.Manager
	logger          logging.Logger
	dryRun          bool
	grubDefaultPath string
	fileExists      func(string) bool
	lookPath        func(string) (string, error)
}

// Option configures the configurator.
type Option func(*Configurator)

// WithBackups sets the backup manager.
func WithBackups(backups *backup.Manager) Option {
	return func(c *Configurator) {
		c.backups = backups
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Configurator) {
		c.logger = logger
	}
}

// WithDryRun makes Apply log intended changes without mutating anything.
func WithDryRun(dryRun bool) Option {
	return func(c *Configurator) {
		c.dryRun = dryRun
	}
}

// WithGrubDefaultPath overrides the GRUB defaults file path (useful for testing).
func WithGrubDefaultPath(path string) Option {
	return func(c *Configurator) {
		c.grubDefaultPath = path
	}
}

// WithFileExists overrides filesystem probing (useful for testing).
func WithFileExists(fn func(string) bool) Option {
	return func(c *Configurator) {
		c.fileExists = fn
	}
}

// WithLookPath overrides binary lookup (useful for testing).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *Configurator) {
		c.lookPath = fn
	}
}

// NewConfigurator creates a configurator for the given distribution.
func NewConfigurator(executor exec.Executor, dist *distro.Distribution, opts ...Option) *Configurator {
	c := &Configurator{
		executor:        executor,
		dist:            dist,
		logger:          logging.NewNop(),
		grubDefaultPath: constants.GrubDefaultPath,
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
		lookPath: osexec.LookPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Detect determines the bootloader flavor. GRUB is identified by its
// defaults file and disambiguated by the available update command, with
// the distro family as fallback. systemd-boot is identified by its
// loader configuration.
func (c *Configurator) Detect() Kind {
	if c.fileExists(c.grubDefaultPath) {
		if _, err := c.lookPath("update-grub"); err == nil {
			return KindGrubDebian
		}
		if _, err := c.lookPath("grub2-mkconfig"); err == nil {
			return KindGrubFedora
		}
		if _, err := c.lookPath("grub-mkconfig"); err == nil {
			return KindGrubArch
		}
		if c.dist != nil {
			switch {
			case c.dist.IsDebian():
				return KindGrubDebian
			case c.dist.IsFedoraLike():
				return KindGrubFedora
			case c.dist.IsArch():
				return KindGrubArch
			}
		}
		return KindGrubUnknown
	}

	for _, path := range loaderConfPaths {
		if c.fileExists(path) {
			if c.dist != nil && c.dist.IsPopOS() {
				return KindKernelstub
			}
			return KindSystemdBoot
		}
	}

	return KindUnknown
}

// Apply installs the given kernel parameters using the detected
// bootloader. Unsupported bootloaders return ErrUnsupportedBootloader;
// the caller prints manual instructions in that case.
func (c *Configurator) Apply(ctx context.Context, params []string) (*Result, error) {
	kind := c.Detect()
	c.logger.Info("detected bootloader", "kind", string(kind))

	switch {
	case kind.IsGrub():
		return c.applyGrub(ctx, kind, params)
	case kind == KindKernelstub:
		return c.applyKernelstub(ctx, params)
	default:
		return nil, errors.Wrapf(errors.Bootloader, errors.ErrUnsupportedBootloader,
			"bootloader %q cannot be configured automatically", string(kind)).WithOp("bootloader.Apply")
	}
}
