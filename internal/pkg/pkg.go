// Package pkg installs the minimal virtualization stack (QEMU, libvirt,
// virt-manager) through the distribution's native package manager. Only
// pacman, apt and dnf systems are supported; other families receive
// manual installation instructions instead.
package pkg

import (
	"context"

	"github.com/tungetti/carve/internal/constants"
)

// Manager abstracts the package manager operations the setup workflow
// needs. Implementations run the underlying tool non-interactively.
type Manager interface {
	// Name returns the package manager command name.
	Name() string

	// Family returns the distribution family this manager serves.
	Family() constants.DistroFamily

	// IsAvailable reports whether the package manager binary exists.
	IsAvailable() bool

	// Install installs the given packages. Already-installed packages
	// are left alone.
	Install(ctx context.Context, packages ...string) error

	// IsInstalled reports whether a single package is installed.
	IsInstalled(ctx context.Context, name string) (bool, error)
}

// VirtualizationPackages returns the minimal package set for a working
// QEMU/libvirt/virt-manager environment on the given family. Returns
// nil for families without a supported package manager.
func VirtualizationPackages(family constants.DistroFamily) []string {
	switch family {
	case constants.FamilyArch:
		return []string{"qemu-full", "libvirt", "virt-manager"}
	case constants.FamilyDebian:
		return []string{"qemu-system-x86", "libvirt-daemon-system", "virt-manager"}
	case constants.FamilyRHEL:
		return []string{"qemu-kvm", "libvirt", "virt-manager"}
	default:
		return nil
	}
}
