package pkg

import (
	"context"
	"fmt"
	"strings"

	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/exec"
)

// Apt implements Manager for Debian-based distributions.
type Apt struct {
	executor exec.Executor
	lookPath func(string) (string, error)
}

// NewApt creates an apt-get-backed manager.
func NewApt(executor exec.Executor, opts ...Option) *Apt {
	c := applyOptions(opts)
	return &Apt{executor: executor, lookPath: c.lookPath}
}

// Name returns the package manager command name.
func (m *Apt) Name() string {
	return constants.AptGet
}

// Family returns the distribution family this manager serves.
func (m *Apt) Family() constants.DistroFamily {
	return constants.FamilyDebian
}

// IsAvailable reports whether apt-get exists on this system.
func (m *Apt) IsAvailable() bool {
	_, err := m.lookPath(constants.AptGet)
	return err == nil
}

// Install installs packages with apt-get install -y.
func (m *Apt) Install(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}

	args := append([]string{"install", "-y"}, packages...)
	result := m.executor.ExecuteElevated(ctx, constants.AptGet, args...)
	if result.Failed() {
		stderr := result.StderrString()

		if strings.Contains(stderr, "Unable to locate package") {
			for _, p := range packages {
				if strings.Contains(stderr, p) {
					return WrapWithPackage(ErrPackageNotFound, p, fmt.Errorf("apt-get install failed: %s", stderr))
				}
			}
			return Wrap(ErrPackageNotFound, fmt.Errorf("apt-get install failed: %s", stderr))
		}
		if strings.Contains(stderr, "Could not get lock") ||
			strings.Contains(stderr, "dpkg frontend lock") {
			return Wrap(ErrLockAcquireFailed, fmt.Errorf("apt-get install failed: %s", stderr))
		}
		return Wrap(ErrInstallFailed, fmt.Errorf("apt-get install failed (exit code %d): %s", result.ExitCode, stderr))
	}
	return nil
}

// IsInstalled checks the dpkg database with dpkg -s.
func (m *Apt) IsInstalled(ctx context.Context, name string) (bool, error) {
	result := m.executor.Execute(ctx, constants.Dpkg, "-s", name)
	if result.Failed() {
		// dpkg -s exits 1 when the package is unknown or not installed.
		if result.ExitCode == 1 {
			return false, nil
		}
		return false, fmt.Errorf("dpkg -s failed: %s", result.StderrString())
	}
	// A removed-but-not-purged package still has a status entry.
	return strings.Contains(result.StdoutString(), "Status: install ok installed"), nil
}
