package pkg

import (
	"context"
	"fmt"
	"strings"

	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/exec"
)

// Dnf implements Manager for Fedora and RHEL-like distributions.
type Dnf struct {
	executor exec.Executor
	lookPath func(string) (string, error)
}

// NewDnf creates a dnf-backed manager.
func NewDnf(executor exec.Executor, opts ...Option) *Dnf {
	c := applyOptions(opts)
	return &Dnf{executor: executor, lookPath: c.lookPath}
}

// Name returns the package manager command name.
func (m *Dnf) Name() string {
	return constants.Dnf
}

// Family returns the distribution family this manager serves.
func (m *Dnf) Family() constants.DistroFamily {
	return constants.FamilyRHEL
}

// IsAvailable reports whether dnf exists on this system.
func (m *Dnf) IsAvailable() bool {
	_, err := m.lookPath(constants.Dnf)
	return err == nil
}

// Install installs packages with dnf install -y.
func (m *Dnf) Install(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}

	args := append([]string{"install", "-y"}, packages...)
	result := m.executor.ExecuteElevated(ctx, constants.Dnf, args...)
	if result.Failed() {
		stderr := result.StderrString()
		combined := stderr + result.StdoutString()

		if strings.Contains(combined, "No match for argument") ||
			strings.Contains(combined, "Unable to find a match") {
			for _, p := range packages {
				if strings.Contains(combined, p) {
					return WrapWithPackage(ErrPackageNotFound, p, fmt.Errorf("dnf install failed: %s", combined))
				}
			}
			return Wrap(ErrPackageNotFound, fmt.Errorf("dnf install failed: %s", combined))
		}
		if strings.Contains(stderr, "Waiting for process with pid") ||
			strings.Contains(stderr, "Failed to obtain the transaction lock") {
			return Wrap(ErrLockAcquireFailed, fmt.Errorf("dnf install failed: %s", stderr))
		}
		return Wrap(ErrInstallFailed, fmt.Errorf("dnf install failed (exit code %d): %s", result.ExitCode, stderr))
	}
	return nil
}

// IsInstalled checks the rpm database with rpm -q.
func (m *Dnf) IsInstalled(ctx context.Context, name string) (bool, error) {
	result := m.executor.Execute(ctx, constants.Rpm, "-q", name)
	if result.Failed() {
		// rpm -q exits 1 when the package is not installed.
		if result.ExitCode == 1 {
			return false, nil
		}
		return false, fmt.Errorf("rpm -q failed: %s", result.StderrString())
	}
	return true, nil
}
