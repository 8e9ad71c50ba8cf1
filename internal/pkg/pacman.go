package pkg

import (
	"context"
	"fmt"
	osexec "os/exec"
	"strings"

	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/exec"
)

// Pacman implements Manager for Arch-based distributions.
type Pacman struct {
	executor exec.Executor
	lookPath func(string) (string, error)
}

// Option configures a package manager.
type Option func(*managerConfig)

type managerConfig struct {
	lookPath func(string) (string, error)
}

// WithLookPath overrides binary resolution (useful for testing).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *managerConfig) {
		c.lookPath = fn
	}
}

func applyOptions(opts []Option) *managerConfig {
	c := &managerConfig{lookPath: osexec.LookPath}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewPacman creates a pacman-backed manager.
func NewPacman(executor exec.Executor, opts ...Option) *Pacman {
	c := applyOptions(opts)
	return &Pacman{executor: executor, lookPath: c.lookPath}
}

// Name returns the package manager command name.
func (m *Pacman) Name() string {
	return constants.Pacman
}

// Family returns the distribution family this manager serves.
func (m *Pacman) Family() constants.DistroFamily {
	return constants.FamilyArch
}

// IsAvailable reports whether pacman exists on this system.
func (m *Pacman) IsAvailable() bool {
	_, err := m.lookPath(constants.Pacman)
	return err == nil
}

// Install installs packages with pacman -S. The --needed flag skips
// packages that are already up to date.
func (m *Pacman) Install(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}

	args := append([]string{"-S", "--needed", "--noconfirm"}, packages...)
	result := m.executor.ExecuteElevated(ctx, constants.Pacman, args...)
	if result.Failed() {
		stderr := result.StderrString()
		combined := stderr + result.StdoutString()

		if strings.Contains(combined, "target not found") {
			for _, p := range packages {
				if strings.Contains(combined, p) {
					return WrapWithPackage(ErrPackageNotFound, p, fmt.Errorf("pacman install failed: %s", combined))
				}
			}
			return Wrap(ErrPackageNotFound, fmt.Errorf("pacman install failed: %s", combined))
		}
		if strings.Contains(stderr, "unable to lock database") ||
			strings.Contains(stderr, "database is locked") {
			return Wrap(ErrLockAcquireFailed, fmt.Errorf("pacman install failed: %s", stderr))
		}
		return Wrap(ErrInstallFailed, fmt.Errorf("pacman install failed (exit code %d): %s", result.ExitCode, stderr))
	}
	return nil
}

// IsInstalled checks the local database with pacman -Q.
func (m *Pacman) IsInstalled(ctx context.Context, name string) (bool, error) {
	result := m.executor.Execute(ctx, constants.Pacman, "-Q", name)
	if result.Failed() {
		// Exit code 1 means the package is not installed.
		if result.ExitCode == 1 {
			return false, nil
		}
		return false, fmt.Errorf("pacman -Q failed: %s", result.StderrString())
	}
	return true, nil
}
