// Package initramfs makes sure the VFIO modules are baked into the
// initial RAM disk and triggers a rebuild. Four generator families are
// supported (mkinitcpio, dracut, booster, initramfs-tools); detection is
// by config file or binary, and the distribution's default generator is
// tried first with fallthrough to the others.
package initramfs

import (
	"context"
	"os"
	osexec "os/exec"

	"github.com/tungetti/carve/internal/backup"
	"github.com/tungetti/carve/internal/distro"
	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/exec"
	"github.com/tungetti/carve/internal/logging"
)

// System identifies an initramfs generator.
type System string

const (
	// Mkinitcpio is the Arch generator.
	Mkinitcpio System = "mkinitcpio"
	// Dracut is the Fedora/RHEL generator.
	Dracut System = "dracut"
	// Booster is the lightweight Arch alternative.
	Booster System = "booster"
	// InitramfsTools is the Debian/Ubuntu generator.
	InitramfsTools System = "initramfs-tools"
)

// Result describes a completed rebuild.
type Result struct {
	// System is the generator that succeeded.
	System System
	// ConfigPath is the configuration file that was created or edited,
	// empty if no edit was needed.
	ConfigPath string
	// ConfigCreated is true when ConfigPath did not exist before.
	ConfigCreated bool
	// Backup is the pre-edit copy of ConfigPath, nil when the file was new.
	Backup *backup.Record
	// RebuildCommand is the command that regenerated the image.
	RebuildCommand string
}

// Manager configures and rebuilds the initramfs.
type Manager struct {
	executor exec.Executor
	dist     *distro.Distribution
	backups  *backup.Manager
	logger   logging.Logger
	dryRun   bool

	mkinitcpioConf string
	dracutConfDir  string
	boosterConfDir string
	debianModules  string

	fileExists func(string) bool
	lookPath   func(string) (string, error)
}

// Option configures the manager.
type Option func(*Manager)

// WithBackups sets the backup manager.
func WithBackups(backups *backup.Manager) Option {
	return func(m *Manager) { m.backups = backups }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithDryRun makes Update log intended changes without mutating anything.
func WithDryRun(dryRun bool) Option {
	return func(m *Manager) { m.dryRun = dryRun }
}

// WithMkinitcpioConf overrides the mkinitcpio.conf path (useful for testing).
func WithMkinitcpioConf(path string) Option {
	return func(m *Manager) { m.mkinitcpioConf = path }
}

// WithDracutConfDir overrides the dracut.conf.d directory (useful for testing).
func WithDracutConfDir(dir string) Option {
	return func(m *Manager) { m.dracutConfDir = dir }
}

// WithBoosterConfDir overrides the booster.d directory (useful for testing).
func WithBoosterConfDir(dir string) Option {
	return func(m *Manager) { m.boosterConfDir = dir }
}

// WithDebianModulesFile overrides the initramfs-tools modules file (useful for testing).
func WithDebianModulesFile(path string) Option {
	return func(m *Manager) { m.debianModules = path }
}

// WithFileExists overrides filesystem probing (useful for testing).
func WithFileExists(fn func(string) bool) Option {
	return func(m *Manager) { m.fileExists = fn }
}

// WithLookPath overrides binary lookup (useful for testing).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(m *Manager) { m.lookPath = fn }
}

// NewManager creates a manager for the given distribution.
func NewManager(executor exec.Executor, dist *distro.Distribution, opts ...Option) *Manager {
	m := &Manager{
		executor:       executor,
		dist:           dist,
		logger:         logging.NewNop(),
		mkinitcpioConf: "/etc/mkinitcpio.conf",
		dracutConfDir:  "/etc/dracut.conf.d",
		boosterConfDir: "/etc/booster.d",
		debianModules:  "/etc/initramfs-tools/modules",
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
		lookPath: osexec.LookPath,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Detect lists the generators present on the system, in the fixed probe
// order mkinitcpio, dracut, booster, initramfs-tools.
func (m *Manager) Detect() []System {
	var systems []System

	if m.fileExists(m.mkinitcpioConf) || m.hasBinary("mkinitcpio") {
		systems = append(systems, Mkinitcpio)
	}
	if m.fileExists("/etc/dracut.conf") || m.fileExists(m.dracutConfDir) || m.hasBinary("dracut") {
		systems = append(systems, Dracut)
	}
	if m.fileExists("/etc/booster.yaml") || m.fileExists(m.boosterConfDir) || m.hasBinary("booster") {
		systems = append(systems, Booster)
	}
	if m.fileExists("/etc/initramfs-tools") || m.hasBinary("update-initramfs") {
		systems = append(systems, InitramfsTools)
	}

	return systems
}

// Update ensures the given modules are configured for early load and
// rebuilds the image. The distribution default generator is tried first;
// when it fails the remaining detected generators are tried in order.
func (m *Manager) Update(ctx context.Context, modules []string) (*Result, error) {
	if len(modules) == 0 {
		return nil, errors.New(errors.Validation, "no modules to configure").WithOp("initramfs.Update")
	}

	systems := m.Detect()
	if len(systems) == 0 {
		return nil, errors.New(errors.Initramfs, "no supported initramfs system detected").WithOp("initramfs.Update")
	}
	m.logger.Info("detected initramfs systems", "systems", systemNames(systems))

	var lastErr error
	for _, system := range m.ordered(systems) {
		result, err := m.updateSystem(ctx, system, modules)
		if err == nil {
			return result, nil
		}
		m.logger.Warn("initramfs update failed, trying next system", "system", string(system), "error", err)
		lastErr = err
	}

	return nil, errors.Wrap(errors.Initramfs, "all detected initramfs systems failed", lastErr).WithOp("initramfs.Update")
}

// ordered returns the detected systems with the distribution default first.
func (m *Manager) ordered(systems []System) []System {
	def := m.defaultSystem(systems)
	if def == "" {
		return systems
	}

	ordered := []System{def}
	for _, s := range systems {
		if s != def {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

// defaultSystem picks the generator the distribution ships by default.
func (m *Manager) defaultSystem(systems []System) System {
	present := make(map[System]bool, len(systems))
	for _, s := range systems {
		present[s] = true
	}

	if m.dist != nil {
		switch {
		case m.dist.IsArch() && present[Mkinitcpio]:
			return Mkinitcpio
		case m.dist.IsFedoraLike() && present[Dracut]:
			return Dracut
		case m.dist.IsDebian() && present[InitramfsTools]:
			return InitramfsTools
		}
	}

	if len(systems) == 1 {
		return systems[0]
	}
	return ""
}

func (m *Manager) updateSystem(ctx context.Context, system System, modules []string) (*Result, error) {
	switch system {
	case Mkinitcpio:
		return m.updateMkinitcpio(ctx, modules)
	case Dracut:
		return m.updateDracut(ctx, modules)
	case Booster:
		return m.updateBooster(ctx, modules)
	case InitramfsTools:
		return m.updateDebian(ctx, modules)
	default:
		return nil, errors.Newf(errors.Initramfs, "unknown initramfs system %q", string(system))
	}
}

// rebuild runs a generator command, honoring dry-run.
func (m *Manager) rebuild(ctx context.Context, cmd string, args ...string) error {
	if m.dryRun {
		m.logger.Info("dry run: would rebuild initramfs", "command", cmd)
		return nil
	}

	m.logger.Info("rebuilding initramfs", "command", cmd)
	res := m.executor.ExecuteElevated(ctx, cmd, args...)
	if !res.Success() {
		return errors.Wrapf(errors.Initramfs, res.Error, "%s failed: %s", cmd, res.StderrString()).WithOp("initramfs.rebuild")
	}
	return nil
}

func (m *Manager) hasBinary(name string) bool {
	_, err := m.lookPath(name)
	return err == nil
}

func systemNames(systems []System) string {
	names := ""
	for i, s := range systems {
		if i > 0 {
			names += ", "
		}
		names += string(s)
	}
	return names
}
