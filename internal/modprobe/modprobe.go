// Package modprobe generates the module configuration that binds the
// isolated PCI devices to vfio-pci: an options file under
// /etc/modprobe.d and an early-load list under /etc/modules-load.d.
package modprobe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tungetti/carve/internal/backup"
	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/logging"
)

// softdepDrivers are the display drivers forced to load after vfio-pci,
// so vfio-pci can claim the devices before the host driver does.
var softdepDrivers = []string{"drm", "amdgpu", "nouveau", "radeon", "nvidia", "i915"}

// Writer renders and installs the VFIO module configuration files.
type Writer struct {
	modprobeDir    string
	modulesLoadDir string
	backups        *backup.Manager
	logger         logging.Logger
	dryRun         bool
}

// Option configures the writer.
type Option func(*Writer)

// WithModprobeDir overrides the modprobe.d directory (useful for testing).
func WithModprobeDir(dir string) Option {
	return func(w *Writer) {
		w.modprobeDir = dir
	}
}

// WithModulesLoadDir overrides the modules-load.d directory (useful for testing).
func WithModulesLoadDir(dir string) Option {
	return func(w *Writer) {
		w.modulesLoadDir = dir
	}
}

// WithBackups sets the backup manager used before overwriting existing files.
func WithBackups(backups *backup.Manager) Option {
	return func(w *Writer) {
		w.backups = backups
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithDryRun makes the writer log intended changes without writing files.
func WithDryRun(dryRun bool) Option {
	return func(w *Writer) {
		w.dryRun = dryRun
	}
}

// NewWriter creates a writer targeting the standard system directories.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{
		modprobeDir:    constants.ModprobeDir,
		modulesLoadDir: constants.ModulesLoadDir,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteResult describes an installed configuration file.
type WriteResult struct {
	// Path is the file that was written.
	Path string
	// Created is true when no file existed there before.
	Created bool
	// Backup is the copy taken of a pre-existing file, nil otherwise.
	Backup *backup.Record
}

// OptionsLine renders the vfio-pci options directive for the given
// vendor:device pairs.
func OptionsLine(ids []string) string {
	return fmt.Sprintf("options %s ids=%s disable_vga=1 disable_idle_d3=1",
		constants.VFIOPCIDriver, strings.Join(ids, ","))
}

// WriteVFIOConf installs the modprobe.d options file binding the given
// ID pairs to vfio-pci. An existing file is backed up and merged: the
// first vfio-pci options line is replaced, later duplicates are
// commented out, and everything else is preserved.
func (w *Writer) WriteVFIOConf(ids []string) (*WriteResult, error) {
	if len(ids) == 0 {
		return nil, errors.New(errors.Validation, "no device IDs to bind").WithOp("modprobe.WriteVFIOConf")
	}

	path := filepath.Join(w.modprobeDir, constants.ModprobeConfFile)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.Execution, err, "cannot read %s", path).WithOp("modprobe.WriteVFIOConf")
	}
	result := &WriteResult{Path: path, Created: err != nil}

	content := mergeVFIOConf(string(existing), OptionsLine(ids))

	if w.dryRun {
		w.logger.Info("dry run: would write modprobe configuration", "path", path, "ids", strings.Join(ids, ","))
		return result, nil
	}

	if !result.Created && w.backups != nil {
		rec, err := w.backups.Backup(path)
		if err != nil {
			return nil, err
		}
		result.Backup = rec
	}

	if err := w.writeFile(path, content); err != nil {
		return nil, err
	}
	w.logger.Info("wrote modprobe configuration", "path", path, "ids", strings.Join(ids, ","))
	return result, nil
}

// WriteModulesLoad installs the modules-load.d list that loads the VFIO
// stack at boot. needsVirqfd adds the standalone vfio_virqfd module for
// kernels that still ship it separately.
func (w *Writer) WriteModulesLoad(needsVirqfd bool) (*WriteResult, error) {
	path := filepath.Join(w.modulesLoadDir, constants.ModulesLoadFile)
	content := renderModulesLoad(needsVirqfd)

	_, statErr := os.Stat(path)
	result := &WriteResult{Path: path, Created: statErr != nil}

	if w.dryRun {
		w.logger.Info("dry run: would write modules-load configuration", "path", path)
		return result, nil
	}

	if !result.Created && w.backups != nil {
		rec, err := w.backups.Backup(path)
		if err != nil {
			return nil, err
		}
		result.Backup = rec
	}

	if err := w.writeFile(path, content); err != nil {
		return nil, err
	}
	w.logger.Info("wrote modules-load configuration", "path", path, "virqfd", needsVirqfd)
	return result, nil
}

func (w *Writer) writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(errors.Execution, err, "cannot create %s", filepath.Dir(path)).WithOp("modprobe.writeFile")
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(errors.Execution, err, "cannot write %s", path).WithOp("modprobe.writeFile")
	}
	return nil
}

// mergeVFIOConf merges the new options line into existing file content.
// The first existing vfio-pci options line is replaced in place, later
// ones are commented out, and all other lines survive untouched. The
// softdep directives are appended if missing.
func mergeVFIOConf(existing, optionsLine string) string {
	var out []string
	replaced := false
	haveSoftdep := make(map[string]bool)

	if strings.TrimSpace(existing) != "" {
		for _, line := range strings.Split(strings.TrimRight(existing, "\n"), "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "options "+constants.VFIOPCIDriver) {
				if replaced {
					out = append(out, "# "+line)
				} else {
					out = append(out, optionsLine)
					replaced = true
				}
				continue
			}
			if strings.HasPrefix(trimmed, "softdep ") {
				fields := strings.Fields(trimmed)
				if len(fields) >= 2 {
					haveSoftdep[fields[1]] = true
				}
			}
			out = append(out, line)
		}
	}

	if !replaced {
		out = append(out, optionsLine)
	}
	for _, driver := range softdepDrivers {
		if !haveSoftdep[driver] {
			out = append(out, fmt.Sprintf("softdep %s pre: %s", driver, constants.VFIOPCIDriver))
		}
	}

	return strings.Join(out, "\n") + "\n"
}

// renderModulesLoad renders the boot-time module list.
func renderModulesLoad(needsVirqfd bool) string {
	modules := []string{
		constants.VFIOModule,
		constants.VFIOIommuType1Module,
		constants.VFIOPCIModule,
	}
	if needsVirqfd {
		modules = append(modules, constants.VFIOVirqfdModule)
	}
	return strings.Join(modules, "\n") + "\n"
}
