// Package backup copies system files aside before they are modified.
// Backups are kept under the session output directory with the original
// path encoded into the file name, so a cleanup script can restore them
// without any extra bookkeeping.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/logging"
)

// Record describes one completed backup.
type Record struct {
	// Original is the absolute path of the file that was backed up.
	Original string `json:"original"`
	// Copy is the absolute path of the backup copy.
	Copy string `json:"copy"`
	// Time is when the backup was taken.
	Time time.Time `json:"time"`
}

// Manager writes backup copies into a fixed directory.
type Manager struct {
	dir    string
	dryRun bool
	logger logging.Logger
	now    func() time.Time
}

// Option configures the manager.
type Option func(*Manager)

// WithDryRun makes Backup log what it would copy without touching the
// filesystem.
func WithDryRun(dryRun bool) Option {
	return func(m *Manager) {
		m.dryRun = dryRun
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the timestamp source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager that stores backups under dir.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:    dir,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Backup copies path into the backup directory and returns a record of
// the copy. A missing source is not an error: there is nothing to
// preserve, so it returns (nil, nil).
func (m *Manager) Backup(path string) (*Record, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		m.logger.Debug("nothing to back up", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(errors.Execution, err, "cannot stat %s", path).WithOp("backup.Backup")
	}
	if info.IsDir() {
		return nil, errors.Newf(errors.Validation, "refusing to back up directory %s", path).WithOp("backup.Backup")
	}

	ts := m.now()
	copyPath := filepath.Join(m.dir, mangledName(path, ts))

	if m.dryRun {
		m.logger.Info("dry run: would back up file", "path", path, "copy", copyPath)
		return &Record{Original: path, Copy: copyPath, Time: ts}, nil
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, errors.Wrapf(errors.Execution, err, "cannot create backup directory %s", m.dir).WithOp("backup.Backup")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.Execution, err, "cannot read %s", path).WithOp("backup.Backup")
	}
	if err := os.WriteFile(copyPath, data, info.Mode().Perm()); err != nil {
		return nil, errors.Wrapf(errors.Execution, err, "cannot write backup %s", copyPath).WithOp("backup.Backup")
	}

	m.logger.Info("backed up file", "path", path, "copy", copyPath)
	return &Record{Original: path, Copy: copyPath, Time: ts}, nil
}

// Restore copies a backup back over its original location.
func (m *Manager) Restore(rec *Record) error {
	if rec == nil {
		return nil
	}

	data, err := os.ReadFile(rec.Copy)
	if err != nil {
		return errors.Wrapf(errors.Execution, err, "cannot read backup %s", rec.Copy).WithOp("backup.Restore")
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(rec.Copy); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(rec.Original, data, mode); err != nil {
		return errors.Wrapf(errors.Execution, err, "cannot restore %s", rec.Original).WithOp("backup.Restore")
	}

	m.logger.Info("restored file from backup", "path", rec.Original, "copy", rec.Copy)
	return nil
}

// mangledName encodes the original path and a timestamp into a flat
// file name, e.g. /etc/default/grub becomes
// etc_default_grub.20260823-150405.bak.
func mangledName(path string, ts time.Time) string {
	flat := strings.Trim(strings.ReplaceAll(path, string(os.PathSeparator), "_"), "_")
	return fmt.Sprintf("%s.%s.bak", flat, ts.Format("20060102-150405"))
}
