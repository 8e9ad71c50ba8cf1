// Package state journals every mutation a setup run performs and turns
// the journal into two artifacts in the output directory: a changes.json
// record and an idempotent bash cleanup script that reverts the run.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/errors"
)

// Action classifies what happened to a change target.
type Action string

const (
	// ActionModified means an existing file was edited (and backed up).
	ActionModified Action = "modified"
	// ActionCreated means a new file was written.
	ActionCreated Action = "created"
	// ActionAdded means a parameter or entry was added to a managed store.
	ActionAdded Action = "added"
	// ActionExecuted means a regeneration command was run.
	ActionExecuted Action = "executed"
	// ActionInstalled means packages were installed.
	ActionInstalled Action = "installed"
)

// Change categories.
const (
	CategoryFiles      = "files"
	CategoryKernelstub = "kernelstub"
	CategoryInitramfs  = "initramfs"
	CategoryBootloader = "bootloader"
	CategoryPackages   = "packages"
)

// Change is one journaled mutation.
type Change struct {
	Category   string    `json:"category"`
	Target     string    `json:"target"`
	Action     Action    `json:"action"`
	BackupPath string    `json:"backup_path,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SystemInfo is the host summary stored alongside the changes.
type SystemInfo struct {
	CPUVendor  string `json:"cpu_vendor"`
	Bootloader string `json:"bootloader"`
	Kernel     string `json:"kernel,omitempty"`
}

// DeviceInfo records what was isolated.
type DeviceInfo struct {
	Description string   `json:"description"`
	Address     string   `json:"address"`
	IDPairs     []string `json:"device_ids"`
	Group       int      `json:"iommu_group"`
}

// Document is the serialized journal.
type Document struct {
	Timestamp time.Time  `json:"timestamp"`
	System    SystemInfo `json:"system_info"`
	Device    DeviceInfo `json:"gpu_info"`
	Changes   []Change   `json:"changes"`
}

// Journal accumulates changes during a setup run.
type Journal struct {
	system  SystemInfo
	device  DeviceInfo
	changes []Change
	now     func() time.Time
}

// JournalOption configures the journal.
type JournalOption func(*Journal)

// WithClock overrides the timestamp source (useful for testing).
func WithClock(now func() time.Time) JournalOption {
	return func(j *Journal) {
		j.now = now
	}
}

// NewJournal creates an empty journal.
func NewJournal(opts ...JournalOption) *Journal {
	j := &Journal{now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SetSystem records the host summary.
func (j *Journal) SetSystem(info SystemInfo) {
	j.system = info
}

// SetDevice records the isolated device.
func (j *Journal) SetDevice(info DeviceInfo) {
	j.device = info
}

// FileModified journals an in-place edit with its backup copy.
func (j *Journal) FileModified(path, backupPath string) {
	j.append(Change{Category: CategoryFiles, Target: path, Action: ActionModified, BackupPath: backupPath})
}

// FileCreated journals a newly written file.
func (j *Journal) FileCreated(path string) {
	j.append(Change{Category: CategoryFiles, Target: path, Action: ActionCreated})
}

// KernelstubParamAdded journals a kernel parameter added through kernelstub.
func (j *Journal) KernelstubParamAdded(param string) {
	j.append(Change{Category: CategoryKernelstub, Target: param, Action: ActionAdded})
}

// InitramfsRebuilt journals the command that regenerated the image.
func (j *Journal) InitramfsRebuilt(command string) {
	j.append(Change{Category: CategoryInitramfs, Target: command, Action: ActionExecuted})
}

// BootloaderRegenerated journals the command that regenerated the
// bootloader configuration.
func (j *Journal) BootloaderRegenerated(command string) {
	j.append(Change{Category: CategoryBootloader, Target: command, Action: ActionExecuted})
}

// PackagesInstalled journals an installed package.
func (j *Journal) PackagesInstalled(pkg string) {
	j.append(Change{Category: CategoryPackages, Target: pkg, Action: ActionInstalled})
}

func (j *Journal) append(c Change) {
	c.Timestamp = j.now()
	j.changes = append(j.changes, c)
}

// Empty reports whether nothing was journaled.
func (j *Journal) Empty() bool {
	return len(j.changes) == 0
}

// Changes returns a copy of the journaled changes.
func (j *Journal) Changes() []Change {
	return append([]Change{}, j.changes...)
}

// Document builds the serializable form of the journal.
func (j *Journal) Document() *Document {
	return &Document{
		Timestamp: j.now(),
		System:    j.system,
		Device:    j.device,
		Changes:   j.Changes(),
	}
}

// Save writes the journal as changes.json into the output directory and
// returns the written path.
func (j *Journal) Save(outputDir string) (string, error) {
	path := filepath.Join(outputDir, constants.ChangesFileName)

	data, err := json.MarshalIndent(j.Document(), "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.Execution, "cannot serialize change journal", err).WithOp("state.Save")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", errors.Wrapf(errors.Execution, err, "cannot create %s", outputDir).WithOp("state.Save")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(errors.Execution, err, "cannot write %s", path).WithOp("state.Save")
	}
	return path, nil
}

// Load reads a previously saved journal document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.NotFound, err, "no change journal at %s", path).WithOp("state.Load")
		}
		return nil, errors.Wrapf(errors.Execution, err, "cannot read %s", path).WithOp("state.Load")
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(errors.Execution, err, "cannot parse %s", path).WithOp("state.Load")
	}
	return &doc, nil
}
