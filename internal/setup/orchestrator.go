package setup

import (
	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/pci"
	"github.com/tungetti/carve/internal/state"
	"github.com/tungetti/carve/internal/syscheck"
)

// Report is the outcome of a full setup run.
type Report struct {
	// Checks are the prerequisite check results.
	Checks []syscheck.Result

	// Selection is the device set that was isolated.
	Selection *pci.Selection

	// Workflow is the step execution outcome.
	Workflow WorkflowResult

	// JournalPath is the written change journal, empty on dry runs.
	JournalPath string

	// CleanupScriptPath is the written cleanup script, empty on dry runs.
	CleanupScriptPath string

	// NeedsReboot is true when changes were made that require a reboot.
	NeedsReboot bool
}

// Orchestrator drives a setup run end to end: prerequisite checks,
// device discovery and selection, the configuration workflow, and the
// change journal artifacts.
type Orchestrator struct {
	checker   *syscheck.Checker
	scanner   *pci.Scanner
	chooser   pci.Chooser
	outputDir string
	progress  func(StepProgress)
}

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOutputDir sets the directory receiving the journal, cleanup script
// and backups.
func WithOutputDir(dir string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.outputDir = dir
	}
}

// WithProgress sets a callback receiving workflow progress updates.
func WithProgress(cb func(StepProgress)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.progress = cb
	}
}

// NewOrchestrator creates an orchestrator. The chooser resolves
// ambiguous device lists; pass nil to fail on ambiguity instead.
func NewOrchestrator(checker *syscheck.Checker, scanner *pci.Scanner, chooser pci.Chooser, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		checker:   checker,
		scanner:   scanner,
		chooser:   chooser,
		outputDir: ".",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the full setup. The context must carry the subsystem
// managers; Run fills in the host facts and the device selection.
func (o *Orchestrator) Run(ctx *Context) (*Report, error) {
	report := &Report{}

	lock, err := state.AcquireLock(o.outputDir)
	if err != nil {
		return report, err
	}
	defer lock.Release()

	// Prerequisite checks.
	report.Checks = o.checker.Report(ctx.Context())
	if syscheck.HasFailures(report.Checks) {
		return report, errors.New(errors.Validation, "prerequisite checks failed").WithOp("setup.Run")
	}

	ctx.CPUVendor = o.checker.CPUVendorID()
	kernel, err := o.checker.Kernel(ctx.Context())
	if err != nil {
		// An unknown kernel version keeps the conservative module list.
		ctx.LogWarn("cannot determine kernel version", "error", err)
	}
	ctx.Kernel = kernel

	// Discovery and selection.
	candidates, err := o.scanner.DisplayDevices(ctx.Context())
	if err != nil {
		return report, err
	}
	selected, err := pci.SelectForIsolation(candidates, o.chooser)
	if err != nil {
		return report, err
	}
	groups, err := o.scanner.Groups(ctx.Context())
	if err != nil {
		return report, err
	}
	selection, err := pci.RelatedDevices(selected, groups)
	if err != nil {
		return report, err
	}
	ctx.Selection = selection
	report.Selection = selection

	if ctx.Journal != nil {
		ctx.Journal.SetSystem(state.SystemInfo{
			CPUVendor:  string(ctx.CPUVendor),
			Bootloader: string(ctx.Bootloader.Detect()),
			Kernel:     ctx.Kernel.String(),
		})
		ctx.Journal.SetDevice(state.DeviceInfo{
			Description: selected.Name,
			Address:     selected.Address,
			IDPairs:     selection.IDPairs(),
			Group:       selection.PrimaryGroup,
		})
	}

	// Configuration workflow.
	workflow := NewWorkflow("vfio-setup")
	workflow.AddStep(NewKernelParamsStep())
	workflow.AddStep(NewModprobeStep())
	workflow.AddStep(NewInitramfsStep())
	workflow.AddStep(NewPackagesStep())
	if o.progress != nil {
		workflow.OnProgress(o.progress)
	}

	report.Workflow = workflow.Execute(ctx)
	if report.Workflow.Status == WorkflowStatusFailed {
		ctx.LogError("setup failed, rolling back completed steps", "step", report.Workflow.FailedStep)
		if rbErr := workflow.Rollback(ctx); rbErr != nil {
			ctx.LogError("rollback incomplete", "error", rbErr)
		}
		return report, errors.Wrapf(errors.Execution, report.Workflow.Error,
			"setup failed at step %s", report.Workflow.FailedStep).WithOp("setup.Run")
	}
	if report.Workflow.Status == WorkflowStatusCancelled {
		return report, errors.New(errors.Execution, "setup cancelled").WithOp("setup.Run")
	}

	report.NeedsReboot = len(report.Workflow.CompletedSteps) > 0

	// Run artifacts. Dry runs journal nothing, so nothing is written.
	if ctx.Journal != nil && !ctx.Journal.Empty() && !ctx.DryRun {
		path, err := ctx.Journal.Save(o.outputDir)
		if err != nil {
			return report, err
		}
		report.JournalPath = path

		script, err := ctx.Journal.WriteCleanupScript(o.outputDir)
		if err != nil {
			return report, err
		}
		report.CleanupScriptPath = script
	}

	return report, nil
}
