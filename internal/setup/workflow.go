package setup

import (
	"fmt"
	"sync"
	"time"
)

// Workflow runs setup steps in order. A failed step stops the workflow;
// completed steps that support it are rolled back in reverse order by
// the orchestrator.
type Workflow struct {
	name           string
	steps          []Step
	completedSteps []Step
	progressCb     func(StepProgress)
	cancelled      bool
	mu             sync.RWMutex
}

// NewWorkflow creates a workflow with the given name.
func NewWorkflow(name string) *Workflow {
	return &Workflow{
		name:           name,
		steps:          make([]Step, 0),
		completedSteps: make([]Step, 0),
	}
}

// Name returns the workflow name.
func (w *Workflow) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// Steps returns a copy of the steps slice.
func (w *Workflow) Steps() []Step {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Step{}, w.steps...)
}

// AddStep appends a step to the workflow.
func (w *Workflow) AddStep(step Step) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.steps = append(w.steps, step)
}

// Execute runs all steps in order.
func (w *Workflow) Execute(ctx *Context) WorkflowResult {
	startTime := time.Now()

	w.mu.Lock()
	w.cancelled = false
	w.completedSteps = make([]Step, 0)
	steps := append([]Step{}, w.steps...)
	w.mu.Unlock()

	result := WorkflowResult{Status: WorkflowStatusRunning, CompletedSteps: make([]string, 0)}

	for i, step := range steps {
		if w.isCancelled() || (ctx != nil && ctx.IsCancelled()) {
			result.Status = WorkflowStatusCancelled
			result.TotalDuration = time.Since(startTime)
			return result
		}

		w.reportProgress(step.Name(), i, len(steps), fmt.Sprintf("Starting: %s", step.Description()))

		if err := step.Validate(ctx); err != nil {
			result.Status = WorkflowStatusFailed
			result.FailedStep = step.Name()
			result.Error = fmt.Errorf("validation failed: %w", err)
			result.TotalDuration = time.Since(startTime)
			return result
		}

		stepResult := step.Execute(ctx)

		switch stepResult.Status {
		case StepStatusCompleted:
			w.mu.Lock()
			w.completedSteps = append(w.completedSteps, step)
			w.mu.Unlock()
			result.CompletedSteps = append(result.CompletedSteps, step.Name())
			w.reportProgress(step.Name(), i, len(steps), fmt.Sprintf("Completed: %s", stepResult.Message))

		case StepStatusSkipped:
			w.reportProgress(step.Name(), i, len(steps), fmt.Sprintf("Skipped: %s", stepResult.Message))

		case StepStatusFailed:
			result.Status = WorkflowStatusFailed
			result.FailedStep = step.Name()
			result.Error = stepResult.Error
			result.TotalDuration = time.Since(startTime)
			w.reportProgress(step.Name(), i, len(steps), fmt.Sprintf("Failed: %s", stepResult.Message))
			return result

		default:
			result.Status = WorkflowStatusFailed
			result.FailedStep = step.Name()
			result.Error = fmt.Errorf("unexpected step status: %s", stepResult.Status)
			result.TotalDuration = time.Since(startTime)
			return result
		}
	}

	result.Status = WorkflowStatusCompleted
	result.TotalDuration = time.Since(startTime)
	w.reportProgress("", len(steps), len(steps), "Workflow completed successfully")
	return result
}

// Rollback reverses completed steps in reverse order. Rollback errors
// are collected, not fatal, so every step gets its chance to revert.
func (w *Workflow) Rollback(ctx *Context) error {
	w.mu.Lock()
	completed := append([]Step{}, w.completedSteps...)
	w.mu.Unlock()

	var rollbackErrors []error
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if !step.CanRollback() {
			continue
		}

		w.reportProgress(step.Name(), i, len(completed), fmt.Sprintf("Rolling back: %s", step.Description()))

		if err := step.Rollback(ctx); err != nil {
			rollbackErrors = append(rollbackErrors, fmt.Errorf("rollback of '%s' failed: %w", step.Name(), err))
		}
	}

	if len(rollbackErrors) > 0 {
		return fmt.Errorf("rollback completed with %d errors: %v", len(rollbackErrors), rollbackErrors)
	}
	return nil
}

// OnProgress sets a callback for progress updates.
func (w *Workflow) OnProgress(callback func(StepProgress)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.progressCb = callback
}

// Cancel requests cancellation of the workflow.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelled = true
}

// CompletedSteps returns the steps that completed so far.
func (w *Workflow) CompletedSteps() []Step {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Step{}, w.completedSteps...)
}

func (w *Workflow) isCancelled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cancelled
}

func (w *Workflow) reportProgress(stepName string, index, total int, message string) {
	w.mu.RLock()
	cb := w.progressCb
	w.mu.RUnlock()

	if cb != nil {
		cb(StepProgress{StepName: stepName, StepIndex: index, TotalSteps: total, Message: message})
	}
}
