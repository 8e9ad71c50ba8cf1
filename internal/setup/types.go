// Package setup provides the multi-step workflow that configures a host
// for VFIO passthrough: kernel parameters, modprobe configuration,
// initramfs rebuild, and optional virtualization packages. Steps run in
// order, journal every mutation, and completed steps roll back in
// reverse order when a later step fails.
package setup

import (
	"fmt"
	"time"
)

// StepStatus represents the status of a setup step.
type StepStatus int

const (
	// StepStatusPending indicates the step has not yet been executed.
	StepStatusPending StepStatus = iota
	// StepStatusRunning indicates the step is currently executing.
	StepStatusRunning
	// StepStatusCompleted indicates the step completed successfully.
	StepStatusCompleted
	// StepStatusFailed indicates the step failed during execution.
	StepStatusFailed
	// StepStatusSkipped indicates the step was skipped.
	StepStatusSkipped
	// StepStatusRolledBack indicates the step was rolled back after a
	// later failure.
	StepStatusRolledBack
)

// String returns the string representation of the step status.
func (s StepStatus) String() string {
	switch s {
	case StepStatusPending:
		return "pending"
	case StepStatusRunning:
		return "running"
	case StepStatusCompleted:
		return "completed"
	case StepStatusFailed:
		return "failed"
	case StepStatusSkipped:
		return "skipped"
	case StepStatusRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IsSuccess returns true if this status represents a successful outcome.
func (s StepStatus) IsSuccess() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped
}

// StepResult contains the result of a step execution.
type StepResult struct {
	// Status is the final status of the step.
	Status StepStatus

	// Message is a human-readable message describing the result.
	Message string

	// Error is the error that caused failure, if any.
	Error error

	// Duration is how long the step took to execute.
	Duration time.Duration
}

// NewStepResult creates a new step result with the given status and message.
func NewStepResult(status StepStatus, message string) StepResult {
	return StepResult{
		Status:  status,
		Message: message,
	}
}

// WithError adds an error to the step result.
func (r StepResult) WithError(err error) StepResult {
	r.Error = err
	return r
}

// IsSuccess returns true if the step completed or was skipped.
func (r StepResult) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// IsFailure returns true if the step failed.
func (r StepResult) IsFailure() bool {
	return r.Status == StepStatusFailed
}

// String returns a human-readable representation of the step result.
func (r StepResult) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: %s (error: %v)", r.Status, r.Message, r.Error)
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Message)
}

// StepProgress contains progress information for a running workflow.
type StepProgress struct {
	// StepName is the name of the current step.
	StepName string

	// StepIndex is the 0-based index of the current step.
	StepIndex int

	// TotalSteps is the total number of steps in the workflow.
	TotalSteps int

	// Message is a human-readable progress message.
	Message string
}

// String returns a human-readable representation of the progress.
func (p StepProgress) String() string {
	return fmt.Sprintf("[%d/%d] %s: %s", p.StepIndex+1, p.TotalSteps, p.StepName, p.Message)
}

// WorkflowStatus represents the overall workflow status.
type WorkflowStatus int

const (
	// WorkflowStatusPending indicates the workflow has not yet started.
	WorkflowStatusPending WorkflowStatus = iota
	// WorkflowStatusRunning indicates the workflow is currently executing.
	WorkflowStatusRunning
	// WorkflowStatusCompleted indicates the workflow completed successfully.
	WorkflowStatusCompleted
	// WorkflowStatusFailed indicates the workflow failed.
	WorkflowStatusFailed
	// WorkflowStatusCancelled indicates the workflow was cancelled.
	WorkflowStatusCancelled
)

// String returns the string representation of the workflow status.
func (s WorkflowStatus) String() string {
	switch s {
	case WorkflowStatusPending:
		return "pending"
	case WorkflowStatusRunning:
		return "running"
	case WorkflowStatusCompleted:
		return "completed"
	case WorkflowStatusFailed:
		return "failed"
	case WorkflowStatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// WorkflowResult contains the result of a workflow execution.
type WorkflowResult struct {
	// Status is the final status of the workflow.
	Status WorkflowStatus

	// CompletedSteps contains the names of successfully completed steps.
	CompletedSteps []string

	// FailedStep is the name of the step that failed, if any.
	FailedStep string

	// Error is the error that caused workflow failure, if any.
	Error error

	// TotalDuration is the total time taken by the workflow.
	TotalDuration time.Duration
}

// IsSuccess returns true if the workflow completed successfully.
func (r WorkflowResult) IsSuccess() bool {
	return r.Status == WorkflowStatusCompleted
}

// String returns a human-readable representation of the workflow result.
func (r WorkflowResult) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: failed at step '%s' (error: %v)", r.Status, r.FailedStep, r.Error)
	}
	return fmt.Sprintf("%s: completed %d steps in %v", r.Status, len(r.CompletedSteps), r.TotalDuration)
}
