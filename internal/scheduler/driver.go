// Package scheduler defines the common interface that all batch scheduler
// drivers must implement, along with the normalized statuses and errors
// exchanged between the job lifecycle controller and driver implementations.
package scheduler

import (
	"context"
	"errors"
	"os/exec"
)

// JobStatus is a driver-normalized scheduler job state.
type JobStatus int

const (
	StatusQueued JobStatus = iota
	StatusRunning
	StatusDone
)

// String returns the human-readable status persisted into job records.
func (s JobStatus) String() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusRunning:
		return "Running"
	case StatusDone:
		return "Done"
	}
	return "Unknown"
}

// ErrJobFailed is returned by Status when the scheduler reports the job as failed.
var ErrJobFailed = errors.New("job failed")

// ErrUnexpectedOutput is returned when scheduler command output does not
// match the shape the driver expects. Drivers never guess: output that
// cannot be parsed exactly is an error, not a best-effort status.
var ErrUnexpectedOutput = errors.New("unexpected scheduler output")

// Driver is the interface to one concrete batch scheduler. Submit, Status and
// Cancel shell out to external scheduler commands; the context carries
// cancellation for those calls.
type Driver interface {
	// Type returns the scheduler type identifier this driver serves.
	Type() string

	// BatchScript returns the batch script text that runs a job under this
	// scheduler. email may be empty, in which case no completion mail is
	// requested.
	BatchScript(runName string, numTasks int, email string) string

	// Submit submits the batch script in projectDir and returns the
	// scheduler-assigned job number.
	Submit(ctx context.Context, projectDir string) (int, error)

	// Status returns the normalized status of a scheduler job. A
	// scheduler-reported failure returns ErrJobFailed; output the driver
	// cannot parse returns ErrUnexpectedOutput.
	Status(ctx context.Context, jobNum int) (JobStatus, error)

	// Cancel cancels a scheduler job. It affects only the externally
	// scheduled job; local monitoring observes the result on a later poll.
	Cancel(ctx context.Context, jobNum int) error
}

// CommandRunner runs an external command in dir (the process working
// directory when dir is empty) and returns its combined output. Drivers and
// lifecycle hooks take a CommandRunner so tests can substitute scripted
// output for real scheduler binaries.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecRunner is the CommandRunner used outside tests.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}
