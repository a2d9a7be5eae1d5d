package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// TypeSLURM identifies the SLURM driver in configuration.
const TypeSLURM = "SLURM"

// sbatch acknowledges a submission with this prefix followed by the job number.
const submitPrefix = "Submitted batch job"

// Compile-time interface satisfaction check.
var _ Driver = (*SLURM)(nil)

// SLURM drives the SLURM batch scheduler through its command line tools:
// sbatch for submission, scontrol for status, scancel for cancellation.
type SLURM struct {
	run CommandRunner
}

// NewSLURM creates a SLURM driver. A nil run uses ExecRunner.
func NewSLURM(run CommandRunner) *SLURM {
	if run == nil {
		run = ExecRunner
	}
	return &SLURM{run: run}
}

// Type returns the SLURM type identifier.
func (s *SLURM) Type() string {
	return TypeSLURM
}

// BatchScript returns a SLURM batch script that runs the module entry point
// with its output captured to output.txt in the project directory.
func (s *SLURM) BatchScript(runName string, numTasks int, email string) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("\n")
	b.WriteString("###################################\n")
	b.WriteString("# Slurm Submission options\n")
	b.WriteString("#\n")
	fmt.Fprintf(&b, "#SBATCH --job-name=%s\n", runName)
	b.WriteString("#SBATCH -o output.txt\n")
	fmt.Fprintf(&b, "#SBATCH -n %d\n", numTasks)
	if email != "" {
		fmt.Fprintf(&b, "#SBATCH --mail-user=%s\n", email)
	}
	b.WriteString("###################################\n")
	b.WriteString("\n")
	b.WriteString("python bin/onramp_run.py\n")
	return b.String()
}

// Submit runs sbatch against script.sh in projectDir and parses the job
// number out of the acknowledgement line. The expected shape is exactly
// "Submitted batch job <N>"; anything else is ErrUnexpectedOutput.
func (s *SLURM) Submit(ctx context.Context, projectDir string) (int, error) {
	out, err := s.run(ctx, projectDir, "sbatch", "script.sh")
	if err != nil {
		return 0, fmt.Errorf("job scheduling call failed: %s", combinedError(out, err))
	}

	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) < 4 || strings.Join(fields[:len(fields)-1], " ") != submitPrefix {
		return 0, fmt.Errorf("%w from sbatch: %q", ErrUnexpectedOutput, strings.TrimSpace(string(out)))
	}

	jobNum, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, fmt.Errorf("%w from sbatch: %q", ErrUnexpectedOutput, strings.TrimSpace(string(out)))
	}

	return jobNum, nil
}

// Status runs scontrol for the given job number and maps the JobState token
// to a normalized status.
func (s *SLURM) Status(ctx context.Context, jobNum int) (JobStatus, error) {
	out, err := s.run(ctx, "", "scontrol", "show", "job", strconv.Itoa(jobNum))
	if err != nil {
		return 0, fmt.Errorf("job info call failed: %s", combinedError(out, err))
	}

	_, rest, found := strings.Cut(string(out), "JobState=")
	if !found {
		return 0, fmt.Errorf("%w from scontrol: missing JobState field", ErrUnexpectedOutput)
	}
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return 0, fmt.Errorf("%w from scontrol: empty JobState field", ErrUnexpectedOutput)
	}

	switch tokens[0] {
	case "PENDING":
		return StatusQueued, nil
	case "RUNNING":
		return StatusRunning, nil
	case "COMPLETED":
		return StatusDone, nil
	case "FAILED":
		return 0, ErrJobFailed
	default:
		return 0, fmt.Errorf("%w: unexpected job state %q from scheduler", ErrUnexpectedOutput, tokens[0])
	}
}

// Cancel runs scancel for the given job number.
func (s *SLURM) Cancel(ctx context.Context, jobNum int) error {
	out, err := s.run(ctx, "", "scancel", strconv.Itoa(jobNum))
	if err != nil {
		return fmt.Errorf("job cancel call failed: %s", combinedError(out, err))
	}
	return nil
}

// combinedError prefers the command's combined output as the error message,
// falling back to the exec error when the command produced none.
func combinedError(out []byte, err error) string {
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		return err.Error()
	}
	return msg
}
