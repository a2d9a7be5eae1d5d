// Package jobs drives job instances through their launch/monitor/postprocess
// state machine, delegating submission and status polling to a scheduler
// driver. State advances out of band via PollActive; reads of a job record
// always return the last persisted snapshot without touching the scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onramp-hpc/pce/internal/model"
	"github.com/onramp-hpc/pce/internal/modules"
	"github.com/onramp-hpc/pce/internal/scheduler"
	"github.com/onramp-hpc/pce/internal/store"
)

// postprocessHook is the optional per-module script run after the scheduler
// reports the job complete.
const postprocessHook = "bin/onramp_postprocess.py"

// staleArtifacts are per-run files regenerated on every launch; leftovers
// from a prior run with the same identity are removed before submission.
var staleArtifacts = []string{"script.sh", "output.txt"}

// Dispatcher schedules controller work units off the request path.
type Dispatcher interface {
	Submit(name string, fn func(ctx context.Context))
}

// Controller drives job instances. Launch returns immediately with an
// acknowledgement envelope; run directory setup, script generation and
// scheduler submission run on the dispatcher.
type Controller struct {
	locker      *store.Locker
	driver      scheduler.Driver
	dispatch    Dispatcher
	run         scheduler.CommandRunner
	runRoot     string
	numTasks    int
	notifyEmail string
	logger      *slog.Logger
}

// NewController creates a job controller. run may be nil, in which case
// scheduler.ExecRunner is used for postprocess hooks.
func NewController(locker *store.Locker, driver scheduler.Driver, dispatch Dispatcher, runRoot string, numTasks int, notifyEmail string, run scheduler.CommandRunner, logger *slog.Logger) *Controller {
	if run == nil {
		run = scheduler.ExecRunner
	}
	return &Controller{
		locker:      locker,
		driver:      driver,
		dispatch:    dispatch,
		run:         run,
		runRoot:     runRoot,
		numTasks:    numTasks,
		notifyEmail: notifyEmail,
		logger:      logger,
	}
}

// Launch gates on the referenced module being "Module ready", resets the job
// record to Scheduling and schedules the asynchronous launch work. A relaunch
// with the same identity discards the prior run's artifacts and restarts the
// state machine. The module check and the job write are not atomic with
// respect to concurrent module changes; a module torn down in between is
// surfaced by the launch work failing, not prevented here.
func (c *Controller) Launch(ctx context.Context, jobID, modID int, username, runName string) (model.Result, error) {
	m, err := c.locker.Store().GetModule(ctx, modID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Result{
			Code:    model.CodeNotInstalled,
			Message: fmt.Sprintf("Module %d not installed", modID),
		}, nil
	}
	if err != nil {
		return model.Result{}, err
	}
	if m.State != model.ModuleReady {
		return model.Result{
			Code:    model.CodeNotReady,
			Message: fmt.Sprintf("Module %d not ready", modID),
		}, nil
	}

	err = c.locker.WithJob(ctx, jobID, func(j *model.Job) error {
		j.ModuleID = modID
		j.Username = username
		j.RunName = runName
		j.State = model.JobScheduling
		j.SchedulerJobNum = nil
		j.StatusText = ""
		j.RunDir = ""
		j.Error = ""
		return nil
	})
	if err != nil {
		return model.Result{}, err
	}

	// Snapshot the module fields the launch work needs; the module record may
	// change while the work is queued.
	modName, installedPath := m.Name, m.InstalledPath
	c.dispatch.Submit("job-launch", func(ctx context.Context) {
		c.doLaunch(ctx, jobID, modID, modName, installedPath, username, runName)
	})

	return model.Accepted("Job launched"), nil
}

// doLaunch materializes the run directory, regenerates the batch script and
// submits it, all under the job's lock so a relaunch cannot interleave.
func (c *Controller) doLaunch(ctx context.Context, jobID, modID int, modName, installedPath, username, runName string) {
	err := c.locker.WithJob(ctx, jobID, func(j *model.Job) error {
		runDir := filepath.Join(c.runRoot, username, fmt.Sprintf("%s_%d", modName, modID), runName)
		j.RunDir = runDir

		if err := modules.CopyTree(installedPath, runDir); err != nil {
			c.failLaunch(j, fmt.Sprintf("materialize run dir: %v", err))
			return nil
		}

		for _, name := range staleArtifacts {
			if err := os.Remove(filepath.Join(runDir, name)); err != nil && !os.IsNotExist(err) {
				c.failLaunch(j, fmt.Sprintf("remove stale %s: %v", name, err))
				return nil
			}
		}

		script := c.driver.BatchScript(runName, c.numTasks, c.notifyEmail)
		if err := os.WriteFile(filepath.Join(runDir, "script.sh"), []byte(script), 0o755); err != nil {
			c.failLaunch(j, fmt.Sprintf("write batch script: %v", err))
			return nil
		}

		jobNum, err := c.driver.Submit(ctx, runDir)
		if err != nil {
			c.failLaunch(j, err.Error())
			return nil
		}

		j.State = model.JobScheduled
		j.SchedulerJobNum = &jobNum
		j.Error = ""
		return nil
	})
	if err != nil {
		c.logger.Error("persist launch outcome", "job_id", jobID, "error", err)
	}
}

// PollActive polls the scheduler for every job in a Scheduled or Running
// state and advances each record accordingly.
func (c *Controller) PollActive(ctx context.Context) {
	active, err := c.locker.Store().ListJobsInStates(ctx, model.JobScheduled, model.JobRunning)
	if err != nil {
		c.logger.Error("list active jobs", "error", err)
		return
	}
	for _, j := range active {
		c.pollJob(ctx, j.ID)
	}
}

// pollJob advances one job from its current scheduler status. A completed job
// moves to Postprocessing and the postprocess step is dispatched after the
// lock is released.
func (c *Controller) pollJob(ctx context.Context, id int) {
	postprocess := false
	err := c.locker.WithJob(ctx, id, func(j *model.Job) error {
		// The job may have changed between listing and locking.
		if !model.JobActive(j.State) || j.SchedulerJobNum == nil {
			return nil
		}

		status, err := c.driver.Status(ctx, *j.SchedulerJobNum)
		if err != nil {
			j.State = model.JobFailed
			j.Error = err.Error()
			j.StatusText = ""
			return nil
		}

		switch status {
		case scheduler.StatusQueued:
			j.State = model.JobScheduled
		case scheduler.StatusRunning:
			j.State = model.JobRunning
			j.StatusText = status.String()
		case scheduler.StatusDone:
			j.State = model.JobPostprocessing
			j.StatusText = ""
			postprocess = true
		}
		return nil
	})
	if err != nil {
		c.logger.Error("persist poll outcome", "job_id", id, "error", err)
	}

	if postprocess {
		c.dispatch.Submit("job-postprocess", func(ctx context.Context) {
			c.doPostprocess(ctx, id)
		})
	}
}

func (c *Controller) doPostprocess(ctx context.Context, id int) {
	err := c.locker.WithJob(ctx, id, func(j *model.Job) error {
		if j.State != model.JobPostprocessing {
			return nil
		}

		if err := modules.RunHook(ctx, c.run, j.RunDir, postprocessHook); err != nil {
			j.State = model.JobFailed
			j.Error = err.Error()
			return nil
		}
		j.State = model.JobDone
		j.Error = ""
		return nil
	})
	if err != nil {
		c.logger.Error("persist postprocess outcome", "job_id", id, "error", err)
	}
}

// Cancel asks the scheduler to cancel the job's external submission. The
// local record is not touched; monitoring observes the resulting scheduler
// state on a later poll.
func (c *Controller) Cancel(ctx context.Context, id int) (model.Result, error) {
	j, err := c.locker.Store().GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Result{
			Code:    model.CodeNotInstalled,
			Message: fmt.Sprintf("Job %d not found", id),
		}, nil
	}
	if err != nil {
		return model.Result{}, err
	}
	if j.SchedulerJobNum == nil {
		return model.Result{
			Code:    model.CodeNotReady,
			Message: fmt.Sprintf("Job %d not scheduled", id),
		}, nil
	}

	jobNum := *j.SchedulerJobNum
	c.dispatch.Submit("job-cancel", func(ctx context.Context) {
		if err := c.driver.Cancel(ctx, jobNum); err != nil {
			c.logger.Error("cancel scheduler job", "job_id", id, "scheduler_job_num", jobNum, "error", err)
		}
	})

	return model.Accepted("Job cancel initiated"), nil
}

func (c *Controller) failLaunch(j *model.Job, msg string) {
	j.State = model.JobLaunchFailed
	j.Error = msg
	j.SchedulerJobNum = nil
	j.StatusText = ""
}
