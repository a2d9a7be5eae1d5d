package model

import "time"

// Job lifecycle states.
const (
	JobScheduling     = "Scheduling"
	JobScheduled      = "Scheduled"
	JobRunning        = "Running"
	JobPostprocessing = "Postprocessing"
	JobDone           = "Done"
	JobLaunchFailed   = "Launch failed"
	JobFailed         = "Failed"
)

// Job is the persisted record for one job instance. SchedulerJobNum is nil
// until the batch scheduler has accepted the submission; StatusText carries
// the scheduler's reported status only while the job is on the scheduler.
type Job struct {
	ID              int       `json:"id"`
	ModuleID        int       `json:"module_id"`
	Username        string    `json:"username"`
	RunName         string    `json:"run_name"`
	State           string    `json:"state"`
	SchedulerJobNum *int      `json:"scheduler_job_num,omitempty"`
	StatusText      string    `json:"mod_status_output,omitempty"`
	RunDir          string    `json:"run_dir,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Extra holds fields owned by the API layer; the core only round-trips them.
	Extra map[string]any `json:"extra,omitempty"`
}

// JobActive reports whether a job state requires scheduler status polling.
func JobActive(state string) bool {
	return state == JobScheduled || state == JobRunning
}

// JobTerminal reports whether a job state is final.
func JobTerminal(state string) bool {
	switch state {
	case JobDone, JobLaunchFailed, JobFailed:
		return true
	}
	return false
}
