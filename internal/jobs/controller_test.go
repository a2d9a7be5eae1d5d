package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onramp-hpc/pce/internal/jobs"
	"github.com/onramp-hpc/pce/internal/model"
	"github.com/onramp-hpc/pce/internal/scheduler"
	"github.com/onramp-hpc/pce/internal/store"
)

// syncDispatcher runs work inline so tests observe terminal states without
// polling.
type syncDispatcher struct{}

func (syncDispatcher) Submit(_ string, fn func(ctx context.Context)) {
	fn(context.Background())
}

// fakeDriver is a scripted scheduler driver. Status pops from a sequence of
// statuses/errors; the last entry repeats.
type fakeDriver struct {
	submitNum int
	submitErr error
	statuses  []scheduler.JobStatus
	statusErr []error
	idx       int
	submitted []string
	cancelled []int
}

func (f *fakeDriver) Type() string { return "FAKE" }

func (f *fakeDriver) BatchScript(runName string, numTasks int, email string) string {
	return fmt.Sprintf("#!/bin/bash\n# fake script for %s ntasks=%d email=%s\n", runName, numTasks, email)
}

func (f *fakeDriver) Submit(_ context.Context, projectDir string) (int, error) {
	f.submitted = append(f.submitted, projectDir)
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	return f.submitNum, nil
}

func (f *fakeDriver) Status(_ context.Context, _ int) (scheduler.JobStatus, error) {
	i := f.idx
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.idx++
	if f.statusErr != nil && f.statusErr[i] != nil {
		return 0, f.statusErr[i]
	}
	return f.statuses[i], nil
}

func (f *fakeDriver) Cancel(_ context.Context, jobNum int) error {
	f.cancelled = append(f.cancelled, jobNum)
	return nil
}

type testEnv struct {
	ctl    *jobs.Controller
	store  store.Store
	locker *store.Locker
	driver *fakeDriver
}

func newTestEnv(t *testing.T, driver *fakeDriver, run scheduler.CommandRunner) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	locker := store.NewLocker(s)
	runRoot := filepath.Join(t.TempDir(), "users")
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ctl := jobs.NewController(locker, driver, syncDispatcher{}, runRoot, 4, "", run, logger)
	return &testEnv{ctl: ctl, store: s, locker: locker, driver: driver}
}

// installModule writes a Module ready record whose installed tree exists on disk.
func (e *testEnv) installModule(t *testing.T, id int, state string) *model.Module {
	t.Helper()
	dir := filepath.Join(t.TempDir(), fmt.Sprintf("mpi-ring_%d", id))
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatalf("mkdir module tree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bin", "onramp_run.py"), []byte("print('hi')\n"), 0o755); err != nil {
		t.Fatalf("write entry point: %v", err)
	}

	now := time.Now().UTC()
	m := &model.Module{
		ID:            id,
		Name:          "mpi-ring",
		Source:        model.SourceLocation{Kind: model.SourceKindLocal, Path: dir},
		State:         state,
		InstalledPath: dir,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !model.ModuleInstalledOrLater(state) {
		m.InstalledPath = ""
	}
	if err := e.store.PutModule(context.Background(), m); err != nil {
		t.Fatalf("PutModule: %v", err)
	}
	return m
}

func TestLaunchModuleMissing(t *testing.T) {
	env := newTestEnv(t, &fakeDriver{}, nil)

	res, err := env.ctl.Launch(context.Background(), 1, 5, "alice", "run1")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if res.Code != model.CodeNotInstalled {
		t.Errorf("code = %d, want %d", res.Code, model.CodeNotInstalled)
	}
	if res.Message != "Module 5 not installed" {
		t.Errorf("message = %q, want 'Module 5 not installed'", res.Message)
	}

	if _, err := env.store.GetJob(context.Background(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("job record created despite missing module: %v", err)
	}
}

func TestLaunchModuleNotReady(t *testing.T) {
	env := newTestEnv(t, &fakeDriver{}, nil)
	env.installModule(t, 5, model.ModuleInstalled)

	res, err := env.ctl.Launch(context.Background(), 1, 5, "alice", "run1")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if res.Code != model.CodeNotReady {
		t.Errorf("code = %d, want %d", res.Code, model.CodeNotReady)
	}

	if _, err := env.store.GetJob(context.Background(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("job record mutated despite not-ready module: %v", err)
	}
}

func TestLaunchHappyPath(t *testing.T) {
	driver := &fakeDriver{submitNum: 4242}
	env := newTestEnv(t, driver, nil)
	env.installModule(t, 5, model.ModuleReady)

	res, err := env.ctl.Launch(context.Background(), 1, 5, "alice", "run1")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if res.Code != model.CodeAccepted || res.Message != "Job launched" {
		t.Errorf("ack = %+v, want accepted 'Job launched'", res)
	}

	j, err := env.store.GetJob(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.State != model.JobScheduled {
		t.Errorf("state = %q, want Scheduled", j.State)
	}
	if j.SchedulerJobNum == nil || *j.SchedulerJobNum != 4242 {
		t.Errorf("scheduler_job_num = %v, want 4242", j.SchedulerJobNum)
	}
	if j.Error != "" {
		t.Errorf("error = %q, want empty", j.Error)
	}

	if len(driver.submitted) != 1 || driver.submitted[0] != j.RunDir {
		t.Errorf("submitted from %v, want [%s]", driver.submitted, j.RunDir)
	}
	if !strings.Contains(j.RunDir, filepath.Join("alice", "mpi-ring_5", "run1")) {
		t.Errorf("run dir %q missing user/module/run segments", j.RunDir)
	}

	script, err := os.ReadFile(filepath.Join(j.RunDir, "script.sh"))
	if err != nil {
		t.Fatalf("read generated script: %v", err)
	}
	if !strings.Contains(string(script), "run1") {
		t.Errorf("script does not mention the run name:\n%s", script)
	}
	if _, err := os.Stat(filepath.Join(j.RunDir, "bin", "onramp_run.py")); err != nil {
		t.Errorf("run dir missing module tree: %v", err)
	}
}

func TestLaunchSubmitFailure(t *testing.T) {
	driver := &fakeDriver{submitErr: errors.New("job scheduling call failed: Invalid partition")}
	env := newTestEnv(t, driver, nil)
	env.installModule(t, 5, model.ModuleReady)

	if _, err := env.ctl.Launch(context.Background(), 1, 5, "alice", "run1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	j, _ := env.store.GetJob(context.Background(), 1)
	if j.State != model.JobLaunchFailed {
		t.Errorf("state = %q, want Launch failed", j.State)
	}
	if !strings.Contains(j.Error, "Invalid partition") {
		t.Errorf("error = %q, want driver error text", j.Error)
	}
	if j.SchedulerJobNum != nil {
		t.Errorf("scheduler_job_num = %v, want nil after failed launch", j.SchedulerJobNum)
	}
}

func TestRelaunchRemovesStaleArtifacts(t *testing.T) {
	driver := &fakeDriver{submitNum: 4242}
	env := newTestEnv(t, driver, nil)
	env.installModule(t, 5, model.ModuleReady)
	ctx := context.Background()

	if _, err := env.ctl.Launch(ctx, 1, 5, "alice", "run1"); err != nil {
		t.Fatalf("first Launch: %v", err)
	}
	j, _ := env.store.GetJob(ctx, 1)

	// Simulate a completed prior run leaving scheduler output behind.
	if err := os.WriteFile(filepath.Join(j.RunDir, "output.txt"), []byte("old results\n"), 0o644); err != nil {
		t.Fatalf("write stale output: %v", err)
	}

	if _, err := env.ctl.Launch(ctx, 1, 5, "alice", "run1"); err != nil {
		t.Fatalf("relaunch: %v", err)
	}

	if _, err := os.Stat(filepath.Join(j.RunDir, "output.txt")); !os.IsNotExist(err) {
		t.Errorf("stale output.txt survived relaunch: %v", err)
	}
	if _, err := os.Stat(filepath.Join(j.RunDir, "script.sh")); err != nil {
		t.Errorf("script.sh not regenerated on relaunch: %v", err)
	}

	relaunched, _ := env.store.GetJob(ctx, 1)
	if relaunched.State != model.JobScheduled {
		t.Errorf("state after relaunch = %q, want Scheduled", relaunched.State)
	}
}

func TestPollAdvancesThroughLifecycle(t *testing.T) {
	driver := &fakeDriver{
		submitNum: 4242,
		statuses:  []scheduler.JobStatus{scheduler.StatusQueued, scheduler.StatusRunning, scheduler.StatusDone},
	}
	env := newTestEnv(t, driver, nil)
	env.installModule(t, 5, model.ModuleReady)
	ctx := context.Background()

	if _, err := env.ctl.Launch(ctx, 1, 5, "alice", "run1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	env.ctl.PollActive(ctx)
	j, _ := env.store.GetJob(ctx, 1)
	if j.State != model.JobScheduled {
		t.Errorf("after queued poll: state = %q, want Scheduled", j.State)
	}

	env.ctl.PollActive(ctx)
	j, _ = env.store.GetJob(ctx, 1)
	if j.State != model.JobRunning {
		t.Errorf("after running poll: state = %q, want Running", j.State)
	}
	if j.StatusText != "Running" {
		t.Errorf("mod_status_output = %q, want Running", j.StatusText)
	}

	// Completed: postprocess runs inline (no hook present) and lands Done.
	env.ctl.PollActive(ctx)
	j, _ = env.store.GetJob(ctx, 1)
	if j.State != model.JobDone {
		t.Errorf("after completed poll: state = %q, want Done", j.State)
	}
	if j.Error != "" {
		t.Errorf("error = %q, want empty", j.Error)
	}
	if j.StatusText != "" {
		t.Errorf("mod_status_output = %q, want cleared after completion", j.StatusText)
	}
}

func TestPollSchedulerReportedFailure(t *testing.T) {
	driver := &fakeDriver{
		submitNum: 4242,
		statuses:  []scheduler.JobStatus{0},
		statusErr: []error{scheduler.ErrJobFailed},
	}
	env := newTestEnv(t, driver, nil)
	env.installModule(t, 5, model.ModuleReady)
	ctx := context.Background()

	if _, err := env.ctl.Launch(ctx, 1, 5, "alice", "run1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	env.ctl.PollActive(ctx)

	j, _ := env.store.GetJob(ctx, 1)
	if j.State != model.JobFailed {
		t.Errorf("state = %q, want Failed", j.State)
	}
	if j.Error == "" {
		t.Error("error empty after scheduler-reported failure")
	}
}

func TestPollUnrecognizedStateNeverAdvances(t *testing.T) {
	driver := &fakeDriver{
		submitNum: 4242,
		statuses:  []scheduler.JobStatus{0},
		statusErr: []error{fmt.Errorf("%w: unexpected job state %q from scheduler", scheduler.ErrUnexpectedOutput, "NODE_FAIL")},
	}
	env := newTestEnv(t, driver, nil)
	env.installModule(t, 5, model.ModuleReady)
	ctx := context.Background()

	if _, err := env.ctl.Launch(ctx, 1, 5, "alice", "run1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	env.ctl.PollActive(ctx)

	j, _ := env.store.GetJob(ctx, 1)
	if j.State != model.JobFailed {
		t.Errorf("state = %q, want Failed for unrecognized scheduler state", j.State)
	}
	if !strings.Contains(j.Error, "NODE_FAIL") {
		t.Errorf("error = %q, want the unexpected token surfaced", j.Error)
	}
}

func TestPostprocessHookFailure(t *testing.T) {
	driver := &fakeDriver{
		submitNum: 4242,
		statuses:  []scheduler.JobStatus{scheduler.StatusDone},
	}
	run := func(_ context.Context, _, _ string, _ ...string) ([]byte, error) {
		return []byte("Traceback: postprocess exploded\n"), errors.New("exit status 1")
	}
	env := newTestEnv(t, driver, run)

	m := env.installModule(t, 5, model.ModuleReady)
	hook := filepath.Join(m.InstalledPath, "bin", "onramp_postprocess.py")
	if err := os.WriteFile(hook, []byte("raise\n"), 0o755); err != nil {
		t.Fatalf("write hook: %v", err)
	}

	ctx := context.Background()
	if _, err := env.ctl.Launch(ctx, 1, 5, "alice", "run1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	env.ctl.PollActive(ctx)

	j, _ := env.store.GetJob(ctx, 1)
	if j.State != model.JobFailed {
		t.Errorf("state = %q, want Failed after postprocess failure", j.State)
	}
	if !strings.Contains(j.Error, "postprocess exploded") {
		t.Errorf("error = %q, want hook output", j.Error)
	}
}

func TestCancel(t *testing.T) {
	driver := &fakeDriver{submitNum: 4242}
	env := newTestEnv(t, driver, nil)
	env.installModule(t, 5, model.ModuleReady)
	ctx := context.Background()

	if _, err := env.ctl.Launch(ctx, 1, 5, "alice", "run1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	res, err := env.ctl.Cancel(ctx, 1)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Code != model.CodeAccepted {
		t.Errorf("code = %d, want 0", res.Code)
	}
	if len(driver.cancelled) != 1 || driver.cancelled[0] != 4242 {
		t.Errorf("cancelled = %v, want [4242]", driver.cancelled)
	}

	// Cancel does not touch the local record; monitoring owns that.
	j, _ := env.store.GetJob(ctx, 1)
	if j.State != model.JobScheduled {
		t.Errorf("state = %q, want Scheduled untouched by cancel", j.State)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	env := newTestEnv(t, &fakeDriver{}, nil)

	res, err := env.ctl.Cancel(context.Background(), 7)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Code != model.CodeNotInstalled {
		t.Errorf("code = %d, want %d", res.Code, model.CodeNotInstalled)
	}
}

func TestCancelUnscheduledJob(t *testing.T) {
	driver := &fakeDriver{submitErr: errors.New("submit down")}
	env := newTestEnv(t, driver, nil)
	env.installModule(t, 5, model.ModuleReady)
	ctx := context.Background()

	if _, err := env.ctl.Launch(ctx, 1, 5, "alice", "run1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	res, err := env.ctl.Cancel(ctx, 1)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Code != model.CodeNotReady {
		t.Errorf("code = %d, want %d for a job with no scheduler number", res.Code, model.CodeNotReady)
	}
	if len(driver.cancelled) != 0 {
		t.Errorf("cancel reached the driver for an unscheduled job: %v", driver.cancelled)
	}
}
