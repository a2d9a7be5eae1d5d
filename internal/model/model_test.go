package model_test

import (
	"testing"

	"github.com/onramp-hpc/pce/internal/model"
)

func TestModuleInstalledOrLater(t *testing.T) {
	tests := []struct {
		state string
		want  bool
	}{
		{model.ModuleAvailable, false},
		{model.ModuleCheckingOut, false},
		{model.ModuleCheckoutFailed, false},
		{model.ModuleInstalled, true},
		{model.ModuleDeploying, true},
		{model.ModuleReady, true},
		{model.ModuleDeployFailed, true},
		{"", false},
	}

	for _, tc := range tests {
		if got := model.ModuleInstalledOrLater(tc.state); got != tc.want {
			t.Errorf("ModuleInstalledOrLater(%q) = %v, want %v", tc.state, got, tc.want)
		}
	}
}

func TestModuleFailed(t *testing.T) {
	if !model.ModuleFailed(model.ModuleCheckoutFailed) || !model.ModuleFailed(model.ModuleDeployFailed) {
		t.Error("failure states not recognized")
	}
	if model.ModuleFailed(model.ModuleReady) {
		t.Error("Module ready reported as failed")
	}
}

func TestJobActive(t *testing.T) {
	active := []string{model.JobScheduled, model.JobRunning}
	for _, s := range active {
		if !model.JobActive(s) {
			t.Errorf("JobActive(%q) = false, want true", s)
		}
	}
	inactive := []string{model.JobScheduling, model.JobPostprocessing, model.JobDone, model.JobLaunchFailed, model.JobFailed}
	for _, s := range inactive {
		if model.JobActive(s) {
			t.Errorf("JobActive(%q) = true, want false", s)
		}
	}
}

func TestJobTerminal(t *testing.T) {
	for _, s := range []string{model.JobDone, model.JobLaunchFailed, model.JobFailed} {
		if !model.JobTerminal(s) {
			t.Errorf("JobTerminal(%q) = false, want true", s)
		}
	}
	for _, s := range []string{model.JobScheduling, model.JobScheduled, model.JobRunning, model.JobPostprocessing} {
		if model.JobTerminal(s) {
			t.Errorf("JobTerminal(%q) = true, want false", s)
		}
	}
}
