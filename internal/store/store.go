package store

import (
	"context"
	"errors"

	"github.com/onramp-hpc/pce/internal/model"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("record not found")

// Stats holds per-state record counts for both entity kinds.
type Stats struct {
	ModulesByState map[string]int `json:"modules_by_state"`
	JobsByState    map[string]int `json:"jobs_by_state"`
}

// Store defines the persistence operations for module and job records. The
// two entity kinds use independent id spaces: module 5 and job 5 are
// unrelated records.
type Store interface {
	GetModule(ctx context.Context, id int) (*model.Module, error)
	PutModule(ctx context.Context, m *model.Module) error
	ListModules(ctx context.Context) ([]*model.Module, error)
	DeleteModule(ctx context.Context, id int) error

	GetJob(ctx context.Context, id int) (*model.Job, error)
	PutJob(ctx context.Context, j *model.Job) error
	ListJobs(ctx context.Context) ([]*model.Job, error)
	ListJobsInStates(ctx context.Context, states ...string) ([]*model.Job, error)
	DeleteJob(ctx context.Context, id int) error

	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
