package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/onramp-hpc/pce/internal/model"
)

// Locker wraps a Store with exclusive per-(kind,id) scoped access. Module and
// job ids occupy independent lock spaces: holding module 5 never blocks
// access to module 6 or to job 5. Acquisition has no timeout; a holder that
// never returns starves later callers for that one id.
type Locker struct {
	store Store

	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

type lockKey struct {
	kind string
	id   int
}

const (
	kindModule = "module"
	kindJob    = "job"
)

// NewLocker creates a Locker over the given store.
func NewLocker(s Store) *Locker {
	return &Locker{
		store: s,
		locks: make(map[lockKey]*sync.Mutex),
	}
}

// Store returns the underlying store for plain, lock-free reads.
func (l *Locker) Store() Store {
	return l.store
}

// WithModule runs fn with exclusive access to the module record for id. The
// record is loaded before fn runs (a fresh record with only the id set if
// none exists yet) and is persisted back when fn returns, whether or not fn
// failed, so partial state written by a failing body is never lost. The lock
// is released on every exit path. Returns fn's error, joined with any
// persistence error.
func (l *Locker) WithModule(ctx context.Context, id int, fn func(m *model.Module) error) error {
	lk := l.lock(lockKey{kindModule, id})
	lk.Lock()
	defer lk.Unlock()

	m, err := l.store.GetModule(ctx, id)
	if errors.Is(err, ErrNotFound) {
		m = &model.Module{ID: id, CreatedAt: time.Now().UTC()}
	} else if err != nil {
		return err
	}

	bodyErr := fn(m)

	// Stamped after fn so a body that blocks on external commands persists
	// the time the record actually changed.
	m.UpdatedAt = time.Now().UTC()
	if err := l.store.PutModule(ctx, m); err != nil {
		return errors.Join(bodyErr, err)
	}
	return bodyErr
}

// WithJob is WithModule for job records.
func (l *Locker) WithJob(ctx context.Context, id int, fn func(j *model.Job) error) error {
	lk := l.lock(lockKey{kindJob, id})
	lk.Lock()
	defer lk.Unlock()

	j, err := l.store.GetJob(ctx, id)
	if errors.Is(err, ErrNotFound) {
		j = &model.Job{ID: id, CreatedAt: time.Now().UTC()}
	} else if err != nil {
		return err
	}

	bodyErr := fn(j)

	j.UpdatedAt = time.Now().UTC()
	if err := l.store.PutJob(ctx, j); err != nil {
		return errors.Join(bodyErr, err)
	}
	return bodyErr
}

// lock returns the mutex for key, creating it on first use. Mutexes are never
// removed; the map is bounded by the number of distinct entity ids seen.
func (l *Locker) lock(key lockKey) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[key] = lk
	}
	return lk
}
