package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/onramp-hpc/pce/internal/model"

	_ "modernc.org/sqlite"
)

const createModulesTable = `
CREATE TABLE IF NOT EXISTS modules (
    id             INTEGER PRIMARY KEY,
    name           TEXT NOT NULL,
    source_kind    TEXT NOT NULL,
    source_path    TEXT NOT NULL,
    state          TEXT NOT NULL,
    installed_path TEXT NOT NULL DEFAULT '',
    error          TEXT NOT NULL DEFAULT '',
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL,
    extra          TEXT NOT NULL DEFAULT '{}'
)`

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id                INTEGER PRIMARY KEY,
    module_id         INTEGER NOT NULL,
    username          TEXT NOT NULL,
    run_name          TEXT NOT NULL,
    state             TEXT NOT NULL,
    scheduler_job_num INTEGER,
    status_text       TEXT NOT NULL DEFAULT '',
    run_dir           TEXT NOT NULL DEFAULT '',
    error             TEXT NOT NULL DEFAULT '',
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL,
    extra             TEXT NOT NULL DEFAULT '{}'
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createModulesTable, createJobsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create table: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutModule inserts or replaces the record for m.ID.
func (s *SQLiteStore) PutModule(ctx context.Context, m *model.Module) error {
	extra, err := marshalExtra(m.Extra)
	if err != nil {
		return fmt.Errorf("encode module extra: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO modules (
			id, name, source_kind, source_path, state, installed_path,
			error, created_at, updated_at, extra
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source_kind = excluded.source_kind,
			source_path = excluded.source_path,
			state = excluded.state,
			installed_path = excluded.installed_path,
			error = excluded.error,
			updated_at = excluded.updated_at,
			extra = excluded.extra`,
		m.ID, m.Name, m.Source.Kind, m.Source.Path, m.State, m.InstalledPath,
		m.Error, m.CreatedAt, m.UpdatedAt, extra,
	)
	if err != nil {
		return fmt.Errorf("put module: %w", err)
	}
	return nil
}

// GetModule retrieves a module record by id.
func (s *SQLiteStore) GetModule(ctx context.Context, id int) (*model.Module, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_kind, source_path, state, installed_path,
			error, created_at, updated_at, extra
		FROM modules WHERE id = ?`, id,
	)
	m, err := scanModule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get module: %w", err)
	}
	return m, nil
}

// ListModules returns all module records ordered by id.
func (s *SQLiteStore) ListModules(ctx context.Context) ([]*model.Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, source_kind, source_path, state, installed_path,
			error, created_at, updated_at, extra
		FROM modules ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var modules []*model.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return modules, nil
}

// DeleteModule removes the module record for id. Returns ErrNotFound when no
// record exists.
func (s *SQLiteStore) DeleteModule(ctx context.Context, id int) error {
	return s.deleteByID(ctx, "modules", id)
}

// DeleteJob removes the job record for id. Returns ErrNotFound when no record
// exists.
func (s *SQLiteStore) DeleteJob(ctx context.Context, id int) error {
	return s.deleteByID(ctx, "jobs", id)
}

func (s *SQLiteStore) deleteByID(ctx context.Context, table string, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PutJob inserts or replaces the record for j.ID.
func (s *SQLiteStore) PutJob(ctx context.Context, j *model.Job) error {
	extra, err := marshalExtra(j.Extra)
	if err != nil {
		return fmt.Errorf("encode job extra: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (
			id, module_id, username, run_name, state, scheduler_job_num,
			status_text, run_dir, error, created_at, updated_at, extra
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			module_id = excluded.module_id,
			username = excluded.username,
			run_name = excluded.run_name,
			state = excluded.state,
			scheduler_job_num = excluded.scheduler_job_num,
			status_text = excluded.status_text,
			run_dir = excluded.run_dir,
			error = excluded.error,
			updated_at = excluded.updated_at,
			extra = excluded.extra`,
		j.ID, j.ModuleID, j.Username, j.RunName, j.State, j.SchedulerJobNum,
		j.StatusText, j.RunDir, j.Error, j.CreatedAt, j.UpdatedAt, extra,
	)
	if err != nil {
		return fmt.Errorf("put job: %w", err)
	}
	return nil
}

// GetJob retrieves a job record by id.
func (s *SQLiteStore) GetJob(ctx context.Context, id int) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, module_id, username, run_name, state, scheduler_job_num,
			status_text, run_dir, error, created_at, updated_at, extra
		FROM jobs WHERE id = ?`, id,
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobs returns all job records ordered by id.
func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*model.Job, error) {
	return s.queryJobs(ctx,
		`SELECT id, module_id, username, run_name, state, scheduler_job_num,
			status_text, run_dir, error, created_at, updated_at, extra
		FROM jobs ORDER BY id`,
	)
}

// ListJobsInStates returns job records whose state is one of the given
// states, ordered by id. An empty state list returns no records.
func (s *SQLiteStore) ListJobsInStates(ctx context.Context, states ...string) ([]*model.Job, error) {
	if len(states) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(states))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(states))
	for i, st := range states {
		args[i] = st
	}

	return s.queryJobs(ctx,
		`SELECT id, module_id, username, run_name, state, scheduler_job_num,
			status_text, run_dir, error, created_at, updated_at, extra
		FROM jobs WHERE state IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
}

// GetStats returns record counts grouped by state for both entity kinds.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ModulesByState: make(map[string]int),
		JobsByState:    make(map[string]int),
	}

	if err := s.countByState(ctx, "modules", stats.ModulesByState); err != nil {
		return nil, err
	}
	if err := s.countByState(ctx, "jobs", stats.JobsByState); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *SQLiteStore) countByState(ctx context.Context, table string, dest map[string]int) error {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM "+table+" GROUP BY state")
	if err != nil {
		return fmt.Errorf("count %s by state: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return fmt.Errorf("scan %s count: %w", table, err)
		}
		dest[state] = count
	}
	return rows.Err()
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanModule(sc scanner) (*model.Module, error) {
	m := &model.Module{}
	var extra string
	err := sc.Scan(
		&m.ID, &m.Name, &m.Source.Kind, &m.Source.Path, &m.State,
		&m.InstalledPath, &m.Error, &m.CreatedAt, &m.UpdatedAt, &extra,
	)
	if err != nil {
		return nil, err
	}
	if m.Extra, err = unmarshalExtra(extra); err != nil {
		return nil, fmt.Errorf("decode module extra: %w", err)
	}
	return m, nil
}

func scanJob(sc scanner) (*model.Job, error) {
	j := &model.Job{}
	var extra string
	err := sc.Scan(
		&j.ID, &j.ModuleID, &j.Username, &j.RunName, &j.State,
		&j.SchedulerJobNum, &j.StatusText, &j.RunDir, &j.Error,
		&j.CreatedAt, &j.UpdatedAt, &extra,
	)
	if err != nil {
		return nil, err
	}
	if j.Extra, err = unmarshalExtra(extra); err != nil {
		return nil, fmt.Errorf("decode job extra: %w", err)
	}
	return j, nil
}

func marshalExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalExtra(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var extra map[string]any
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return nil, err
	}
	return extra, nil
}
