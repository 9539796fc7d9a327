package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const jobColumns = `id, name, path, schedule, enabled, last_run, next_run,
	last_success, failure_count, options, created_at`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var (
		j                             Job
		lastRun, nextRun, lastSuccess sql.NullTime
		options                       string
	)
	err := row.Scan(&j.ID, &j.Name, &j.Path, &j.Schedule, &j.Enabled,
		&lastRun, &nextRun, &lastSuccess, &j.FailureCount, &options, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	if lastRun.Valid {
		t := lastRun.Time
		j.LastRun = &t
	}
	if nextRun.Valid {
		t := nextRun.Time
		j.NextRun = &t
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time
		j.LastSuccess = &t
	}
	if options != "" {
		if err := json.Unmarshal([]byte(options), &j.Options); err != nil {
			return nil, fmt.Errorf("failed to decode job options: %w", err)
		}
	}
	return &j, nil
}

// CreateJob registers a new recurring indexing job. Job names are unique.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	options, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal job options: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO indexing_jobs (name, path, schedule, enabled, next_run, options, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		job.Name, job.Path, job.Schedule, job.Enabled, nullableTime(job.NextRun),
		string(options), time.Now().UTC(),
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.Name, err)
	}
	return nil
}

// GetJob returns the job with the given name, or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, name string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM indexing_jobs WHERE name = ?", name)
	return scanJob(row)
}

// ListJobs returns all registered jobs ordered by name.
func (s *Store) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM indexing_jobs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

// DueJobs returns enabled jobs whose next-run time has passed.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+` FROM indexing_jobs
		WHERE enabled = 1 AND (next_run IS NULL OR next_run <= ?)
		ORDER BY name`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

// DeleteJob deregisters a job by name.
func (s *Store) DeleteJob(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM indexing_jobs WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetJobEnabled flips a job's enabled flag.
func (s *Store) SetJobEnabled(ctx context.Context, name string, enabled bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE indexing_jobs SET enabled = ? WHERE name = ?", enabled, name)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordJobRun updates a job's run bookkeeping after an execution attempt:
// last-run and recomputed next-run always, last-success and a reset failure
// counter on success, an incremented counter otherwise. Returns the new
// consecutive-failure count so the caller can apply its auto-disable policy.
func (s *Store) RecordJobRun(ctx context.Context, name string, lastRun, nextRun time.Time, success bool) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		query string
		count int
	)
	if success {
		query = `UPDATE indexing_jobs
			SET last_run = ?, next_run = ?, last_success = ?, failure_count = 0
			WHERE name = ? RETURNING failure_count`
		err := s.db.QueryRowContext(ctx, query, lastRun.UTC(), nextRun.UTC(), lastRun.UTC(), name).Scan(&count)
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("failed to record job run: %w", err)
		}
		return count, nil
	}

	query = `UPDATE indexing_jobs
		SET last_run = ?, next_run = ?, failure_count = failure_count + 1
		WHERE name = ? RETURNING failure_count`
	err := s.db.QueryRowContext(ctx, query, lastRun.UTC(), nextRun.UTC(), name).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record job run: %w", err)
	}
	return count, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
