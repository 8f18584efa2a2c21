package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewJobParams describes a job to enqueue.
type NewJobParams struct {
	Kind        Kind
	SourceURL   string
	SourceKind  string
	SourcePath  string
	InputJSON   string
	OptionsJSON string

	// InitialStatus lets a caller create a job it will drive itself, outside
	// the pending queue. Empty means pending.
	InitialStatus Status
}

// NewJob inserts a job and returns the stored row.
func (s *Store) NewJob(ctx context.Context, params NewJobParams) (*Job, error) {
	if params.Kind == "" {
		params.Kind = KindVideo
	}
	status := params.InitialStatus
	if status == "" {
		status = StatusPending
	}
	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, kind, status, source_url, source_kind, source_path,
            input_json, options_json, progress_stage, progress_percent, progress_message,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		string(params.Kind),
		status,
		nullableString(params.SourceURL),
		nullableString(params.SourceKind),
		nullableString(params.SourcePath),
		nullableString(params.InputJSON),
		nullableString(params.OptionsJSON),
		nil,
		0.0,
		nil,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListRecent returns the most recently created jobs, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobsByStatus returns jobs matching a status ordered by creation time.
func (s *Store) JobsByStatus(ctx context.Context, status Status) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNextPending atomically moves the oldest pending job to processing and
// returns it. A nil job means the queue is empty.
func (s *Store) ClaimNextPending(ctx context.Context) (*Job, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ?
         WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY created_at, rowid LIMIT 1)
         RETURNING `+jobColumns,
		StatusProcessing,
		timestamp,
		StatusPending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending job: %w", err)
	}
	return job, nil
}

// UpdateProgress records a progress checkpoint. Updates against terminal jobs
// are dropped without error so late stage reports cannot resurrect them.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress Progress) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		nullableString(progress.Stage),
		progress.Percent,
		nullableString(progress.Message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// MarkCompleted records the job result and moves it to the completed state.
func (s *Store) MarkCompleted(ctx context.Context, id, resultJSON string) error {
	return s.finishJob(ctx, id, StatusCompleted, resultJSON, "")
}

// MarkFailed records the failure reason and moves the job to the failed state.
func (s *Store) MarkFailed(ctx context.Context, id, errorMessage string) error {
	return s.finishJob(ctx, id, StatusFailed, "", errorMessage)
}

func (s *Store) finishJob(ctx context.Context, id string, status Status, resultJSON, errorMessage string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, result_json = COALESCE(?, result_json), error_message = ?,
             progress_percent = CASE WHEN ? = 'completed' THEN 100 ELSE progress_percent END,
             completed_at = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		status,
		nullableString(resultJSON),
		nullableString(errorMessage),
		status,
		timestamp,
		timestamp,
		id,
		StatusCompleted,
		StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job rows: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %s is already %s", ErrTerminalState, id, existing.Status)
	}
	return nil
}

// MarkWebhookSent flags a job's completion callback as delivered.
func (s *Store) MarkWebhookSent(ctx context.Context, id string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET webhook_sent = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("mark webhook sent: %w", err)
	}
	return nil
}

// ListUnnotifiedTerminal returns finished jobs with a configured callback URL
// whose webhook was never delivered, oldest first. A crash between the
// terminal transition and delivery leaves exactly this state behind.
func (s *Store) ListUnnotifiedTerminal(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE status IN (?, ?) AND webhook_sent = 0
           AND options_json IS NOT NULL
           AND json_extract(options_json, '$.callbackUrl') IS NOT NULL
         ORDER BY created_at, rowid`,
		StatusCompleted,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("list unnotified jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// FailStuckProcessing fails jobs left in the processing state by a previous
// daemon run. Their work directories are gone, so they cannot be resumed.
func (s *Store) FailStuckProcessing(ctx context.Context, reason string) (int64, error) {
	if reason == "" {
		reason = DaemonStopReason
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE status = ?`,
		StatusFailed,
		reason,
		timestamp,
		timestamp,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("fail stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns aggregate job counts by lifecycle state.
func (s *Store) Stats(ctx context.Context) (StatsSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var summary StatsSummary
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return StatsSummary{}, err
		}
		summary.Total += count
		switch Status(statusStr) {
		case StatusPending:
			summary.Pending = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		}
	}
	return summary, rows.Err()
}
