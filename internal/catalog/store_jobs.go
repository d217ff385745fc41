package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateJob inserts a new pending separation job for a track. The exclusivity
// guard belongs to the caller; the store itself only records rows.
func (s *Store) CreateJob(ctx context.Context, trackID int64, engine string) (*Job, error) {
	now := timestamp(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO separation_jobs (
            track_id, status, progress, engine, created_at, updated_at
        ) VALUES (?, ?, 0, ?, ?, ?)`,
		trackID, JobPending, engine, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. Returns nil when no row matches.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM separation_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobsForTrack returns every job recorded for a track, newest first.
func (s *Store) JobsForTrack(ctx context.Context, trackID int64) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM separation_jobs WHERE track_id = ? ORDER BY id DESC`,
		trackID,
	)
	if err != nil {
		return nil, fmt.Errorf("jobs for track: %w", err)
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

// ActiveJobForTrack returns the pending or running job for a track, if one
// exists. This is the exclusivity guard's source of truth: at most one such
// row exists per track because enqueue consults it before creating another.
func (s *Store) ActiveJobForTrack(ctx context.Context, trackID int64) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM separation_jobs
         WHERE track_id = ? AND status IN (?, ?) ORDER BY id DESC LIMIT 1`,
		trackID, JobPending, JobRunning,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job for track: %w", err)
	}
	return job, nil
}

// HasActiveJob reports whether a track has a pending or running job.
func (s *Store) HasActiveJob(ctx context.Context, trackID int64) (bool, error) {
	job, err := s.ActiveJobForTrack(ctx, trackID)
	if err != nil {
		return false, err
	}
	return job != nil, nil
}

// LatestJobForTrack returns the most recent job for a track regardless of status.
func (s *Store) LatestJobForTrack(ctx context.Context, trackID int64) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM separation_jobs WHERE track_id = ? ORDER BY id DESC LIMIT 1`,
		trackID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest job for track: %w", err)
	}
	return job, nil
}

// MarkJobRunning transitions a job pending -> running and stamps started_at.
func (s *Store) MarkJobRunning(ctx context.Context, id int64) (bool, error) {
	now := timestamp(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE separation_jobs SET status = ?, started_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobRunning, now, now, id, JobPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark job running: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// SetJobProgress updates a running job's progress, clamping to [0, 100].
// Progress reported against a job in any other state is dropped.
func (s *Store) SetJobProgress(ctx context.Context, id int64, progress float64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE separation_jobs SET progress = ?, updated_at = ? WHERE id = ? AND status = ?`,
		ClampProgress(progress), timestamp(time.Now()), id, JobRunning,
	)
	if err != nil {
		return false, fmt.Errorf("set job progress: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// MarkJobCompleted transitions a job running -> completed, forcing progress to
// 100 and clearing any stale error message.
func (s *Store) MarkJobCompleted(ctx context.Context, id int64) (bool, error) {
	now := timestamp(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE separation_jobs SET status = ?, progress = 100, error_message = NULL,
            completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobCompleted, now, now, id, JobRunning,
	)
	if err != nil {
		return false, fmt.Errorf("mark job completed: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// MarkJobFailed transitions a pending or running job to failed. Failed jobs
// always carry a non-empty message so operators never see a blank failure.
func (s *Store) MarkJobFailed(ctx context.Context, id int64, message string) (bool, error) {
	if strings.TrimSpace(message) == "" {
		message = "separation failed"
	}
	now := timestamp(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE separation_jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		JobFailed, message, now, now, id, JobPending, JobRunning,
	)
	if err != nil {
		return false, fmt.Errorf("mark job failed: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// CancelActiveJobsForTrack moves every pending or running job for a track to
// cancelled. Used when a track is withdrawn while work is still in flight.
func (s *Store) CancelActiveJobsForTrack(ctx context.Context, trackID int64) (int64, error) {
	now := timestamp(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE separation_jobs SET status = ?, completed_at = ?, updated_at = ?
         WHERE track_id = ? AND status IN (?, ?)`,
		JobCancelled, now, now, trackID, JobPending, JobRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel active jobs: %w", err)
	}
	return res.RowsAffected()
}

// JobStats returns a count of jobs grouped by status.
func (s *Store) JobStats(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM separation_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const jobColumns = "id, track_id, status, progress, error_message, engine, started_at, completed_at, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		trackID      int64
		statusStr    string
		progress     float64
		errorMessage sql.NullString
		engine       sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&trackID,
		&statusStr,
		&progress,
		&errorMessage,
		&engine,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		TrackID:      trackID,
		Status:       JobStatus(statusStr),
		Progress:     progress,
		ErrorMessage: errorMessage.String,
		Engine:       engine.String,
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
