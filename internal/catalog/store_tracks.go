package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NewTrackParams carries the validated attributes required to create a track.
type NewTrackParams struct {
	Title           string
	SourceFilename  string
	OriginalPath    string
	DurationSeconds float64
	SizeBytes       int64
}

// CreateTrack inserts a new track in the uploaded state. Ingest validation
// runs before this point; the store only re-checks the hard invariants.
func (s *Store) CreateTrack(ctx context.Context, params NewTrackParams) (*Track, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, errors.New("track title required")
	}
	if params.DurationSeconds <= 0 {
		return nil, errors.New("track duration must be positive")
	}
	if params.SizeBytes <= 0 {
		return nil, errors.New("track size must be positive")
	}

	now := timestamp(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tracks (
            title, source_filename, original_path, duration_seconds,
            size_bytes, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(params.Title),
		params.SourceFilename,
		params.OriginalPath,
		params.DurationSeconds,
		params.SizeBytes,
		TrackUploaded,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert track: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTrack(ctx, id)
}

// GetTrack fetches a track by identifier. Returns nil when no row matches.
func (s *Store) GetTrack(ctx context.Context, id int64) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// ListTracks returns tracks filtered by status set (or all tracks when no
// status is provided), ordered by creation time.
func (s *Store) ListTracks(ctx context.Context, statuses ...TrackStatus) ([]*Track, error) {
	baseQuery := `SELECT ` + trackColumns + ` FROM tracks`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// MarkTrackProcessing transitions a track uploaded -> processing. Tracks in
// any other state are left untouched; the caller treats that as a no-op.
func (s *Store) MarkTrackProcessing(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tracks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		TrackProcessing, timestamp(time.Now()), id, TrackUploaded,
	)
	if err != nil {
		return false, fmt.Errorf("mark track processing: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// MarkTrackCompleted transitions a track processing -> completed.
func (s *Store) MarkTrackCompleted(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tracks SET status = ?, error_message = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		TrackCompleted, timestamp(time.Now()), id, TrackProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark track completed: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// MarkTrackFailed transitions a track processing -> failed with the given message.
func (s *Store) MarkTrackFailed(ctx context.Context, id int64, message string) (bool, error) {
	if strings.TrimSpace(message) == "" {
		message = "separation failed"
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tracks SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		TrackFailed, message, timestamp(time.Now()), id, TrackProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark track failed: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// RetryTrack resets a failed track back to uploaded and clears its error.
// Only failed tracks are eligible; the explicit retry action is the single
// allowed path out of the failed state.
func (s *Store) RetryTrack(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tracks SET status = ?, error_message = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		TrackUploaded, timestamp(time.Now()), id, TrackFailed,
	)
	if err != nil {
		return false, fmt.Errorf("retry track: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// DeleteTrack removes a track and its jobs. Active jobs are cancelled first
// in the same transaction, so an in-flight orchestrator observing the job
// afterwards sees cancelled (or nothing), never a live row with a dead owner.
func (s *Store) DeleteTrack(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := timestamp(time.Now())
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE separation_jobs SET status = ?, completed_at = ?, updated_at = ?
         WHERE track_id = ? AND status IN (?, ?)`,
		JobCancelled, now, now, id, JobPending, JobRunning,
	); err != nil {
		return false, fmt.Errorf("cancel active jobs: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM separation_jobs WHERE track_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete jobs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stem_attachments WHERE track_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete stem attachments: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete track: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return affected > 0, nil
}

// TrackStats returns a count of tracks grouped by status.
func (s *Store) TrackStats(ctx context.Context) (map[TrackStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tracks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("track stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[TrackStatus]int)
	for rows.Next() {
		var status TrackStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const trackColumns = "id, title, source_filename, original_path, duration_seconds, size_bytes, status, error_message, created_at, updated_at"

func scanTrack(scanner interface{ Scan(dest ...any) error }) (*Track, error) {
	var (
		id           int64
		title        string
		sourceFile   string
		originalPath string
		duration     float64
		size         int64
		statusStr    string
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&title,
		&sourceFile,
		&originalPath,
		&duration,
		&size,
		&statusStr,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	track := &Track{
		ID:              id,
		Title:           title,
		SourceFilename:  sourceFile,
		OriginalPath:    originalPath,
		DurationSeconds: duration,
		SizeBytes:       size,
		Status:          TrackStatus(statusStr),
		ErrorMessage:    errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		track.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		track.UpdatedAt = updated
	}
	return track, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
