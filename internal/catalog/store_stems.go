package catalog

import (
	"context"
	"fmt"
	"time"
)

// AttachStem records one separation output for a track. Re-attaching the same
// kind replaces the previous row, so re-running a separation never leaves a
// track pointing at stale files.
func (s *Store) AttachStem(ctx context.Context, trackID int64, kind, path string, sizeBytes int64) (*Stem, error) {
	if !IsRecognizedStemKind(kind) {
		return nil, fmt.Errorf("unrecognized stem kind %q", kind)
	}

	now := timestamp(time.Now())
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stem_attachments (track_id, kind, path, size_bytes, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(track_id, kind) DO UPDATE SET
            path = excluded.path,
            size_bytes = excluded.size_bytes,
            created_at = excluded.created_at`,
		trackID, kind, path, sizeBytes, now,
	); err != nil {
		return nil, fmt.Errorf("attach stem: %w", err)
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+stemColumns+` FROM stem_attachments WHERE track_id = ? AND kind = ?`,
		trackID, kind,
	)
	return scanStem(row)
}

// StemsForTrack returns every stem attached to a track, ordered by kind.
func (s *Store) StemsForTrack(ctx context.Context, trackID int64) ([]*Stem, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+stemColumns+` FROM stem_attachments WHERE track_id = ? ORDER BY kind`,
		trackID,
	)
	if err != nil {
		return nil, fmt.Errorf("stems for track: %w", err)
	}
	defer rows.Close()

	var stems []*Stem
	for rows.Next() {
		stem, err := scanStem(rows)
		if err != nil {
			return nil, err
		}
		stems = append(stems, stem)
	}
	return stems, rows.Err()
}

const stemColumns = "id, track_id, kind, path, size_bytes, created_at"

func scanStem(scanner interface{ Scan(dest ...any) error }) (*Stem, error) {
	var (
		stem       Stem
		createdRaw string
	)
	if err := scanner.Scan(&stem.ID, &stem.TrackID, &stem.Kind, &stem.Path, &stem.SizeBytes, &createdRaw); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		stem.CreatedAt = created
	}
	return &stem, nil
}
