package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"stemd/internal/config"
)

// Entry is one durable unit of separation work referencing a track.
type Entry struct {
	ID          int64
	TrackID     int64
	ScheduledAt time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Finished reports whether the entry has been marked done.
func (e *Entry) Finished() bool {
	return e != nil && e.FinishedAt != nil
}

// Marker names one of the execution-marker tables.
type Marker string

const (
	MarkerReady     Marker = "ready"
	MarkerClaimed   Marker = "claimed"
	MarkerScheduled Marker = "scheduled"
)

var markerTables = map[Marker]string{
	MarkerReady:     "ready_executions",
	MarkerClaimed:   "claimed_executions",
	MarkerScheduled: "scheduled_executions",
}

// Depths summarizes queue health: per-marker counts plus a count of entries
// that currently look orphaned.
type Depths struct {
	Ready            int
	Claimed          int
	Scheduled        int
	Unfinished       int
	PotentialOrphans int
}

// Store manages the durable work queue backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "queue.db"))
}

// OpenPath opens a queue database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	// Pragmas ride the DSN so every pooled connection gets them; applying
	// them with db.Exec would configure only one connection in the pool.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the queue database location.
func (s *Store) Path() string {
	return s.path
}

// Enqueue inserts a new entry and its ready marker in one transaction. The
// entry is immediately claimable.
func (s *Store) Enqueue(ctx context.Context, trackID int64) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := timestamp(time.Now())
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO queue_entries (track_id, scheduled_at, created_at, updated_at)
         VALUES (?, ?, ?, ?)`,
		trackID, now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue entry: %w", err)
	}
	entryID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO ready_executions (entry_id, created_at) VALUES (?, ?)`,
		entryID, now,
	); err != nil {
		return nil, fmt.Errorf("insert ready marker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}
	return s.GetEntry(ctx, entryID)
}

// Claim atomically moves the oldest ready entry to claimed and returns it.
// Returns nil when nothing is ready.
func (s *Store) Claim(ctx context.Context) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var entryID int64
	err = tx.QueryRowContext(
		ctx,
		`SELECT entry_id FROM ready_executions ORDER BY id LIMIT 1`,
	).Scan(&entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select ready marker: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ready_executions WHERE entry_id = ?`, entryID); err != nil {
		return nil, fmt.Errorf("delete ready marker: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO claimed_executions (entry_id, created_at) VALUES (?, ?)`,
		entryID, timestamp(time.Now()),
	); err != nil {
		return nil, fmt.Errorf("insert claimed marker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return s.GetEntry(ctx, entryID)
}

// Finish marks an entry done and removes every execution marker for it.
func (s *Store) Finish(ctx context.Context, entryID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := timestamp(time.Now())
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE queue_entries SET finished_at = ?, updated_at = ? WHERE id = ? AND finished_at IS NULL`,
		now, now, entryID,
	); err != nil {
		return fmt.Errorf("finish queue entry: %w", err)
	}
	for _, table := range markerTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE entry_id = ?`, entryID); err != nil {
			return fmt.Errorf("delete %s marker: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish: %w", err)
	}
	return nil
}

// GetEntry fetches an entry by identifier. Returns nil when no row matches.
func (s *Store) GetEntry(ctx context.Context, entryID int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, entryID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

// UnfinishedOlderThan returns unfinished entries scheduled before the cutoff,
// oldest first. The sweeper is the sole consumer.
func (s *Store) UnfinishedOlderThan(ctx context.Context, cutoff time.Time) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM queue_entries
         WHERE finished_at IS NULL AND scheduled_at < ?
         ORDER BY scheduled_at`,
		timestamp(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("unfinished entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// HasExecution reports whether any marker table still references the entry.
// An unfinished old entry with no marker is orphaned.
func (s *Store) HasExecution(ctx context.Context, entryID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT
            (SELECT COUNT(1) FROM ready_executions WHERE entry_id = ?) +
            (SELECT COUNT(1) FROM claimed_executions WHERE entry_id = ?) +
            (SELECT COUNT(1) FROM scheduled_executions WHERE entry_id = ?)`,
		entryID, entryID, entryID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count markers: %w", err)
	}
	return count > 0, nil
}

// Remove deletes an entry and its markers outright.
func (s *Store) Remove(ctx context.Context, entryID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range markerTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE entry_id = ?`, entryID); err != nil {
			return fmt.Errorf("delete %s marker: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ?`, entryID); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %w", err)
	}
	return nil
}

// PurgeClaimed drops every claimed marker. Run at daemon startup: claims held
// by a previous process are dead, and the entries behind them become visible
// to the sweeper as orphans.
func (s *Store) PurgeClaimed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM claimed_executions`)
	if err != nil {
		return 0, fmt.Errorf("purge claimed markers: %w", err)
	}
	return res.RowsAffected()
}

// DeleteFinishedBefore removes finished entries older than the cutoff and
// returns how many rows were deleted.
func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM queue_entries WHERE finished_at IS NOT NULL AND finished_at < ?`,
		timestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("delete finished entries: %w", err)
	}
	return res.RowsAffected()
}

// QueueDepths returns per-marker counts and a potential-orphan count for the
// given grace window.
func (s *Store) QueueDepths(ctx context.Context, grace time.Duration) (Depths, error) {
	var depths Depths

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(1) FROM ready_executions`, &depths.Ready},
		{`SELECT COUNT(1) FROM claimed_executions`, &depths.Claimed},
		{`SELECT COUNT(1) FROM scheduled_executions`, &depths.Scheduled},
		{`SELECT COUNT(1) FROM queue_entries WHERE finished_at IS NULL`, &depths.Unfinished},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Depths{}, fmt.Errorf("queue depth: %w", err)
		}
	}

	cutoff := timestamp(time.Now().Add(-grace))
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM queue_entries e
         WHERE e.finished_at IS NULL AND e.scheduled_at < ?
           AND NOT EXISTS (SELECT 1 FROM ready_executions r WHERE r.entry_id = e.id)
           AND NOT EXISTS (SELECT 1 FROM claimed_executions c WHERE c.entry_id = e.id)
           AND NOT EXISTS (SELECT 1 FROM scheduled_executions sc WHERE sc.entry_id = e.id)`,
		cutoff,
	).Scan(&depths.PotentialOrphans)
	if err != nil {
		return Depths{}, fmt.Errorf("potential orphans: %w", err)
	}

	return depths, nil
}

const entryColumns = "id, track_id, scheduled_at, finished_at, created_at, updated_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry        Entry
		scheduledRaw string
		finishedRaw  sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.TrackID,
		&scheduledRaw,
		&finishedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	if scheduled, err := parseTimeString(scheduledRaw); err == nil {
		entry.ScheduledAt = scheduled
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			entry.FinishedAt = &finished
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	return &entry, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// timeLayout pads nanoseconds to fixed width so stored timestamps compare
// correctly as strings in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
