// Package sweeper reconciles the durable queue with the catalog. It removes
// orphaned queue entries and resubmits work for tracks that still need it.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stemd/internal/catalog"
	"stemd/internal/jobqueue"
	"stemd/internal/logging"
)

// Report summarizes one sweep pass.
type Report struct {
	Scanned     int
	Orphans     int
	Deleted     int
	Resubmitted int
	Errors      int
}

// Sweeper detects queue entries that lost their execution markers and
// repairs the drift. Both passes are idempotent; a second run right after
// the first finds nothing left to do.
type Sweeper struct {
	catalog *catalog.Store
	queue   *jobqueue.Store
	logger  *slog.Logger

	grace     time.Duration
	retention time.Duration
}

// New constructs a Sweeper with the given grace window and retention horizon.
func New(catalogStore *catalog.Store, queueStore *jobqueue.Store, grace, retention time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{
		catalog:   catalogStore,
		queue:     queueStore,
		logger:    logger.With(logging.String(logging.FieldComponent, "sweeper")),
		grace:     grace,
		retention: retention,
	}
}

// Sweep finds unfinished entries older than the grace window that no marker
// references, deletes them, and re-enqueues tracks that still need work.
// Per-orphan errors are counted, never fatal to the pass.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report

	cutoff := time.Now().Add(-s.grace)
	entries, err := s.queue.UnfinishedOlderThan(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("scan unfinished entries: %w", err)
	}
	report.Scanned = len(entries)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		logger := s.logger.With(
			logging.Int64(logging.FieldEntryID, entry.ID),
			logging.Int64(logging.FieldTrackID, entry.TrackID),
		)

		has, err := s.queue.HasExecution(ctx, entry.ID)
		if err != nil {
			logger.Error("marker lookup failed", logging.Error(err))
			report.Errors++
			continue
		}
		if has {
			// Still owned by a dispatcher or worker; normal latency.
			continue
		}
		report.Orphans++

		if err := s.queue.Remove(ctx, entry.ID); err != nil {
			logger.Error("orphan removal failed", logging.Error(err))
			report.Errors++
			continue
		}
		report.Deleted++
		logger.Info("orphaned queue entry removed")

		resubmitted, err := s.resubmit(ctx, logger, entry.TrackID)
		if err != nil {
			logger.Error("orphan resubmission failed", logging.Error(err))
			report.Errors++
			continue
		}
		if resubmitted {
			report.Resubmitted++
		}
	}

	if report.Orphans > 0 {
		s.logger.Info("sweep completed",
			logging.Int("scanned", report.Scanned),
			logging.Int("orphans", report.Orphans),
			logging.Int("deleted", report.Deleted),
			logging.Int("resubmitted", report.Resubmitted),
			logging.Int("errors", report.Errors),
		)
	}
	return report, nil
}

// resubmit enqueues a fresh entry when the track still exists, is not in a
// terminal state, and the exclusivity guard reports no active job.
func (s *Sweeper) resubmit(ctx context.Context, logger *slog.Logger, trackID int64) (bool, error) {
	track, err := s.catalog.GetTrack(ctx, trackID)
	if err != nil {
		return false, fmt.Errorf("resolve track: %w", err)
	}
	if track == nil {
		return false, nil
	}
	if track.Status != catalog.TrackUploaded && track.Status != catalog.TrackProcessing {
		return false, nil
	}

	active, err := s.catalog.HasActiveJob(ctx, trackID)
	if err != nil {
		return false, fmt.Errorf("consult exclusivity guard: %w", err)
	}
	if active {
		// Another path is already handling this track.
		return false, nil
	}

	if _, err := s.queue.Enqueue(ctx, trackID); err != nil {
		return false, fmt.Errorf("re-enqueue track: %w", err)
	}
	logger.Info("track resubmitted after orphan recovery")
	return true, nil
}

// Retention deletes finished entries older than the horizon. No resubmission
// ever happens here.
func (s *Sweeper) Retention(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	deleted, err := s.queue.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention pass: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("retention pass completed", logging.Int64("deleted", deleted))
	}
	return deleted, nil
}
