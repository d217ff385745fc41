// Package workflow owns the lifecycle of one separation job: record
// transitions, subprocess invocation, and reconciliation of the track record
// with the outcome.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/jobqueue"
	"stemd/internal/logging"
	"stemd/internal/notifications"
	"stemd/internal/separator"
	"stemd/internal/services"
)

// Driver abstracts the subprocess driver so tests can fake outcomes.
type Driver interface {
	Run(ctx context.Context, track *catalog.Track, job *catalog.Job) (separator.Outcome, error)
}

// Orchestrator runs one separation job end to end for one track.
type Orchestrator struct {
	cfg      *config.Config
	store    *catalog.Store
	driver   Driver
	notifier notifications.Service
	logger   *slog.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(cfg *config.Config, store *catalog.Store, driver Driver, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		driver:   driver,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "workflow")),
	}
}

// Runner adapts the orchestrator to the queue runtime.
func (o *Orchestrator) Runner() jobqueue.Runner {
	return func(ctx context.Context, entry *jobqueue.Entry) error {
		return o.Run(ctx, entry.TrackID)
	}
}

// Run executes one separation attempt for a track. A vanished track or a
// concurrent cancellation ends the run silently; a failed separation marks
// both records failed and returns the failure for the caller's bookkeeping.
func (o *Orchestrator) Run(ctx context.Context, trackID int64) error {
	correlationID := uuid.NewString()
	ctx = services.WithRequestID(ctx, correlationID)
	logger := o.logger.With(
		logging.Int64(logging.FieldTrackID, trackID),
		logging.String(logging.FieldCorrelationID, correlationID),
	)

	track, err := o.store.GetTrack(ctx, trackID)
	if err != nil {
		return fmt.Errorf("load track %d: %w", trackID, err)
	}
	if track == nil {
		// Deleted between enqueue and dispatch; an expected race.
		logger.Info("track vanished before run")
		return nil
	}

	job, err := o.store.CreateJob(ctx, track.ID, o.cfg.Separator.Engine)
	if err != nil {
		if vanished, checkErr := o.trackGone(ctx, trackID); checkErr == nil && vanished {
			logger.Info("track vanished during job creation")
			return nil
		}
		return fmt.Errorf("create job for track %d: %w", trackID, err)
	}
	logger = logger.With(logging.Int64(logging.FieldJobID, job.ID))
	ctx = services.WithJobID(services.WithTrackID(ctx, track.ID), job.ID)

	if _, err := o.store.MarkJobRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job %d running: %w", job.ID, err)
	}

	// The deletion hook cancels active jobs inside the delete transaction;
	// re-read so a concurrent removal stops the run before the subprocess
	// launches.
	current, err := o.store.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("reload job %d: %w", job.ID, err)
	}
	if current == nil || current.Status == catalog.JobCancelled {
		logger.Info("job cancelled before launch")
		return nil
	}
	job = current

	if _, err := o.store.MarkTrackProcessing(ctx, track.ID); err != nil {
		return fmt.Errorf("mark track %d processing: %w", track.ID, err)
	}
	logger.Info("separation started")
	if err := o.notifier.NotifySeparationStarted(ctx, track.Title); err != nil {
		logger.Warn("start notification failed", logging.Error(err))
	}

	outcome, err := o.driver.Run(ctx, track, job)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return o.handleFailure(ctx, logger, track, job, err.Error())
	}
	if !outcome.OK {
		return o.handleFailure(ctx, logger, track, job, outcome.ErrorMessage)
	}

	if _, err := o.store.MarkJobCompleted(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job %d completed: %w", job.ID, err)
	}
	if _, err := o.store.MarkTrackCompleted(ctx, track.ID); err != nil {
		return fmt.Errorf("mark track %d completed: %w", track.ID, err)
	}

	logger.Info("separation completed", logging.Int("stems", len(outcome.Stems)))
	if err := o.notifier.NotifySeparationCompleted(ctx, track.Title, len(outcome.Stems)); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
	return nil
}

// handleFailure marks both records failed. When the records vanished in the
// interim the failure is logged and swallowed; there is nothing left to
// report it against.
func (o *Orchestrator) handleFailure(ctx context.Context, logger *slog.Logger, track *catalog.Track, job *catalog.Job, message string) error {
	if message == "" {
		message = "separation failed"
	}
	logger.Error("separation failed", logging.String("reason", message))

	jobMoved, err := o.store.MarkJobFailed(ctx, job.ID, message)
	if err != nil {
		return fmt.Errorf("mark job %d failed: %w", job.ID, err)
	}
	trackMoved, err := o.store.MarkTrackFailed(ctx, track.ID, message)
	if err != nil {
		return fmt.Errorf("mark track %d failed: %w", track.ID, err)
	}
	if !jobMoved && !trackMoved {
		if vanished, checkErr := o.trackGone(ctx, track.ID); checkErr == nil && vanished {
			logger.Info("records vanished before failure could be recorded")
			return nil
		}
	}

	if err := o.notifier.NotifySeparationFailed(ctx, track.Title, message); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
	return services.Wrap(services.ErrExternalTool, "workflow", "separate", message, nil)
}

func (o *Orchestrator) trackGone(ctx context.Context, trackID int64) (bool, error) {
	track, err := o.store.GetTrack(ctx, trackID)
	if err != nil {
		return false, err
	}
	return track == nil, nil
}
