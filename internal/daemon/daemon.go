// Package daemon wires the long-running pieces together: the queue runtime,
// the reconciliation sweeper's timer, and the single-instance lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/jobqueue"
	"stemd/internal/logging"
	"stemd/internal/sweeper"
)

// Daemon coordinates background processing and enforces single-instance
// execution via a file lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *catalog.Store
	queue   *jobqueue.Store
	runtime *jobqueue.Runtime
	sweeper *sweeper.Sweeper

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, catalogStore *catalog.Store, queueStore *jobqueue.Store, runtime *jobqueue.Runtime, sweep *sweeper.Sweeper, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || catalogStore == nil || queueStore == nil || runtime == nil || sweep == nil {
		return nil, errors.New("daemon requires config, stores, runtime, and sweeper")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "stemd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		catalog:  catalogStore,
		queue:    queueStore,
		runtime:  runtime,
		sweeper:  sweep,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, recovers state left by a previous
// process, and launches the runtime and sweep timer.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stemd daemon instance is already running")
	}

	// Recovery: claims held by a dead process are purged so the sweeper
	// sees their entries as orphans, and jobs stuck in running are failed
	// so the exclusivity guard does not block the resubmitted run. Tracks
	// stay in processing; the sweeper re-enqueues them.
	purged, err := d.queue.PurgeClaimed(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("purge stale claims: %w", err)
	}
	jobs, err := d.catalog.ResetStuckProcessing(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset stuck jobs: %w", err)
	}
	if purged > 0 || jobs > 0 {
		d.logger.Info("recovered state from previous instance",
			logging.Int64("purged_claims", purged),
			logging.Int64("failed_jobs", jobs),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.runtime.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start queue runtime: %w", err)
	}
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sweepLoop(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("stemd daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.runtime.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("stemd daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var firstErr error
	if err := d.queue.Close(); err != nil {
		firstErr = err
	}
	if err := d.catalog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Health is a point-in-time snapshot of daemon and queue state.
type Health struct {
	Running       bool
	ActiveWorkers int
	Dispatching   bool
	Depths        jobqueue.Depths
	Catalog       catalog.DatabaseHealth
	LockPath      string
}

// Health reports worker activity, queue depths, and catalog diagnostics.
func (d *Daemon) Health(ctx context.Context) (Health, error) {
	grace := time.Duration(d.cfg.Workflow.OrphanGraceMinutes) * time.Minute
	depths, err := d.queue.QueueDepths(ctx, grace)
	if err != nil {
		return Health{}, fmt.Errorf("queue depths: %w", err)
	}
	dbHealth, err := d.catalog.CheckHealth(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("catalog health: %w", err)
	}
	return Health{
		Running:       d.running.Load(),
		ActiveWorkers: d.runtime.ActiveWorkers(),
		Dispatching:   d.runtime.Dispatching(),
		Depths:        depths,
		Catalog:       dbHealth,
		LockPath:      d.lockPath,
	}, nil
}

func (d *Daemon) sweepLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Workflow.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := d.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("sweep failed", logging.Error(err))
		}
		if _, err := d.sweeper.Retention(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("retention pass failed", logging.Error(err))
		}
	}
}
