package jobqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"stemd/internal/config"
	"stemd/internal/logging"
	"stemd/internal/services"
)

// Runner executes the work behind one claimed queue entry. The runtime
// finishes the entry afterwards whether or not the runner failed; retry
// policy lives with the caller, not the queue.
type Runner func(ctx context.Context, entry *Entry) error

// Runtime dispatches claimed entries onto a fixed worker pool.
type Runtime struct {
	cfg    *config.Config
	store  *Store
	logger *slog.Logger
	runner Runner

	dispatchInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	activeWorkers atomic.Int64
	dispatching   atomic.Bool
}

// NewRuntime constructs a queue runtime with the given runner.
func NewRuntime(cfg *config.Config, store *Store, logger *slog.Logger, runner Runner) *Runtime {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runtime{
		cfg:              cfg,
		store:            store,
		logger:           logger.With(logging.String(logging.FieldComponent, "jobqueue")),
		runner:           runner,
		dispatchInterval: time.Duration(cfg.Workflow.DispatchIntervalSeconds) * time.Second,
	}
}

// Start launches the dispatcher and worker pool. It returns immediately;
// workers run until Stop is called or the context is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("runtime already started")
	}
	if r.runner == nil {
		return errors.New("runtime requires a runner")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	workers := r.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	work := make(chan *Entry)

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func(slot int) {
			defer r.wg.Done()
			r.workerLoop(runCtx, slot, work)
		}(i)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(work)
		r.dispatchLoop(runCtx, work)
	}()

	r.logger.Info("queue runtime started", logging.Int("workers", workers))
	return nil
}

// Stop halts dispatching and waits for in-flight work to drain.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.logger.Info("queue runtime stopped")
}

// Running reports whether the runtime has been started.
func (r *Runtime) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// ActiveWorkers returns how many workers are currently executing entries.
func (r *Runtime) ActiveWorkers() int {
	return int(r.activeWorkers.Load())
}

// Dispatching reports whether the dispatcher loop is live.
func (r *Runtime) Dispatching() bool {
	return r.dispatching.Load()
}

func (r *Runtime) dispatchLoop(ctx context.Context, work chan<- *Entry) {
	r.dispatching.Store(true)
	defer r.dispatching.Store(false)

	interval := r.dispatchInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// Drain everything ready before sleeping so a burst of uploads
		// doesn't wait one tick per entry.
		for {
			entry, err := r.store.Claim(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Error("claim failed", logging.Error(err))
				break
			}
			if entry == nil {
				break
			}
			select {
			case work <- entry:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runtime) workerLoop(ctx context.Context, slot int, work <-chan *Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-work:
			if !ok {
				return
			}
			r.execute(ctx, slot, entry)
		}
	}
}

func (r *Runtime) execute(ctx context.Context, slot int, entry *Entry) {
	r.activeWorkers.Add(1)
	defer r.activeWorkers.Add(-1)

	logger := r.logger.With(
		logging.Int("worker", slot),
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.Int64(logging.FieldTrackID, entry.TrackID),
	)
	logger.Info("processing queue entry")

	err := r.runner(ctx, entry)
	switch {
	case err == nil:
		logger.Info("queue entry processed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Shutdown mid-run. Leave the entry unfinished; the startup
		// claim purge and the sweeper recover it.
		logger.Info("queue entry interrupted")
		return
	case errors.Is(err, services.ErrNotFound):
		logger.Info("queue entry referenced vanished records")
	default:
		logger.Error("queue entry failed", logging.Error(err))
	}

	// The entry is otherwise always finished; failure state lives on the
	// job and track records, and retries arrive as fresh entries.
	finishCtx, cancelFinish := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFinish()
	if finishErr := r.store.Finish(finishCtx, entry.ID); finishErr != nil {
		logger.Error("finish queue entry failed", logging.Error(finishErr))
	}
}
