package jobqueue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stemd/internal/jobqueue"
	"stemd/internal/logging"
	"stemd/internal/testsupport"
)

func waitFor(t testing.TB, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRuntimeProcessesEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	cfg.Workflow.DispatchIntervalSeconds = 1
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	var (
		mu   sync.Mutex
		seen []int64
	)
	runtime := jobqueue.NewRuntime(cfg, store, logging.NewNop(), func(ctx context.Context, entry *jobqueue.Entry) error {
		mu.Lock()
		seen = append(seen, entry.TrackID)
		mu.Unlock()
		return nil
	})

	for trackID := int64(1); trackID <= 3; trackID++ {
		if _, err := store.Enqueue(ctx, trackID); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	if err := runtime.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runtime.Stop()

	waitFor(t, 5*time.Second, func() bool {
		depths, err := store.QueueDepths(ctx, time.Minute)
		if err != nil {
			t.Fatalf("QueueDepths failed: %v", err)
		}
		return depths.Unfinished == 0
	})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected 3 runner invocations, got %d", len(seen))
	}
}

func TestRuntimeFinishesFailedEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Workflow.DispatchIntervalSeconds = 1
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	entry, err := store.Enqueue(ctx, 11)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	runtime := jobqueue.NewRuntime(cfg, store, logging.NewNop(), func(ctx context.Context, e *jobqueue.Entry) error {
		return errors.New("separation blew up")
	})
	if err := runtime.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runtime.Stop()

	waitFor(t, 5*time.Second, func() bool {
		fetched, err := store.GetEntry(ctx, entry.ID)
		if err != nil {
			t.Fatalf("GetEntry failed: %v", err)
		}
		return fetched.Finished()
	})
}

func TestRuntimeStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenQueue(t, cfg)

	runtime := jobqueue.NewRuntime(cfg, store, logging.NewNop(), func(ctx context.Context, e *jobqueue.Entry) error {
		return nil
	})

	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !runtime.Running() {
		t.Fatal("runtime should report running")
	}
	if err := runtime.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}

	waitFor(t, 2*time.Second, runtime.Dispatching)

	runtime.Stop()
	if runtime.Running() {
		t.Fatal("runtime should report stopped")
	}
	runtime.Stop() // second stop is a no-op
}
