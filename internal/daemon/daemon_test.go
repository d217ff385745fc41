package daemon_test

import (
	"context"
	"testing"
	"time"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/daemon"
	"stemd/internal/jobqueue"
	"stemd/internal/sweeper"
	"stemd/internal/testsupport"
)

func newDaemon(t *testing.T) (*daemon.Daemon, *config.Config, *catalog.Store, *jobqueue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 1
	cfg.Workflow.SweepIntervalSeconds = 3600

	catalogStore := testsupport.MustOpenCatalog(t, cfg)
	queueStore := testsupport.MustOpenQueue(t, cfg)
	runtime := jobqueue.NewRuntime(cfg, queueStore, nil, func(context.Context, *jobqueue.Entry) error {
		return nil
	})
	sweep := sweeper.New(catalogStore, queueStore, 0, 7*24*time.Hour, nil)

	d, err := daemon.New(cfg, catalogStore, queueStore, runtime, sweep, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, cfg, catalogStore, queueStore
}

func TestDaemonStartStop(t *testing.T) {
	d, _, _, _ := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running")
	}

	health, err := d.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !health.Running {
		t.Fatal("expected health snapshot to report running")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonStartRecoversState(t *testing.T) {
	d, _, catalogStore, queueStore := newDaemon(t)
	ctx := context.Background()

	track := testsupport.NewTrack(t, catalogStore, "Interrupted")
	if _, err := catalogStore.MarkTrackProcessing(ctx, track.ID); err != nil {
		t.Fatalf("MarkTrackProcessing: %v", err)
	}
	job, err := catalogStore.CreateJob(ctx, track.ID, "demucs")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := catalogStore.MarkJobRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkJobRunning: %v", err)
	}

	entry, err := queueStore.Enqueue(ctx, track.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := queueStore.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	depths, err := queueStore.QueueDepths(ctx, 0)
	if err != nil {
		t.Fatalf("QueueDepths: %v", err)
	}
	if depths.Claimed != 0 {
		t.Fatalf("expected stale claims purged, got %d", depths.Claimed)
	}

	got, err := catalogStore.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != catalog.JobFailed {
		t.Fatalf("expected interrupted job to fail, got %s", got.Status)
	}
	refreshed, err := catalogStore.GetTrack(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetTrack: %v", err)
	}
	if refreshed.Status != catalog.TrackProcessing {
		t.Fatalf("expected interrupted track to stay processing for the sweeper, got %s", refreshed.Status)
	}

	refreshedEntry, err := queueStore.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if refreshedEntry == nil || refreshedEntry.Finished() {
		t.Fatal("expected orphaned entry to remain unfinished for the sweeper")
	}
}

func TestDaemonSecondInstanceRejected(t *testing.T) {
	d, cfg, catalogStore, queueStore := newDaemon(t)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	runtime := jobqueue.NewRuntime(cfg, queueStore, nil, func(context.Context, *jobqueue.Entry) error {
		return nil
	})
	sweep := sweeper.New(catalogStore, queueStore, 0, 7*24*time.Hour, nil)
	other, err := daemon.New(cfg, catalogStore, queueStore, runtime, sweep, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(ctx); err == nil {
		other.Stop()
		t.Fatal("expected second instance to be rejected by the lock")
	}
}
