package sweeper_test

import (
	"context"
	"testing"
	"time"

	"stemd/internal/catalog"
	"stemd/internal/jobqueue"
	"stemd/internal/logging"
	"stemd/internal/sweeper"
	"stemd/internal/testsupport"
)

func newSweeper(t *testing.T) (*sweeper.Sweeper, *catalog.Store, *jobqueue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	catalogStore := testsupport.MustOpenCatalog(t, cfg)
	queueStore := testsupport.MustOpenQueue(t, cfg)
	// zero grace so freshly orphaned entries are immediately visible
	s := sweeper.New(catalogStore, queueStore, 0, 7*24*time.Hour, logging.NewNop())
	return s, catalogStore, queueStore
}

// orphan strips an entry of its markers the way a crashed worker would:
// claim it, then purge the claim.
func orphan(t *testing.T, store *jobqueue.Store, ctx context.Context) {
	t.Helper()
	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if _, err := store.PurgeClaimed(ctx); err != nil {
		t.Fatalf("PurgeClaimed failed: %v", err)
	}
}

func TestSweepResubmitsOrphanForLiveTrack(t *testing.T) {
	s, catalogStore, queueStore := newSweeper(t)

	ctx := context.Background()
	track := testsupport.NewTrack(t, catalogStore, "orphaned")
	entry, err := queueStore.Enqueue(ctx, track.ID)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	orphan(t, queueStore, ctx)

	report, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Orphans != 1 || report.Deleted != 1 || report.Resubmitted != 1 || report.Errors != 0 {
		t.Fatalf("unexpected report: %#v", report)
	}

	// old entry removed, fresh one enqueued
	removed, err := queueStore.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if removed != nil {
		t.Fatalf("expected orphan removed, got %#v", removed)
	}
	depths, err := queueStore.QueueDepths(ctx, time.Minute)
	if err != nil {
		t.Fatalf("QueueDepths failed: %v", err)
	}
	if depths.Ready != 1 {
		t.Fatalf("expected one resubmitted ready entry, got %#v", depths)
	}
}

func TestSweepResubmitsInterruptedRun(t *testing.T) {
	s, catalogStore, queueStore := newSweeper(t)

	// A daemon died mid-separation: the track is processing, a job is
	// running, and the worker's claim is still in the queue.
	ctx := context.Background()
	track := testsupport.NewTrack(t, catalogStore, "interrupted")
	if _, err := catalogStore.MarkTrackProcessing(ctx, track.ID); err != nil {
		t.Fatalf("MarkTrackProcessing failed: %v", err)
	}
	job, err := catalogStore.CreateJob(ctx, track.ID, "demucs")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := catalogStore.MarkJobRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkJobRunning failed: %v", err)
	}
	if _, err := queueStore.Enqueue(ctx, track.ID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	orphan(t, queueStore, ctx)

	// Startup recovery fails the dead job but leaves the track alone.
	if _, err := catalogStore.ResetStuckProcessing(ctx); err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}

	report, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Orphans != 1 || report.Deleted != 1 || report.Resubmitted != 1 {
		t.Fatalf("interrupted run must be resubmitted: %#v", report)
	}

	refreshed, err := catalogStore.GetTrack(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetTrack failed: %v", err)
	}
	if refreshed.Status != catalog.TrackProcessing {
		t.Fatalf("track must stay processing for the resubmitted run, got %s", refreshed.Status)
	}
	depths, err := queueStore.QueueDepths(ctx, time.Minute)
	if err != nil {
		t.Fatalf("QueueDepths failed: %v", err)
	}
	if depths.Ready != 1 {
		t.Fatalf("expected a fresh ready entry, got %#v", depths)
	}
}

func TestSweepSkipsEntriesWithMarkers(t *testing.T) {
	s, catalogStore, queueStore := newSweeper(t)

	ctx := context.Background()
	track := testsupport.NewTrack(t, catalogStore, "still-ready")
	if _, err := queueStore.Enqueue(ctx, track.ID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	report, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Scanned != 1 || report.Orphans != 0 || report.Deleted != 0 {
		t.Fatalf("ready entry must not be treated as orphan: %#v", report)
	}
}

func TestSweepDropsOrphanForVanishedTrack(t *testing.T) {
	s, _, queueStore := newSweeper(t)

	ctx := context.Background()
	if _, err := queueStore.Enqueue(ctx, 12345); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	orphan(t, queueStore, ctx)

	report, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Deleted != 1 || report.Resubmitted != 0 {
		t.Fatalf("vanished track should be dropped without resubmission: %#v", report)
	}
}

func TestSweepSkipsResubmissionWhenJobActive(t *testing.T) {
	s, catalogStore, queueStore := newSweeper(t)

	ctx := context.Background()
	track := testsupport.NewTrack(t, catalogStore, "already-working")
	if _, err := catalogStore.CreateJob(ctx, track.ID, "demucs"); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := queueStore.Enqueue(ctx, track.ID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	orphan(t, queueStore, ctx)

	report, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Deleted != 1 || report.Resubmitted != 0 {
		t.Fatalf("active job should suppress resubmission: %#v", report)
	}
}

func TestSweepSkipsTerminalTracks(t *testing.T) {
	s, catalogStore, queueStore := newSweeper(t)

	ctx := context.Background()
	track := testsupport.NewTrack(t, catalogStore, "already-done")
	if _, err := catalogStore.MarkTrackProcessing(ctx, track.ID); err != nil {
		t.Fatalf("MarkTrackProcessing failed: %v", err)
	}
	if _, err := catalogStore.MarkTrackCompleted(ctx, track.ID); err != nil {
		t.Fatalf("MarkTrackCompleted failed: %v", err)
	}
	if _, err := queueStore.Enqueue(ctx, track.ID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	orphan(t, queueStore, ctx)

	report, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Deleted != 1 || report.Resubmitted != 0 {
		t.Fatalf("terminal track should not be resubmitted: %#v", report)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	s, catalogStore, queueStore := newSweeper(t)

	ctx := context.Background()
	track := testsupport.NewTrack(t, catalogStore, "idempotent")
	// terminal track so the sweep does not create fresh ready entries
	if _, err := catalogStore.MarkTrackProcessing(ctx, track.ID); err != nil {
		t.Fatalf("MarkTrackProcessing failed: %v", err)
	}
	if _, err := catalogStore.MarkTrackFailed(ctx, track.ID, "boom"); err != nil {
		t.Fatalf("MarkTrackFailed failed: %v", err)
	}
	if _, err := queueStore.Enqueue(ctx, track.ID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	orphan(t, queueStore, ctx)

	first, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("first Sweep failed: %v", err)
	}
	if first.Deleted != 1 {
		t.Fatalf("unexpected first report: %#v", first)
	}

	second, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if second.Scanned != 0 || second.Orphans != 0 {
		t.Fatalf("second sweep should find nothing: %#v", second)
	}
}

func TestRetentionDeletesOnlyOldFinishedEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	catalogStore := testsupport.MustOpenCatalog(t, cfg)
	queueStore := testsupport.MustOpenQueue(t, cfg)
	// zero horizon: every finished entry is past retention
	s := sweeper.New(catalogStore, queueStore, 0, 0, logging.NewNop())

	ctx := context.Background()
	finished, err := queueStore.Enqueue(ctx, 1)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := queueStore.Finish(ctx, finished.ID); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	open, err := queueStore.Enqueue(ctx, 2)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	deleted, err := s.Retention(ctx)
	if err != nil {
		t.Fatalf("Retention failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted entry, got %d", deleted)
	}

	remaining, err := queueStore.GetEntry(ctx, open.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if remaining == nil {
		t.Fatal("unfinished entry must survive retention")
	}
}
