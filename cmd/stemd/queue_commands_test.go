package main

import (
	"context"
	"testing"

	"stemd/internal/catalog"
	"stemd/internal/testsupport"
)

func TestQueueHealthReportsDepths(t *testing.T) {
	env := setupCLITestEnv(t)
	queueStore := testsupport.MustOpenQueue(t, env.cfg)
	store := testsupport.MustOpenCatalog(t, env.cfg)
	ctx := context.Background()

	track := testsupport.NewTrack(t, store, "Health Check")
	if _, err := queueStore.Enqueue(ctx, track.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "health"}, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Ready\t1")
	requireContains(t, out, "Catalog database healthy")
}

func TestQueueCleanupHonorsGraceWindow(t *testing.T) {
	env := setupCLITestEnv(t)
	queueStore := testsupport.MustOpenQueue(t, env.cfg)
	store := testsupport.MustOpenCatalog(t, env.cfg)
	ctx := context.Background()

	// The entry has lost its markers but is younger than the grace window,
	// so a cleanup pass must leave it alone.
	track := testsupport.NewTrack(t, store, "Recently Orphaned")
	entry, err := queueStore.Enqueue(ctx, track.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := queueStore.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := queueStore.PurgeClaimed(ctx); err != nil {
		t.Fatalf("PurgeClaimed: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "cleanup"}, env.configPath)
	if err != nil {
		t.Fatalf("queue cleanup: %v", err)
	}
	requireContains(t, out, "0 orphans")

	refreshed, err := queueStore.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if refreshed == nil || refreshed.Finished() {
		t.Fatal("expected entry untouched inside the grace window")
	}
}

func TestQueueRetentionReportsCount(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"queue", "retention"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retention: %v", err)
	}
	requireContains(t, out, "Deleted 0 finished entries")
}

func TestRetryRequiresFailedTrack(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenCatalog(t, env.cfg)
	track := testsupport.NewTrack(t, store, "Still Uploaded")

	if _, _, err := runCLI(t, []string{"retry", "1"}, env.configPath); err == nil {
		t.Fatal("expected retry of non-failed track to error")
	}
	refreshed, err := store.GetTrack(context.Background(), track.ID)
	if err != nil {
		t.Fatalf("GetTrack: %v", err)
	}
	if refreshed.Status != catalog.TrackUploaded {
		t.Fatalf("expected track untouched, got %s", refreshed.Status)
	}
}

func TestRetryQueuesFailedTrack(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenCatalog(t, env.cfg)
	queueStore := testsupport.MustOpenQueue(t, env.cfg)
	ctx := context.Background()

	track := testsupport.NewTrack(t, store, "Failed Track")
	if _, err := store.MarkTrackProcessing(ctx, track.ID); err != nil {
		t.Fatalf("MarkTrackProcessing: %v", err)
	}
	if _, err := store.MarkTrackFailed(ctx, track.ID, "decode error"); err != nil {
		t.Fatalf("MarkTrackFailed: %v", err)
	}

	out, _, err := runCLI(t, []string{"retry", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, out, "queued for retry")

	refreshed, err := store.GetTrack(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetTrack: %v", err)
	}
	if refreshed.Status != catalog.TrackUploaded {
		t.Fatalf("expected track reset to uploaded, got %s", refreshed.Status)
	}
	depths, err := queueStore.QueueDepths(ctx, 0)
	if err != nil {
		t.Fatalf("QueueDepths: %v", err)
	}
	if depths.Ready != 1 {
		t.Fatalf("expected one ready entry, got %d", depths.Ready)
	}
}

func TestRemoveDeletesTrack(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenCatalog(t, env.cfg)
	ctx := context.Background()

	track := testsupport.NewTrack(t, store, "Removable")
	out, _, err := runCLI(t, []string{"remove", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	requireContains(t, out, "Track 1 removed")

	refreshed, err := store.GetTrack(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetTrack: %v", err)
	}
	if refreshed != nil {
		t.Fatal("expected track to be deleted")
	}
}
