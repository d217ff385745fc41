package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/jobqueue"
)

// MustOpenCatalog opens a catalog.Store for tests and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenQueue opens a jobqueue.Store for tests and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *jobqueue.Store {
	t.Helper()

	store, err := jobqueue.Open(cfg)
	if err != nil {
		t.Fatalf("jobqueue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTrack creates an uploaded track for tests using the provided store. The
// recorded original path lives under a per-test temp dir; callers that need
// the payload on disk write it there themselves.
func NewTrack(t testing.TB, store *catalog.Store, title string) *catalog.Track {
	t.Helper()

	track, err := store.CreateTrack(context.Background(), catalog.NewTrackParams{
		Title:           title,
		SourceFilename:  title + ".wav",
		OriginalPath:    filepath.Join(t.TempDir(), title+".wav"),
		DurationSeconds: 180,
		SizeBytes:       1 << 20,
	})
	if err != nil {
		t.Fatalf("store.CreateTrack: %v", err)
	}
	return track
}
