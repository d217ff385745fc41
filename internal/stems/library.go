// Package stems places separation outputs into the managed library and
// records the attachment rows backing them.
package stems

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/fileutil"
)

// Library manages the on-disk stem layout under the configured library dir.
// Each track owns one directory named after its ID; stems are written there
// atomically so a crash never leaves a half-copied file attached.
type Library struct {
	root  string
	store *catalog.Store
}

// New constructs a Library rooted at the configured library directory.
func New(cfg *config.Config, store *catalog.Store) *Library {
	return &Library{root: cfg.Paths.LibraryDir, store: store}
}

// Attach copies a produced stem into the library and records the attachment.
// The copy lands via temp-file + rename, and the database row is written only
// after the file is in place.
func (l *Library) Attach(ctx context.Context, trackID int64, kind, sourcePath string) (*catalog.Stem, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if !catalog.IsRecognizedStemKind(kind) {
		return nil, fmt.Errorf("unrecognized stem kind %q", kind)
	}

	ext := filepath.Ext(sourcePath)
	if ext == "" {
		ext = ".wav"
	}
	destination := filepath.Join(l.root, strconv.FormatInt(trackID, 10), kind+ext)
	size, err := fileutil.CopyFileAtomic(sourcePath, destination)
	if err != nil {
		return nil, fmt.Errorf("copy stem into library: %w", err)
	}

	stem, err := l.store.AttachStem(ctx, trackID, kind, destination, size)
	if err != nil {
		// Library file without a row is invisible; remove it so retries
		// start clean.
		_ = os.Remove(destination)
		return nil, err
	}
	return stem, nil
}

// ListForTrack returns the recorded attachments for a track.
func (l *Library) ListForTrack(ctx context.Context, trackID int64) ([]*catalog.Stem, error) {
	return l.store.StemsForTrack(ctx, trackID)
}

// RemoveForTrack deletes a track's stem directory. Attachment rows go with
// the track row; this only clears the files.
func (l *Library) RemoveForTrack(trackID int64) error {
	dir := filepath.Join(l.root, strconv.FormatInt(trackID, 10))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove stem directory: %w", err)
	}
	return nil
}

// MixOutputPath returns the library location for a remix of the given kinds,
// e.g. <library>/<trackID>/mix-vocals+drums.wav.
func (l *Library) MixOutputPath(trackID int64, kinds []string) string {
	name := "mix-" + strings.Join(kinds, "+") + ".wav"
	return filepath.Join(l.root, strconv.FormatInt(trackID, 10), name)
}

// SelectPaths resolves the requested stem kinds against a track's recorded
// attachments, preserving the requested order. An empty request selects every
// attachment.
func SelectPaths(attached []*catalog.Stem, kinds []string) ([]string, error) {
	byKind := make(map[string]string, len(attached))
	for _, stem := range attached {
		byKind[stem.Kind] = stem.Path
	}

	if len(kinds) == 0 {
		paths := make([]string, 0, len(attached))
		for _, stem := range attached {
			paths = append(paths, stem.Path)
		}
		return paths, nil
	}

	paths := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		kind = strings.ToLower(strings.TrimSpace(kind))
		if !catalog.IsRecognizedStemKind(kind) {
			return nil, fmt.Errorf("unrecognized stem kind %q", kind)
		}
		path, ok := byKind[kind]
		if !ok {
			return nil, fmt.Errorf("no %s stem attached", kind)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
