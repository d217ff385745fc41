// Package ingest validates uploaded audio and admits it into the catalog.
// Nothing reaches the queue without passing through here first.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/fileutil"
	"stemd/internal/jobqueue"
	"stemd/internal/logging"
	"stemd/internal/probe"
	"stemd/internal/services"
)

var allowedExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".flac": {},
	".ogg":  {},
	".m4a":  {},
	".aac":  {},
	".mp4":  {},
	".aiff": {},
	".opus": {},
}

// Ingestor admits audio files: validate, probe, copy into the originals
// area, create the track record, enqueue separation work.
type Ingestor struct {
	cfg     *config.Config
	catalog *catalog.Store
	queue   *jobqueue.Store
	logger  *slog.Logger

	inspect func(ctx context.Context, binary, path string) (probe.Result, error)
}

// New constructs an Ingestor.
func New(cfg *config.Config, catalogStore *catalog.Store, queueStore *jobqueue.Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingestor{
		cfg:     cfg,
		catalog: catalogStore,
		queue:   queueStore,
		logger:  logger.With(logging.String(logging.FieldComponent, "ingest")),
		inspect: probe.Inspect,
	}
}

// Result reports what an admission produced.
type Result struct {
	Track *catalog.Track
	Entry *jobqueue.Entry
}

// Add validates and admits one audio file. The title is derived from the
// filename when none is given. Validation failures wrap services.ErrValidation.
func (i *Ingestor) Add(ctx context.Context, sourcePath, title string) (*Result, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add", "source path required", nil)
	}

	ext := strings.ToLower(filepath.Ext(sourcePath))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add",
			fmt.Sprintf("unsupported audio format %q", ext), nil)
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add", "source file unreadable", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add", "source path is a directory", nil)
	}
	if info.Size() <= 0 {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add", "source file is empty", nil)
	}

	result, err := i.inspect(ctx, i.cfg.FFprobeBinary(), sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "probe", "probe source audio", err)
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add", "source has no measurable duration", nil)
	}
	if result.AudioStreamCount() == 0 {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add", "source carries no audio stream", nil)
	}

	if strings.TrimSpace(title) == "" {
		title = TitleFromFilename(sourcePath)
	}

	originalPath := filepath.Join(i.cfg.Paths.OriginalsDir, uuid.NewString()+ext)
	if _, err := fileutil.CopyFileAtomic(sourcePath, originalPath); err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "copy", "copy into originals", err)
	}

	track, err := i.catalog.CreateTrack(ctx, catalog.NewTrackParams{
		Title:           title,
		SourceFilename:  filepath.Base(sourcePath),
		OriginalPath:    originalPath,
		DurationSeconds: duration,
		SizeBytes:       info.Size(),
	})
	if err != nil {
		_ = os.Remove(originalPath)
		return nil, fmt.Errorf("create track: %w", err)
	}

	entry, err := i.queue.Enqueue(ctx, track.ID)
	if err != nil {
		return nil, fmt.Errorf("enqueue track %d: %w", track.ID, err)
	}

	i.logger.Info("track admitted",
		logging.Int64(logging.FieldTrackID, track.ID),
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.String("title", track.Title),
		logging.Float64("duration_seconds", duration),
	)
	return &Result{Track: track, Entry: entry}, nil
}

// Resubmit enqueues a fresh entry for an existing track, used by the retry
// command after RetryTrack resets a failed record.
func (i *Ingestor) Resubmit(ctx context.Context, trackID int64) (*jobqueue.Entry, error) {
	entry, err := i.queue.Enqueue(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("enqueue track %d: %w", trackID, err)
	}
	return entry, nil
}

var titleCaser = cases.Title(language.English)

// TitleFromFilename derives a human title from a file name: extension
// stripped, separators flattened to spaces, title case applied.
func TitleFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return "Untitled"
	}
	return titleCaser.String(base)
}
