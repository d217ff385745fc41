package separator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/fileutil"
	"stemd/internal/logging"
	"stemd/internal/stems"
)

// Outcome reports how a separation run ended. OK false carries the message
// the job and track records should surface; only setup faults surface as an
// error from Run.
type Outcome struct {
	OK           bool
	ErrorMessage string
	Stems        []*catalog.Stem
	Duration     float64
	SampleRate   int
}

// Driver runs one separation attempt end to end: stage the input in a
// job-scoped work area, stream the tool, attach produced stems, clean up.
type Driver struct {
	cfg     *config.Config
	client  Client
	store   *catalog.Store
	library *stems.Library
	logger  *slog.Logger
}

// NewDriver constructs a Driver.
func NewDriver(cfg *config.Config, client Client, store *catalog.Store, library *stems.Library, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Driver{
		cfg:     cfg,
		client:  client,
		store:   store,
		library: library,
		logger:  logger.With(logging.String(logging.FieldComponent, "separator")),
	}
}

// Run executes the separation tool for a running job. Stems are attached to
// the track before the work area is removed, so a crash mid-attach leaves at
// worst a stale temp directory, never a dangling attachment row.
func (d *Driver) Run(ctx context.Context, track *catalog.Track, job *catalog.Job) (Outcome, error) {
	logger := d.logger.With(
		logging.Int64(logging.FieldTrackID, track.ID),
		logging.Int64(logging.FieldJobID, job.ID),
	)

	workDir := filepath.Join(d.cfg.Paths.StagingDir, fmt.Sprintf("job-%d", job.ID))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("create work area: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("work area cleanup failed", logging.Error(err))
		}
	}()

	inputCopy := filepath.Join(workDir, filepath.Base(track.OriginalPath))
	if _, err := fileutil.CopyFile(track.OriginalPath, inputCopy); err != nil {
		return Outcome{}, fmt.Errorf("stage input: %w", err)
	}
	outputDir := filepath.Join(workDir, "output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("create output dir: %w", err)
	}

	runCtx := ctx
	if d.cfg.Separator.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(d.cfg.Separator.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	logger.Info("launching separation",
		logging.String("input", inputCopy),
		logging.String("output_dir", outputDir),
	)

	progress := func(update ProgressUpdate) {
		if _, err := d.store.SetJobProgress(ctx, job.ID, update.Percent); err != nil {
			logger.Warn("persist progress failed", logging.Error(err))
		}
	}

	result, err := d.client.Separate(runCtx, inputCopy, outputDir, job.ID, progress)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		logger.Error("separation failed", logging.Error(err))
		return Outcome{OK: false, ErrorMessage: err.Error()}, nil
	}

	var attached []*catalog.Stem
	for kind, path := range result.OutputPaths {
		if !catalog.IsRecognizedStemKind(kind) {
			logger.Warn("skipping unrecognized stem", logging.String("kind", kind))
			continue
		}
		stem, attachErr := d.library.Attach(ctx, track.ID, kind, path)
		if attachErr != nil {
			logger.Error("stem attach failed",
				logging.String("kind", kind),
				logging.Error(attachErr),
			)
			return Outcome{OK: false, ErrorMessage: fmt.Sprintf("attach %s stem: %v", kind, attachErr)}, nil
		}
		attached = append(attached, stem)
	}
	if len(attached) == 0 {
		return Outcome{OK: false, ErrorMessage: "separation produced no stems"}, nil
	}

	logger.Info("separation completed",
		logging.Int("stems", len(attached)),
		logging.Float64("source_duration", result.Duration),
	)
	return Outcome{
		OK:         true,
		Stems:      attached,
		Duration:   result.Duration,
		SampleRate: result.SampleRate,
	}, nil
}
