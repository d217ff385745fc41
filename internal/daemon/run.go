package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/jobqueue"
	"stemd/internal/logging"
	"stemd/internal/notifications"
	"stemd/internal/separator"
	"stemd/internal/stems"
	"stemd/internal/sweeper"
	"stemd/internal/workflow"
)

// RunOptions configures daemon process runtime behavior.
type RunOptions struct {
	LogLevel string
}

// Run wires the full processing pipeline and blocks until the context is
// cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts RunOptions) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("stemd-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update stemd.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "stemd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	catalogStore, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog store", logging.Error(err))
		return err
	}
	defer catalogStore.Close()

	queueStore, err := jobqueue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer queueStore.Close()

	notifier := notifications.NewService(cfg)
	client := separator.NewCLI(separator.WithBinary(cfg.Separator.Binary))
	library := stems.New(cfg, catalogStore)
	driver := separator.NewDriver(cfg, client, catalogStore, library, logger)
	orchestrator := workflow.NewOrchestrator(cfg, catalogStore, driver, notifier, logger)
	runtime := jobqueue.NewRuntime(cfg, queueStore, logger, orchestrator.Runner())

	grace := time.Duration(cfg.Workflow.OrphanGraceMinutes) * time.Minute
	retention := time.Duration(cfg.Workflow.RetentionDays) * 24 * time.Hour
	sweep := sweeper.New(catalogStore, queueStore, grace, retention, logger)

	d, err := New(cfg, catalogStore, queueStore, runtime, sweep, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("stemd daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "stemd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
