package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/jobqueue"
	"stemd/internal/sweeper"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue maintenance and diagnostics",
	}

	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	queueCmd.AddCommand(newQueueCleanupCommand(ctx))
	queueCmd.AddCommand(newQueueRetentionCommand(ctx))

	return queueCmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show queue depths and database diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, catalogStore *catalog.Store, queueStore *jobqueue.Store) error {
				grace := time.Duration(cfg.Workflow.OrphanGraceMinutes) * time.Minute
				depths, err := queueStore.QueueDepths(cmd.Context(), grace)
				if err != nil {
					return err
				}
				dbHealth, err := catalogStore.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}

				healthy := dbHealth.DatabaseExists && dbHealth.DatabaseReadable && dbHealth.IntegrityCheck

				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"ready":             depths.Ready,
						"claimed":           depths.Claimed,
						"scheduled":         depths.Scheduled,
						"unfinished":        depths.Unfinished,
						"potential_orphans": depths.PotentialOrphans,
						"catalog_path":      dbHealth.DBPath,
						"catalog_healthy":   healthy,
						"track_count":       dbHealth.TrackCount,
						"job_count":         dbHealth.JobCount,
					})
				}

				out := cmd.OutOrStdout()
				headers := []string{"Metric", "Value"}
				rows := [][]string{
					{"Ready", strconv.Itoa(depths.Ready)},
					{"Claimed", strconv.Itoa(depths.Claimed)},
					{"Scheduled", strconv.Itoa(depths.Scheduled)},
					{"Unfinished", strconv.Itoa(depths.Unfinished)},
					{"Potential orphans", strconv.Itoa(depths.PotentialOrphans)},
					{"Tracks", strconv.Itoa(dbHealth.TrackCount)},
					{"Jobs", strconv.Itoa(dbHealth.JobCount)},
				}
				fmt.Fprintln(out, renderTable(out, headers, rows, []columnAlignment{alignLeft, alignRight}))
				if healthy {
					fmt.Fprintf(out, "Catalog database healthy (%s)\n", dbHealth.DBPath)
				} else {
					fmt.Fprintf(out, "Catalog database unhealthy (%s): %s\n", dbHealth.DBPath, dbHealth.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func newQueueCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run an orphan reconciliation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, catalogStore *catalog.Store, queueStore *jobqueue.Store) error {
				grace := time.Duration(cfg.Workflow.OrphanGraceMinutes) * time.Minute
				retention := time.Duration(cfg.Workflow.RetentionDays) * 24 * time.Hour
				report, err := sweeper.New(catalogStore, queueStore, grace, retention, nil).Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Scanned %d entries: %d orphans, %d deleted, %d resubmitted, %d errors\n",
					report.Scanned, report.Orphans, report.Deleted, report.Resubmitted, report.Errors)
				return nil
			})
		},
	}
}

func newQueueRetentionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retention",
		Short: "Purge finished queue entries older than the retention horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, catalogStore *catalog.Store, queueStore *jobqueue.Store) error {
				grace := time.Duration(cfg.Workflow.OrphanGraceMinutes) * time.Minute
				retention := time.Duration(cfg.Workflow.RetentionDays) * 24 * time.Hour
				deleted, err := sweeper.New(catalogStore, queueStore, grace, retention, nil).Retention(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d finished entries\n", deleted)
				return nil
			})
		},
	}
}
