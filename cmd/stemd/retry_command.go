package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/ingest"
	"stemd/internal/jobqueue"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <track-id>",
		Short: "Reset a failed track and queue a fresh separation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			trackID := ids[0]

			return ctx.withStores(func(cfg *config.Config, catalogStore *catalog.Store, queueStore *jobqueue.Store) error {
				moved, err := catalogStore.RetryTrack(cmd.Context(), trackID)
				if err != nil {
					return err
				}
				if !moved {
					return fmt.Errorf("track %d is not in a failed state", trackID)
				}

				ingestor := ingest.New(cfg, catalogStore, queueStore, nil)
				entry, err := ingestor.Resubmit(cmd.Context(), trackID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Track %d queued for retry as entry #%d\n", trackID, entry.ID)
				return nil
			})
		},
	}
}
