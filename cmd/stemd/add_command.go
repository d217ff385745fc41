package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/ingest"
	"stemd/internal/jobqueue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Ingest an audio file and queue it for separation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}

			return ctx.withStores(func(cfg *config.Config, catalogStore *catalog.Store, queueStore *jobqueue.Store) error {
				ingestor := ingest.New(cfg, catalogStore, queueStore, nil)
				result, err := ingestor.Add(cmd.Context(), absPath, title)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued track #%d (%s) as entry #%d\n",
					result.Track.ID, result.Track.Title, result.Entry.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Track title (derived from the file name when omitted)")
	return cmd
}
