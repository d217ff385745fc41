package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/stems"
)

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var keepStems bool

	cmd := &cobra.Command{
		Use:   "remove <track-id>",
		Short: "Delete a track, its jobs, and its stored stems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			trackID := ids[0]

			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				track, err := store.GetTrack(cmd.Context(), trackID)
				if err != nil {
					return err
				}
				if track == nil {
					return fmt.Errorf("track %d not found", trackID)
				}

				deleted, err := store.DeleteTrack(cmd.Context(), trackID)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("track %d not found", trackID)
				}

				if !keepStems {
					library := stems.New(cfg, store)
					if err := library.RemoveForTrack(trackID); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warn: unable to remove stem files: %v\n", err)
					}
				}
				if track.OriginalPath != "" {
					if err := os.Remove(track.OriginalPath); err != nil && !os.IsNotExist(err) {
						fmt.Fprintf(cmd.ErrOrStderr(), "warn: unable to remove original file: %v\n", err)
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Track %d removed\n", trackID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepStems, "keep-stems", false, "Keep separated stem files in the library")
	return cmd
}
