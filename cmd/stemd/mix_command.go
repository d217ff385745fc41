package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stemd/internal/catalog"
	"stemd/internal/config"
	"stemd/internal/separator"
	"stemd/internal/stems"
)

func newMixCommand(ctx *commandContext) *cobra.Command {
	var (
		kindsFlag  string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "mix <track-id>",
		Short: "Remix selected stems of a track into a single audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			trackID := ids[0]

			kinds := splitKinds(kindsFlag)

			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				track, err := store.GetTrack(cmd.Context(), trackID)
				if err != nil {
					return err
				}
				if track == nil {
					return fmt.Errorf("track %d not found", trackID)
				}

				library := stems.New(cfg, store)
				attached, err := library.ListForTrack(cmd.Context(), trackID)
				if err != nil {
					return err
				}
				if len(attached) == 0 {
					return fmt.Errorf("track %d has no stems to mix", trackID)
				}

				inputs, err := stems.SelectPaths(attached, kinds)
				if err != nil {
					return err
				}

				destination := outputPath
				if destination == "" {
					named := kinds
					if len(named) == 0 {
						named = make([]string, 0, len(attached))
						for _, stem := range attached {
							named = append(named, stem.Kind)
						}
					}
					destination = library.MixOutputPath(trackID, named)
				}

				mixer := separator.NewMixer(separator.WithMixerBinary(cfg.Separator.MixBinary))
				result, err := mixer.Mix(cmd.Context(), destination, inputs)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Mixed %d stems into %s (%.1fs @ %d Hz)\n",
					result.StemsMixed, result.OutputPath, result.Duration, result.SampleRate)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kindsFlag, "stems", "", "Comma-separated stem kinds to mix (default: all attached)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination file (default: inside the track's library directory)")
	return cmd
}

func splitKinds(flag string) []string {
	var kinds []string
	for _, part := range strings.Split(flag, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			kinds = append(kinds, part)
		}
	}
	return kinds
}
