package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"stemd/internal/catalog"
	"stemd/internal/config"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracks and their latest separation jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				tracks, err := store.ListTracks(cmd.Context())
				if err != nil {
					return err
				}

				if jsonOutput {
					return writeStatusJSON(cmd, store, tracks)
				}

				out := cmd.OutOrStdout()
				if len(tracks) == 0 {
					fmt.Fprintln(out, "No tracks in the catalog.")
					return nil
				}

				rows := make([][]string, 0, len(tracks))
				for _, track := range tracks {
					job, err := store.LatestJobForTrack(cmd.Context(), track.ID)
					if err != nil {
						return err
					}
					rows = append(rows, statusRow(track, job))
				}

				headers := []string{"ID", "Title", "Status", "Progress", "Duration", "Detail"}
				aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
				fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func statusRow(track *catalog.Track, job *catalog.Job) []string {
	progress := "-"
	detail := track.ErrorMessage
	if job != nil {
		progress = strconv.FormatFloat(job.Progress, 'f', 0, 64) + "%"
		if detail == "" {
			detail = job.ErrorMessage
		}
	}
	return []string{
		strconv.FormatInt(track.ID, 10),
		track.Title,
		string(track.Status),
		progress,
		formatDuration(track.DurationSeconds),
		detail,
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	minutes := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

func writeStatusJSON(cmd *cobra.Command, store *catalog.Store, tracks []*catalog.Track) error {
	type jsonJob struct {
		ID       int64   `json:"id"`
		Status   string  `json:"status"`
		Progress float64 `json:"progress"`
		Engine   string  `json:"engine"`
		Error    string  `json:"error,omitempty"`
	}
	type jsonTrack struct {
		ID       int64    `json:"id"`
		Title    string   `json:"title"`
		Status   string   `json:"status"`
		Duration float64  `json:"duration_seconds"`
		Error    string   `json:"error,omitempty"`
		Job      *jsonJob `json:"latest_job,omitempty"`
	}

	items := make([]jsonTrack, 0, len(tracks))
	for _, track := range tracks {
		item := jsonTrack{
			ID:       track.ID,
			Title:    track.Title,
			Status:   string(track.Status),
			Duration: track.DurationSeconds,
			Error:    track.ErrorMessage,
		}
		job, err := store.LatestJobForTrack(cmd.Context(), track.ID)
		if err != nil {
			return err
		}
		if job != nil {
			item.Job = &jsonJob{
				ID:       job.ID,
				Status:   string(job.Status),
				Progress: job.Progress,
				Engine:   job.Engine,
				Error:    job.ErrorMessage,
			}
		}
		items = append(items, item)
	}
	return writeJSON(cmd, map[string]any{"tracks": items})
}
