package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vid2doc/internal/config"
	"vid2doc/internal/queue"
)

func newJobsCommand(configFlag *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg.DatabasePath())
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := store.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"Job", "Kind", "Status", "Progress", "Created", "Error"}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					string(job.Kind),
					string(job.Status),
					formatProgress(job.Progress),
					job.CreatedAt.Local().Format(time.DateTime),
					job.ErrorMessage,
				})
			}

			out := cmd.OutOrStdout()
			printTable(out, headers, rows, 3)
			fmt.Fprintf(out, "%d total: %d pending, %d processing, %d completed, %d failed\n",
				stats.Total, stats.Pending, stats.Processing, stats.Completed, stats.Failed)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of jobs to show (default 5)")
	return cmd
}

func formatProgress(progress queue.Progress) string {
	if progress.Stage == "" {
		return strconv.FormatFloat(progress.Percent, 'f', 0, 64) + "%"
	}
	return fmt.Sprintf("%s %.0f%%", progress.Stage, progress.Percent)
}
