package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/pdf2img/internal/app"
)

func newSweepCmd() *cobra.Command {
	var retentionHours int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove jobs older than the retention period",
		Long: `Runs one retention sweep against the configured job store.
Output directories older than the retention period that have no job record are
removed as well, so with JOB_STORE=memory this clears leftovers from earlier runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if retentionHours > 0 {
				cfg.RetentionHours = retentionHours
			}
			// ワーカーは起動しないので、キューを持たない構成で組み立てる
			cfg.JobDispatch = "local"

			rt, err := app.Build(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = rt.Close(ctx)
			}()

			report, err := rt.Manager.Sweeper().Sweep(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cutoff %s: evicted %d, orphans %d, skipped %d, errors %d\n",
				report.Cutoff.Format(time.RFC3339), len(report.Evicted), len(report.Orphans), len(report.Skipped), len(report.Errors))
			for _, id := range report.Evicted {
				fmt.Fprintf(out, "  evicted %s\n", id)
			}
			for _, name := range report.Orphans {
				fmt.Fprintf(out, "  orphan  %s\n", name)
			}
			for _, sweepErr := range report.Errors {
				fmt.Fprintf(out, "  error   %v\n", sweepErr)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&retentionHours, "retention-hours", 0, "override RETENTION_HOURS for this run")
	return cmd
}
