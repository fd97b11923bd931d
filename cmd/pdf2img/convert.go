package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/yourusername/pdf2img/internal/app"
	"github.com/yourusername/pdf2img/internal/jobs"
	"github.com/yourusername/pdf2img/internal/pdf"
)

const pollInterval = 100 * time.Millisecond

type convertFlags struct {
	format  string
	quality int
	density int
	outDir  string
}

func newConvertCmd() *cobra.Command {
	var flags convertFlags
	cmd := &cobra.Command{
		Use:   "convert <file.pdf>",
		Short: "Convert a PDF into one image per page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "output format (jpg or png)")
	cmd.Flags().IntVarP(&flags.quality, "quality", "q", 0, "image quality 1-100")
	cmd.Flags().IntVarP(&flags.density, "density", "d", 0, "render density in DPI 72-300")
	cmd.Flags().StringVarP(&flags.outDir, "out", "o", "", "output root directory (defaults to OUTPUT_DIR)")
	return cmd
}

func runConvert(cmd *cobra.Command, source string, flags convertFlags) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	// CLI は単一プロセスで完結させる
	cfg.JobStore = "memory"
	cfg.JobDispatch = "local"

	rt, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = rt.Close(shutdownCtx)
	}()

	stored, err := rt.Uploader.StoreFile(ctx, source)
	if err != nil {
		return err
	}

	outRoot := ""
	if flags.outDir != "" {
		if outRoot, err = filepath.Abs(flags.outDir); err != nil {
			return err
		}
	}
	jobID, err := rt.Manager.Submit(ctx, jobs.Submission{
		SourcePath:       stored.Path,
		OriginalFilename: stored.Meta.Name,
		SourcePages:      stored.Meta.Pages,
		Overrides: pdf.Overrides{
			Format:     flags.format,
			Quality:    flags.quality,
			Density:    flags.density,
			OutputRoot: outRoot,
		},
	})
	if err != nil {
		_ = os.Remove(stored.Path)
		return err
	}

	job, err := waitForJob(ctx, rt.Manager, jobID, newPageBar(stored.Meta.Pages, stored.Meta.Name))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if job.Status == jobs.StatusFailed {
		return fmt.Errorf("conversion failed (%s): %s", job.ErrorCode, job.Error)
	}
	fmt.Fprintf(out, "job %s: %d page(s) written to %s\n", job.ID, len(job.Pages), job.OutputDir)
	for _, p := range job.Pages {
		fmt.Fprintf(out, "  %3d  %s  (%d bytes)\n", p.PageNumber, p.Path, p.Size)
	}
	return nil
}

// waitForJob はジョブが終了状態になるまで進捗を表示しながら待ちます。
func waitForJob(ctx context.Context, manager *jobs.Manager, jobID string, bar *progressbar.ProgressBar) (*jobs.Job, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := manager.GetJobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		_ = bar.Set(job.CompletedPages)
		if job.Status.IsTerminal() {
			if job.Status == jobs.StatusCompleted {
				_ = bar.Finish()
			} else {
				_ = bar.Exit()
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			_ = bar.Exit()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newPageBar(pages int, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		pages,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}
