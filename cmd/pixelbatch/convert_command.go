package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pixelbatch/internal/ingest"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/notifications"
	"pixelbatch/internal/preflight"
	"pixelbatch/internal/queue"
)

type convertSummary struct {
	Items    []convertRow       `json:"items"`
	Rejected []ingest.Rejection `json:"rejected"`
	Archive  string             `json:"archive,omitempty"`
	Entries  int                `json:"entries"`
	Skipped  int                `json:"duplicates"`
	Elapsed  string             `json:"elapsed"`
}

type convertRow struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Output    string `json:"output,omitempty"`
	Size      int64  `json:"size"`
	Converted int64  `json:"converted,omitempty"`
	Reduction int    `json:"reduction_percent"`
	Error     string `json:"error,omitempty"`
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var (
		noArchive  bool
		noProgress bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "convert <path>...",
		Short: "Convert images and package the results into a zip archive",
		Args:  cobra.MinimumNArgs(1),
	}
	opts := registerOverrides(cmd)
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "Skip writing the zip archive")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the summary as JSON")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		base, err := ctx.ensureConfig()
		if err != nil {
			return err
		}
		cfg, err := opts.apply(base)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		if failed := preflight.Failed(preflight.RunAll(runCtx, cfg, 0)); len(failed) > 0 {
			return fmt.Errorf("preflight failed: %s: %s", failed[0].Name, failed[0].Detail)
		}

		started := time.Now()
		a := newApp(cfg, logger)
		report, err := a.ingestor.IngestPaths(runCtx, args)
		if err != nil {
			return err
		}
		if len(report.Added)+len(report.Failed) == 0 {
			printRejections(cmd, report.Rejected)
			return errors.New("no convertible images found")
		}

		var bar *batchProgress
		if !noProgress && !jsonOut && shouldColorize(cmd.ErrOrStderr()) {
			bar = newBatchProgress(cmd.ErrOrStderr(), a.store)
		}

		if err := a.scheduler.Start(runCtx); err != nil {
			return err
		}
		a.notify(runCtx, notifications.EventBatchStarted, notifications.Payload{
			"count":  len(report.Added) + len(report.Failed),
			"format": cfg.Output().String(),
		})
		waitErr := a.scheduler.Wait(runCtx)
		a.scheduler.Stop()
		if bar != nil {
			bar.close()
		}
		if waitErr != nil {
			return fmt.Errorf("conversion interrupted: %w", waitErr)
		}

		state := a.store.Snapshot()
		counts := state.Counts()
		a.notify(runCtx, notifications.EventBatchCompleted, notifications.Payload{
			"done":    counts.Done,
			"failed":  counts.Error,
			"elapsed": time.Since(started),
		})
		summary := convertSummary{
			Items:    summarizeItems(state.Items),
			Rejected: report.Rejected,
		}
		if summary.Rejected == nil {
			summary.Rejected = []ingest.Rejection{}
		}

		if !noArchive && len(state.Done()) > 0 {
			var need int64
			for _, item := range state.Done() {
				need += item.Converted.File.Size()
			}
			if failed := preflight.Failed([]preflight.Result{
				preflight.CheckFreeSpace("Output free space", cfg.Paths.OutputDir, need),
			}); len(failed) > 0 {
				return fmt.Errorf("%s: %s", failed[0].Name, failed[0].Detail)
			}
			manifest, err := a.packager.WriteFile(runCtx, cfg.ArchivePath(), state.Items)
			if err != nil {
				return err
			}
			summary.Archive = cfg.ArchivePath()
			summary.Entries = len(manifest.Entries)
			summary.Skipped = len(manifest.Skipped)
			a.notify(runCtx, notifications.EventArchiveReady, notifications.Payload{
				"path":    summary.Archive,
				"entries": summary.Entries,
				"bytes":   manifest.Bytes,
			})
		}
		summary.Elapsed = time.Since(started).Round(time.Millisecond).String()

		logger.Info("batch finished",
			logging.Int("done", len(state.Done())),
			logging.Int("items", len(state.Items)),
			logging.String("archive", summary.Archive),
			logging.String(logging.FieldEventType, "batch_finished"),
		)

		if jsonOut {
			return writeJSON(cmd, summary)
		}
		printSummary(cmd, summary)
		if counts.Error > 0 {
			return fmt.Errorf("%d of %d conversions failed", counts.Error, len(state.Items))
		}
		return nil
	}
	return cmd
}

func summarizeItems(items []queue.Item) []convertRow {
	rows := make([]convertRow, 0, len(items))
	for _, item := range items {
		row := convertRow{
			Name:   item.Source.Name,
			Status: string(item.Status),
			Size:   item.Source.Size(),
			Error:  item.Error,
		}
		if item.Converted != nil {
			row.Output = item.Converted.File.Name
			row.Converted = item.Converted.File.Size()
			row.Reduction = item.ReductionPercent()
		}
		rows = append(rows, row)
	}
	return rows
}

func printSummary(cmd *cobra.Command, summary convertSummary) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(summary.Items))
	for _, item := range summary.Items {
		result := item.Output
		switch {
		case item.Error != "":
			result = item.Error
		case item.Reduction > 0:
			result = fmt.Sprintf("%s (reduced by %d%%)", item.Output, item.Reduction)
		}
		converted := ""
		if item.Converted > 0 {
			converted = humanize.IBytes(uint64(item.Converted))
		}
		rows = append(rows, []string{item.Name, item.Status, humanize.IBytes(uint64(item.Size)), converted, result})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Source", "Status", "Size", "Converted", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	printRejections(cmd, summary.Rejected)

	colorize := shouldColorize(out)
	if summary.Archive != "" {
		msg := fmt.Sprintf("%d entries", summary.Entries)
		if summary.Skipped > 0 {
			msg += fmt.Sprintf(", %d duplicates skipped", summary.Skipped)
		}
		fmt.Fprintln(out, renderStatusLine("Archive", statusOK, summary.Archive+" ("+msg+")", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, summary.Elapsed, colorize))
}

func printRejections(cmd *cobra.Command, rejected []ingest.Rejection) {
	if len(rejected) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, rej := range rejected {
		fmt.Fprintln(out, renderStatusLine(strings.TrimSpace(rej.Name), statusWarn, rej.Reason, colorize))
	}
}
