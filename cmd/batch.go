package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jywlabs/sitetriage/internal/batch"
	"github.com/jywlabs/sitetriage/internal/telemetry"
	"github.com/spf13/cobra"
)

// Batch command flags
var (
	batchAssignee    string
	batchLabels      []string
	batchDryRun      bool
	batchStopOnError bool
	batchExport      string
	batchMax         int
	batchByPriority  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Discover and process site-monitor issues in batches",
	Long: `Discover open issues carrying the site-monitor label and run each
through the processing pipeline with bounded concurrency.

Issues are split into batches; each batch drains completely before the
next starts, with a rate-limit pause in between. Per-issue failures
never abort the run unless --stop-on-error is set.

Examples:
  sitetriage batch                         # All unassigned issues
  sitetriage batch --dry-run               # Preview only, no side effects
  sitetriage batch --assignee all          # Include assigned issues
  sitetriage batch --label perf --max 5    # At most 5 perf-labeled issues
  sitetriage batch --export results.json   # Write the run report`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchAssignee, "assignee", "", "Filter by assignee: empty/none=unassigned, all, or a username")
	batchCmd.Flags().StringSliceVar(&batchLabels, "label", nil, "Keep only issues carrying at least one of these labels")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "Preview without side effects")
	batchCmd.Flags().BoolVar(&batchStopOnError, "stop-on-error", false, "Stop after the first batch containing an error")
	batchCmd.Flags().StringVar(&batchExport, "export", "", "Write the run report to this JSON file")
	batchCmd.Flags().IntVar(&batchMax, "max", 0, "Process at most this many issues (0=all)")
	batchCmd.Flags().BoolVar(&batchByPriority, "by-priority", false, "Sort discovered issues by priority label")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}

	coord := batch.New(batch.Config{
		Engine:           a.engine,
		GitHub:           a.hub,
		MaxBatchSize:     a.cfg.Batch.MaxBatchSize,
		MaxWorkers:       a.cfg.Batch.MaxWorkers,
		IssueTimeout:     a.cfg.ProcessingTimeout,
		RetryCount:       a.cfg.Batch.RetryCount,
		RetryDelay:       a.cfg.Batch.RetryDelay,
		RateLimitPause:   a.cfg.Batch.RateLimitPause,
		StopOnFirstError: batchStopOnError || a.cfg.Batch.StopOnFirstError,
		PriorityLabels:   a.cfg.Batch.PriorityLabels,
		Logger:           os.Stderr,
		Progress:         batchProgress(a),
	})

	ctx := context.Background()
	discovery := coord.FindSiteMonitorIssues(ctx, batch.Filters{
		Assignee:       batchAssignee,
		AnyLabels:      batchLabels,
		SortByPriority: batchByPriority,
	})

	numbers := discovery.IssueNumbers
	if batchMax > 0 && len(numbers) > batchMax {
		numbers = numbers[:batchMax]
	}
	a.printer.IssueCount(len(numbers))
	if len(numbers) == 0 {
		return nil
	}

	report := coord.ProcessIssues(ctx, numbers, batchDryRun)

	fmt.Println()
	a.printer.Summary(report.Metrics)

	a.sink.Emit(telemetry.Event{
		Kind: "batch_done",
		Fields: map[string]any{
			"total":     report.Metrics.TotalIssues,
			"processed": report.Metrics.ProcessedCount,
			"success":   report.Metrics.SuccessCount,
			"errors":    report.Metrics.ErrorCount,
			"dry_run":   batchDryRun,
		},
	})

	if batchExport != "" {
		if err := batch.WriteResults(batchExport, report); err != nil {
			return err
		}
		fmt.Printf("Results written to %s\n", batchExport)
	}

	if report.Metrics.ErrorCount > 0 {
		return fmt.Errorf("%d issue(s) failed", report.Metrics.ErrorCount)
	}
	return nil
}

// batchProgress streams per-issue lines as workers finish.
func batchProgress(a *app) func(batch.Event) {
	return func(ev batch.Event) {
		switch ev.Phase {
		case "batch_start":
			a.printer.BatchStart(ev.BatchIndex+1, ev.BatchCount, a.cfg.Batch.MaxBatchSize)
		case "issue_done":
			a.printer.Result(ev.Result)
			a.sink.Emit(telemetry.Event{
				Kind:     "issue_done",
				Issue:    ev.Result.IssueNumber,
				Workflow: ev.Result.WorkflowName,
				Status:   string(ev.Result.Status),
			})
		}
	}
}
