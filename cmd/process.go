package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jywlabs/sitetriage/internal/engine"
	"github.com/jywlabs/sitetriage/internal/state"
	"github.com/jywlabs/sitetriage/internal/telemetry"
	"github.com/spf13/cobra"
)

var processDryRun bool

var processCmd = &cobra.Command{
	Use:   "process <issue-number>",
	Short: "Process a single issue",
	Long: `Process one GitHub issue through the full pipeline: workflow
matching, deliverable generation, git commit and state persistence.

With --dry-run the issue is previewed instead: the command reports which
workflow would run and which files it would create, without touching the
state store, the filesystem or git.

Examples:
  sitetriage process 42
  sitetriage process 42 --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Preview without side effects")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(args[0])
	if err != nil || number <= 0 {
		return fmt.Errorf("invalid issue number %q", args[0])
	}

	a, err := buildApp(true)
	if err != nil {
		return err
	}

	ctx := context.Background()
	issue, err := a.hub.GetIssue(ctx, number)
	if err != nil {
		return fmt.Errorf("fetch issue #%d: %w", number, err)
	}

	var res *engine.Result
	if processDryRun {
		res = a.engine.GeneratePreview(ctx, *issue)
	} else {
		res = a.engine.ProcessIssue(ctx, *issue)
	}

	a.printer.Result(res)
	if res.Guidance != "" {
		fmt.Println()
		fmt.Println(res.Guidance)
	}

	a.sink.Emit(telemetry.Event{
		Kind:     "issue_done",
		Issue:    res.IssueNumber,
		Workflow: res.WorkflowName,
		Status:   string(res.Status),
	})

	if res.Status == state.StatusError {
		return fmt.Errorf("issue #%d failed: %s", number, res.ErrorMessage)
	}
	return nil
}
