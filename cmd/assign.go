package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jywlabs/sitetriage/internal/assign"
	"github.com/jywlabs/sitetriage/internal/llm"
	"github.com/spf13/cobra"
)

// Assign command flags
var (
	assignAI    bool
	assignLimit int
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Attach workflow trigger labels to unrouted issues",
	Long: `Examine unassigned site-monitor issues that are not yet routed to a
workflow and attach the matching workflow's trigger labels.

The default agent is deterministic: it assigns only when exactly one
workflow matches the issue's labels, asks for clarification when none
match, and never guesses between multiple matches.

With --ai, an LLM scores every workflow per issue. High-confidence
matches are assigned automatically, medium-confidence ones get a
needs-review label with ranked suggestions, and the rest a
clarification label. Requires ANTHROPIC_API_KEY.

Examples:
  sitetriage assign
  sitetriage assign --limit 10
  sitetriage assign --ai`,
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().BoolVar(&assignAI, "ai", false, "Use LLM-assisted scoring")
	assignCmd.Flags().IntVar(&assignLimit, "limit", 0, "Examine at most this many issues (0=all)")
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var report *assign.Report

	if assignAI {
		analyzer, err := llm.NewClient(os.Getenv("ANTHROPIC_API_KEY"))
		if err != nil {
			return err
		}
		agent, err := assign.NewAIAgent(a.hub, a.catalog, analyzer)
		if err != nil {
			return err
		}
		agent.SkipLabels = a.cfg.Assign.SkipLabels
		agent.HighConfidence = a.cfg.Assign.HighConfidence
		agent.MediumConfidence = a.cfg.Assign.MediumConfidence
		agent.Limit = assignLimit
		agent.Logger = os.Stderr

		report, err = agent.Run(ctx)
		if err != nil {
			return err
		}
	} else {
		agent := assign.NewAgent(a.hub, a.catalog)
		agent.SkipLabels = a.cfg.Assign.SkipLabels
		agent.Limit = assignLimit
		agent.Logger = os.Stderr

		report, err = agent.Run(ctx)
		if err != nil {
			return err
		}
	}

	fmt.Printf("Examined %d issue(s): %d assigned, %d need review, %d need clarification, %d skipped\n",
		report.Examined, report.Assigned, report.NeedsReview, report.Clarified, report.Skipped)
	for _, action := range report.Actions {
		switch action.Kind {
		case assign.ActionAssigned:
			fmt.Printf("  #%d -> %s", action.IssueNumber, action.Workflow)
			if action.Score > 0 {
				fmt.Printf(" (score %.2f)", action.Score)
			}
			fmt.Println()
		case assign.ActionSkipped:
			fmt.Printf("  #%d skipped: %s\n", action.IssueNumber, action.Reason)
		}
	}
	return nil
}
