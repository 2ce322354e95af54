package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/jywlabs/sitetriage/internal/archive"
	"github.com/jywlabs/sitetriage/internal/state"
	"github.com/jywlabs/sitetriage/internal/template"
	"github.com/spf13/cobra"
)

// Status command flags
var (
	statusClear   int
	statusReset   bool
	statusArchive string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show or reset the issue state store",
	Long: `Show the persisted processing state of every tracked issue.

With --clear N the record for issue N is removed; with --reset the
whole store is emptied. Cleared issues are eligible for reprocessing.
With --archive NAME the state store and telemetry log are moved into
.sitetriage/archive/<date>-NAME/ so a fresh cycle starts clean.

Examples:
  sitetriage status
  sitetriage status --clear 42
  sitetriage status --reset
  sitetriage status --archive january-run`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusClear, "clear", 0, "Remove the record for this issue number")
	statusCmd.Flags().BoolVar(&statusReset, "reset", false, "Remove every record")
	statusCmd.Flags().StringVar(&statusArchive, "archive", "", "Archive cycle state under this name")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}

	if statusArchive != "" {
		dir, err := archive.Create(template.TriageDir, statusArchive, os.Stdout)
		if err != nil {
			return err
		}
		fmt.Printf("Archived cycle state to %s\n", dir)
		return nil
	}
	if statusReset {
		if err := a.store.ResetAll(); err != nil {
			return err
		}
		fmt.Println("State store cleared.")
		return nil
	}
	if statusClear > 0 {
		if err := a.store.ClearIssue(statusClear); err != nil {
			return err
		}
		fmt.Printf("Cleared issue #%d.\n", statusClear)
		return nil
	}

	records, err := a.store.All()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No tracked issues.")
		return nil
	}

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})

	fmt.Printf("%d tracked issue(s):\n", len(keys))
	for _, k := range keys {
		rec := records[k]
		fmt.Printf("  #%-6s %-20s", k, rec.Status)
		if rec.WorkflowName != "" {
			fmt.Printf(" %s", rec.WorkflowName)
		}
		if rec.Status == state.StatusError && rec.ErrorCode != "" {
			fmt.Printf(" [%s]", rec.ErrorCode)
		}
		if !rec.UpdatedAt.IsZero() {
			fmt.Printf(" (updated %s)", rec.UpdatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}
	return nil
}
