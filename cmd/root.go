package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Root flags shared by the subcommands.
var (
	repoFlag    string
	noColorFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "sitetriage",
	Short: "Triage site-monitor GitHub issues into workflow deliverables",
	Long: `sitetriage matches GitHub issues labeled "site-monitor" against YAML
workflow definitions, generates the workflow's deliverable documents,
commits them on a per-issue branch and hands the issue off to a
downstream assignee.

Workflow:
  sitetriage init                 Initialize .sitetriage/ with defaults
  sitetriage assign               Attach workflow labels to open issues
  sitetriage process 42           Process one issue
  sitetriage batch                Process every matching issue in batches

Commands:
  init        Initialize .sitetriage/ directory
  assign      Attach workflow trigger labels to unrouted issues
  process     Process a single issue by number
  batch       Discover and process issues in batches
  workflows   List or validate workflow definitions
  status      Show or reset the issue state store
  version     Show version info

Environment:
  GITHUB_TOKEN        GitHub API token (or a .env file in the cwd)
  GITHUB_REPOSITORY   Default owner/repo when --repo is not given
  ANTHROPIC_API_KEY   Required for 'assign --ai'`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Best effort: a missing .env file is the common case.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "GitHub repository as owner/repo")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable styled output")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
