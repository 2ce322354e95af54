package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jywlabs/sitetriage/internal/workflow"
	"github.com/spf13/cobra"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List or validate workflow definitions",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded workflow definitions",
	Long: `List every valid workflow definition in the catalog with its trigger
labels and deliverable count. Files that fail to parse are skipped (a
warning goes to stderr); use 'workflows validate' to see why.`,
	RunE: runWorkflowsList,
}

var workflowsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every workflow definition file",
	Long: `Parse and validate each YAML file in the workflows directory,
reporting every failure. Exits non-zero when any file is invalid.`,
	RunE: runWorkflowsValidate,
}

func init() {
	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsValidateCmd)
	rootCmd.AddCommand(workflowsCmd)
}

func runWorkflowsList(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	if err := a.catalog.Refresh(); err != nil {
		return err
	}

	defs := a.catalog.Definitions()
	if len(defs) == 0 {
		fmt.Println("No workflows defined.")
		fmt.Printf("Add YAML definitions under %s\n", a.cfg.WorkflowsDir)
		return nil
	}

	fmt.Printf("%d workflow(s):\n", len(defs))
	for _, def := range defs {
		fmt.Printf("  %s", def.Name)
		if def.Version != "" {
			fmt.Printf(" (v%s)", def.Version)
		}
		fmt.Println()
		if def.Description != "" {
			fmt.Printf("    %s\n", def.Description)
		}
		fmt.Printf("    triggers: %s\n", strings.Join(def.TriggerLabels, ", "))
		fmt.Printf("    deliverables: %d\n", len(def.Deliverables))
	}
	return nil
}

func runWorkflowsValidate(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}

	failures, err := workflow.ValidateDir(a.cfg.WorkflowsDir)
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		fmt.Println("All workflow definitions are valid.")
		return nil
	}

	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "%s: %v\n", f.Path, f.Err)
	}
	return fmt.Errorf("%d invalid workflow file(s)", len(failures))
}
