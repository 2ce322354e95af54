package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jywlabs/sitetriage/internal/template"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .sitetriage/ directory",
	Long: `Initialize the .sitetriage/ directory in the current project.

Creates:
  .sitetriage/
    config.yaml              # Configuration (defaults shown inline)
    workflows/
      site-research.yaml     # Annotated workflow definition to copy from

After init, add workflow definitions under .sitetriage/workflows/ and
run 'sitetriage batch'.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir := template.TriageDir
	workflowsDir := filepath.Join(configDir, template.WorkflowsDir)

	if _, err := os.Stat(configDir); err == nil {
		return fmt.Errorf("%s/ already exists", configDir)
	}

	if err := os.MkdirAll(workflowsDir, 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	for filename, content := range template.DefaultFiles() {
		filePath := filepath.Join(configDir, filename)
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(filePath), err)
		}
		if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", filename, err)
		}
	}

	fmt.Printf("Initialized %s/\n", configDir)
	fmt.Println()
	fmt.Println("Created:")
	fmt.Printf("  %s/config.yaml                  - Configuration (edit github.owner/repo)\n", configDir)
	fmt.Printf("  %s/workflows/site-research.yaml - Workflow definition to copy from\n", configDir)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set GITHUB_TOKEN (or put it in a .env file)")
	fmt.Printf("  2. Define workflows under %s\n", workflowsDir)
	fmt.Println("  3. Run: sitetriage batch --dry-run")

	return nil
}
