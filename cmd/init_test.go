package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jywlabs/sitetriage/internal/template"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("chdir back: %v", err)
		}
	})
}

func TestRunInitCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	cfgPath := filepath.Join(template.TriageDir, template.ConfigFile)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("config not created: %v", err)
	}
	if !strings.Contains(string(data), "workflowsDir") {
		t.Error("config does not contain defaults")
	}

	example := filepath.Join(template.TriageDir, template.WorkflowsDir, "site-research.yaml")
	if _, err := os.Stat(example); err != nil {
		t.Errorf("example workflow not created: %v", err)
	}
}

func TestRunInitRefusesExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if err := os.MkdirAll(template.TriageDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := runInit(initCmd, nil); err == nil {
		t.Fatal("expected error when directory already exists")
	}
}
