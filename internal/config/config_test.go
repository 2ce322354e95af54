package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jywlabs/sitetriage/internal/template"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, template.TriageDir)
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, template.ConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.OutputDir != want.OutputDir || cfg.ProcessingTimeout != want.ProcessingTimeout {
		t.Errorf("got %+v, want defaults", cfg)
	}
	if cfg.Batch.MaxBatchSize != 10 || cfg.Batch.MaxWorkers != 3 {
		t.Errorf("batch defaults wrong: %+v", cfg.Batch)
	}
	if cfg.Handoff.Assignee != "Copilot" || cfg.Handoff.DueHours != 24 {
		t.Errorf("handoff defaults wrong: %+v", cfg.Handoff)
	}
}

func TestLoadOverridesOnlySetKeys(t *testing.T) {
	dir := writeConfig(t, `
outputDir: reports/triage
processingTimeout: 90s
batch:
  maxWorkers: 8
assign:
  highConfidence: 0.9
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.OutputDir != "reports/triage" {
		t.Errorf("OutputDir=%q", cfg.OutputDir)
	}
	if cfg.ProcessingTimeout != 90*time.Second {
		t.Errorf("ProcessingTimeout=%v", cfg.ProcessingTimeout)
	}
	if cfg.Batch.MaxWorkers != 8 {
		t.Errorf("MaxWorkers=%d", cfg.Batch.MaxWorkers)
	}
	// Keys the file does not set keep their defaults.
	if cfg.Batch.MaxBatchSize != 10 {
		t.Errorf("MaxBatchSize=%d, want default 10", cfg.Batch.MaxBatchSize)
	}
	if cfg.Assign.HighConfidence != 0.9 || cfg.Assign.MediumConfidence != 0.6 {
		t.Errorf("assign thresholds %+v", cfg.Assign)
	}
	if cfg.WorkflowsDir != Default().WorkflowsDir {
		t.Errorf("WorkflowsDir=%q, want default", cfg.WorkflowsDir)
	}
}

func TestLoadExplicitZeroDistinctFromMissing(t *testing.T) {
	dir := writeConfig(t, `
batch:
  stopOnFirstError: true
github:
  owner: acme
  repo: status-site
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Batch.StopOnFirstError {
		t.Error("StopOnFirstError not applied")
	}
	if cfg.GitHub.Owner != "acme" || cfg.GitHub.Repo != "status-site" {
		t.Errorf("github section %+v", cfg.GitHub)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "processingTimeout: soon", "processingTimeout"},
		{"zero batch size", "batch:\n  maxBatchSize: 0", "maxBatchSize"},
		{"zero workers", "batch:\n  maxWorkers: 0", "maxWorkers"},
		{"inverted thresholds", "assign:\n  highConfidence: 0.5\n  mediumConfidence: 0.7", "highConfidence"},
		{"empty assignee", "handoff:\n  assignee: \"\"", "assignee"},
		{"empty output dir", "outputDir: \"\"", "outputDir"},
		{"malformed yaml", "batch: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
