package deliverable

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jywlabs/sitetriage/internal/github"
	"github.com/jywlabs/sitetriage/internal/workflow"
)

func testContext(root string) Context {
	return Context{
		Issue: github.Issue{
			Number: 42,
			Title:  "Checkout Page Is Down!",
			Body:   "503 since 04:00",
			URL:    "https://github.com/acme/sites/issues/42",
		},
		Workflow: &workflow.Definition{
			Name:          "incident-report",
			TriggerLabels: []string{"incident"},
			Deliverables: []workflow.DeliverableSpec{
				{Name: "action-items", Title: "Action Items", Description: "Follow-ups", Order: 2},
				{Name: "report", Title: "Incident Report", Description: "Timeline", Order: 1},
			},
			Output: workflow.OutputSpec{
				Format:          "markdown",
				Directory:       root,
				FolderStructure: "issue-{issue_number}-{title_slug}",
			},
		},
		Now: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Checkout Page Is Down!", "checkout-page-is-down"},
		{"  multiple   spaces  ", "multiple-spaces"},
		{"UPPER_case_and-dash", "upper-case-and-dash"},
		{"", "issue"},
		{"!!!", "issue"},
		{strings.Repeat("verylong", 20), strings.Repeat("verylong", 20)[:60]},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFolderAndPlannedFiles(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	ctx := testContext(root)

	folder := w.Folder(ctx)
	if filepath.Base(folder) != "issue-42-checkout-page-is-down" {
		t.Errorf("folder = %q", folder)
	}

	planned := w.PlannedFiles(ctx)
	if len(planned) != 2 {
		t.Fatalf("expected 2 planned files, got %d", len(planned))
	}
	// Order field wins over file order.
	if filepath.Base(planned[0]) != "report.md" || filepath.Base(planned[1]) != "action-items.md" {
		t.Errorf("planned order wrong: %v", planned)
	}

	// Planning never touches the filesystem.
	if _, err := os.Stat(folder); !os.IsNotExist(err) {
		t.Error("PlannedFiles created the folder")
	}
}

func TestWriteAll(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, os.Stderr)
	ctx := testContext(root)

	created, err := w.WriteAll(ctx)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 files, got %d", len(created))
	}

	content, err := os.ReadFile(created[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# Incident Report", "#42", "incident-report", "2026-08-23"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
}

func TestWriteAllSkipsBadTemplate(t *testing.T) {
	root := t.TempDir()
	var log strings.Builder
	w := NewWriter(root, &log)
	ctx := testContext(root)
	ctx.Workflow.Deliverables[0].Template = "references {nonexistent_placeholder}"

	created, err := w.WriteAll(ctx)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	// The bad deliverable is skipped; the good one still lands.
	if len(created) != 1 {
		t.Fatalf("expected 1 file, got %d", len(created))
	}
	if !strings.Contains(log.String(), "nonexistent_placeholder") {
		t.Errorf("expected skip log, got %q", log.String())
	}
}

func TestWriteAllTemplateSubstitution(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	ctx := testContext(root)
	ctx.Workflow.Deliverables[1].Template = "Issue {issue_number} via {workflow_name} on {date}"

	created, err := w.WriteAll(ctx)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	content, err := os.ReadFile(created[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "Issue 42 via incident-report on 2026-08-23") {
		t.Errorf("substitution failed:\n%s", content)
	}
}

func TestWriteBasic(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	ctx := testContext(root)

	created, err := w.WriteBasic(ctx)
	if err != nil {
		t.Fatalf("WriteBasic failed: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 files, got %d", len(created))
	}
	content, err := os.ReadFile(created[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "basic-recovery mode") {
		t.Errorf("expected recovery marker:\n%s", content)
	}
}

func TestWriteBasicZeroFilesIsError(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	ctx := testContext(root)
	ctx.Workflow.Deliverables = nil

	_, err := w.WriteBasic(ctx)
	if err != ErrNoDeliverables {
		t.Fatalf("expected ErrNoDeliverables, got %v", err)
	}
}

func TestExtraContextRendered(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	ctx := testContext(root)
	ctx.Extra = map[string]string{"affected_service": "checkout"}

	created, err := w.WriteAll(ctx)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	content, err := os.ReadFile(created[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "affected_service") {
		t.Errorf("expected extracted context section:\n%s", content)
	}
}
