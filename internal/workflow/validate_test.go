package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeWorkflowFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const validWorkflowYAML = `
name: perf-triage
trigger_labels: [perf]
deliverables:
  - name: summary
    title: Summary
    description: What happened
`

func TestValidateDirReportsPerFileFailures(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "good.yaml", validWorkflowYAML)
	writeWorkflowFile(t, dir, "broken.yaml", "name: [unclosed")
	writeWorkflowFile(t, dir, "no-deliverables.yaml", "name: x\ntrigger_labels: [y]\n")
	writeWorkflowFile(t, dir, "notes.txt", "not a workflow")

	failures, err := ValidateDir(dir)
	if err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("got %d failures, want 2: %+v", len(failures), failures)
	}
	for _, f := range failures {
		if strings.HasSuffix(f.Path, "good.yaml") {
			t.Errorf("valid file reported as failure: %v", f.Err)
		}
	}
}

func TestValidateDirFlagsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "a.yaml", validWorkflowYAML)
	writeWorkflowFile(t, dir, "b.yaml", validWorkflowYAML)

	failures, err := ValidateDir(dir)
	if err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(failures))
	}
	if !strings.HasSuffix(failures[0].Path, "b.yaml") {
		t.Errorf("duplicate reported for %s, want the later file", failures[0].Path)
	}
	if !strings.Contains(failures[0].Err.Error(), "a.yaml") {
		t.Errorf("error %q does not name the first definition", failures[0].Err)
	}
}

func TestValidateDirStructuralErrors(t *testing.T) {
	var catErr *CatalogError

	_, err := ValidateDir(filepath.Join(t.TempDir(), "missing"))
	if !errors.As(err, &catErr) || catErr.Code != DirectoryNotFound {
		t.Errorf("missing dir: got %v, want %s", err, DirectoryNotFound)
	}

	file := filepath.Join(t.TempDir(), "file.yaml")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = ValidateDir(file)
	if !errors.As(err, &catErr) || catErr.Code != NotADirectory {
		t.Errorf("file path: got %v, want %s", err, NotADirectory)
	}
}

func TestValidateDirEmptyIsClean(t *testing.T) {
	failures, err := ValidateDir(t.TempDir())
	if err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("empty dir produced failures: %+v", failures)
	}
}
