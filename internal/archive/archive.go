// Package archive moves a finished triage cycle's state out of the way
// so a fresh cycle can start with a clean store.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jywlabs/sitetriage/internal/template"
)

// cycleStateFiles are the files that belong to one triage cycle.
// Exported result files are handled separately via glob.
var cycleStateFiles = []string{
	template.StateFile,
	template.TelemetryFile,
}

// Create moves the cycle state files from triageDir into
// triageDir/archive/<date>-<name>/ and returns the archive directory.
// It fails when there is no state to archive.
func Create(triageDir, name string, w io.Writer) (string, error) {
	hasState := fileExists(filepath.Join(triageDir, template.StateFile))
	hasTelemetry := fileExists(filepath.Join(triageDir, template.TelemetryFile))
	if !hasState && !hasTelemetry {
		return "", fmt.Errorf("no cycle state to archive (no %s or %s found)", template.StateFile, template.TelemetryFile)
	}

	datePart := time.Now().Format("2006-01-02")
	baseName := fmt.Sprintf("%s-%s", datePart, name)
	archiveDir := resolveCollision(filepath.Join(triageDir, "archive", baseName))

	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	moved := 0
	for _, f := range cycleStateFiles {
		src := filepath.Join(triageDir, f)
		if !fileExists(src) {
			continue
		}
		if err := moveFile(src, filepath.Join(archiveDir, f)); err != nil {
			return "", fmt.Errorf("failed to move %s: %w", f, err)
		}
		fmt.Fprintf(w, "  archived %s\n", f)
		moved++
	}

	// Exported batch reports written into the triage directory.
	reports, _ := filepath.Glob(filepath.Join(triageDir, "results-*.json"))
	for _, src := range reports {
		base := filepath.Base(src)
		if err := moveFile(src, filepath.Join(archiveDir, base)); err != nil {
			return "", fmt.Errorf("failed to move %s: %w", base, err)
		}
		fmt.Fprintf(w, "  archived %s\n", base)
		moved++
	}

	if moved == 0 {
		os.Remove(archiveDir)
		return "", fmt.Errorf("no cycle state files found to archive")
	}

	fmt.Fprintf(w, "  archived to %s\n", filepath.Base(archiveDir))
	return archiveDir, nil
}

// resolveCollision appends -2, -3, etc. if the directory already exists.
func resolveCollision(dir string) string {
	if !dirExists(dir) {
		return dir
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", dir, i)
		if !dirExists(candidate) {
			return candidate
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
