// Package output renders CLI progress and result summaries.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jywlabs/sitetriage/internal/batch"
	"github.com/jywlabs/sitetriage/internal/engine"
	"github.com/jywlabs/sitetriage/internal/state"
)

// Printer handles formatted output for the CLI. Colors are applied only
// when the writer is a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

// New creates a Printer that writes to the given writer without color.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// NewColor creates a Printer with styled output enabled.
func NewColor(w io.Writer) *Printer {
	return &Printer{w: w, color: true}
}

// IssueCount prints the discovery result.
// Format: "Found N site-monitor issues"
func (p *Printer) IssueCount(count int) {
	if count == 1 {
		fmt.Fprintf(p.w, "Found 1 site-monitor issue\n")
	} else {
		fmt.Fprintf(p.w, "Found %d site-monitor issues\n", count)
	}
}

// BatchStart prints the batch header.
// Format: "Batch 1/N (M issues)"
func (p *Printer) BatchStart(current, total, size int) {
	fmt.Fprintf(p.w, "%s\n", p.styled(StyleTitle, fmt.Sprintf("Batch %d/%d (%d issues)", current, total, size)))
}

// Result prints one issue's outcome line.
func (p *Printer) Result(res *engine.Result) {
	switch res.Status {
	case state.StatusCompleted:
		mode := ""
		if res.ExecutionMode == engine.ModeFallback {
			mode = " (basic recovery)"
		}
		fmt.Fprintf(p.w, "%s Issue #%d completed: %s%s, %d file(s)\n",
			p.styled(StyleSuccess, "✓"), res.IssueNumber, res.WorkflowName, mode, len(res.CreatedFiles))
	case state.StatusPreview:
		fmt.Fprintf(p.w, "%s Issue #%d preview: %s would create %d file(s)\n",
			p.styled(StyleInfo, "○"), res.IssueNumber, res.WorkflowName, len(res.CreatedFiles))
	case state.StatusNeedsClarification:
		fmt.Fprintf(p.w, "%s Issue #%d needs clarification\n",
			p.styled(StyleWarning, "?"), res.IssueNumber)
	case state.StatusError:
		fmt.Fprintf(p.w, "%s Issue #%d failed [%s]: %s\n",
			p.styled(StyleError, "✗"), res.IssueNumber, res.ErrorCode, res.ErrorMessage)
	default:
		fmt.Fprintf(p.w, "%s Issue #%d skipped (%s)\n",
			p.styled(StyleMuted, "-"), res.IssueNumber, res.Status)
	}
}

// Retry prints a retry message.
// Format: "Retrying in Xs... (attempt N/M)"
func (p *Printer) Retry(delaySeconds int, attempt, maxAttempts int) {
	fmt.Fprintf(p.w, "Retrying in %ds... (attempt %d/%d)\n", delaySeconds, attempt, maxAttempts)
}

// Summary prints the final metrics block for a batch run.
func (p *Printer) Summary(m *batch.Metrics) {
	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d/%d issues in %.1fs\n", m.ProcessedCount, m.TotalIssues, m.Duration().Seconds())
	fmt.Fprintf(&b, "  completed: %d  errors: %d  clarification: %d  preview: %d  skipped: %d\n",
		m.SuccessCount, m.ErrorCount, m.ClarificationCount, m.PreviewCount, m.SkippedCount)
	if m.ProcessedCount > 0 {
		fmt.Fprintf(&b, "  success rate: %.0f%%  avg: %.1fs/issue\n", m.SuccessRate()*100, m.AverageSeconds())
	}
	if m.Assignments.Count > 0 {
		fmt.Fprintf(&b, "  handoffs: %d to %s", m.Assignments.Count, strings.Join(m.Assignments.Assignees, ", "))
		if next := m.Assignments.NextDueAt(); next != nil {
			fmt.Fprintf(&b, " (next due %s)", next.Format("2006-01-02 15:04"))
		}
		b.WriteString("\n")
	}
	fmt.Fprint(p.w, b.String())
}

// Banner prints a boxed title when color is enabled, a plain line
// otherwise.
func (p *Printer) Banner(title string) {
	if p.color {
		fmt.Fprintln(p.w, HeaderBox().Render(StyleTitle.Render(title)))
		return
	}
	fmt.Fprintf(p.w, "%s\n", title)
}

func (p *Printer) styled(style interface{ Render(...string) string }, s string) string {
	if p.color {
		return style.Render(s)
	}
	return s
}
