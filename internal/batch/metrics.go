package batch

import (
	"sort"
	"time"

	"github.com/jywlabs/sitetriage/internal/engine"
	"github.com/jywlabs/sitetriage/internal/state"
)

// Metrics aggregates counters for one ProcessIssues run. Every result
// lands in exactly one of the five outcome buckets. Derived values
// (duration, averages, rates) are computed, never stored.
type Metrics struct {
	TotalIssues        int       `json:"total_issues"`
	ProcessedCount     int       `json:"processed_count"`
	SuccessCount       int       `json:"success_count"`
	ErrorCount         int       `json:"error_count"`
	ClarificationCount int       `json:"clarification_count"`
	PreviewCount       int       `json:"preview_count"`
	SkippedCount       int       `json:"skipped_count"`
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`

	Assignments CopilotAssignments `json:"copilot_assignments"`

	totalSeconds float64
}

// CopilotAssignments aggregates the downstream-handoff metadata across
// completed and preview results.
type CopilotAssignments struct {
	Count     int         `json:"count"`
	Assignees []string    `json:"assignees"`
	DueDates  []time.Time `json:"due_dates"`
}

// record buckets one result. Called only from the coordinating goroutine.
func (m *Metrics) record(res *engine.Result) {
	m.ProcessedCount++
	m.totalSeconds += res.ProcessingSeconds

	switch res.Status {
	case state.StatusCompleted:
		m.SuccessCount++
	case state.StatusError:
		m.ErrorCount++
	case state.StatusNeedsClarification:
		m.ClarificationCount++
	case state.StatusPreview:
		m.PreviewCount++
	default:
		// pending, processing, paused: skipped for this run
		m.SkippedCount++
	}

	if (res.Status == state.StatusCompleted || res.Status == state.StatusPreview) && res.Assignee != "" {
		m.Assignments.register(res)
	}
}

func (a *CopilotAssignments) register(res *engine.Result) {
	a.Count++
	if !containsString(a.Assignees, res.Assignee) {
		a.Assignees = append(a.Assignees, res.Assignee)
		sort.Strings(a.Assignees)
	}
	if res.DueAt != nil {
		a.DueDates = append(a.DueDates, *res.DueAt)
		sort.Slice(a.DueDates, func(i, j int) bool { return a.DueDates[i].Before(a.DueDates[j]) })
	}
}

// NextDueAt returns the soonest due date across all registered handoffs,
// or nil when there are none.
func (a *CopilotAssignments) NextDueAt() *time.Time {
	if len(a.DueDates) == 0 {
		return nil
	}
	next := a.DueDates[0]
	return &next
}

// Duration is the wall-clock span of the run.
func (m *Metrics) Duration() time.Duration {
	if m.StartedAt.IsZero() || m.EndedAt.IsZero() {
		return 0
	}
	return m.EndedAt.Sub(m.StartedAt)
}

// AverageSeconds is the mean per-issue processing time.
func (m *Metrics) AverageSeconds() float64 {
	if m.ProcessedCount == 0 {
		return 0
	}
	return m.totalSeconds / float64(m.ProcessedCount)
}

// SuccessRate is the fraction of processed issues that completed.
func (m *Metrics) SuccessRate() float64 {
	if m.ProcessedCount == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.ProcessedCount)
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
