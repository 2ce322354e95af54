package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jywlabs/sitetriage/internal/engine"
)

// exportDoc is the JSON shape of an exported batch run.
type exportDoc struct {
	Timestamp   time.Time        `json:"timestamp"`
	TotalIssues int              `json:"total_issues"`
	Results     []*engine.Result `json:"results"`
	Metrics     *exportMetrics   `json:"metrics,omitempty"`
}

type exportMetrics struct {
	ProcessedCount     int               `json:"processed_count"`
	SuccessCount       int               `json:"success_count"`
	ErrorCount         int               `json:"error_count"`
	ClarificationCount int               `json:"clarification_count"`
	PreviewCount       int               `json:"preview_count"`
	SkippedCount       int               `json:"skipped_count"`
	StartedAt          time.Time         `json:"started_at"`
	EndedAt            time.Time         `json:"ended_at"`
	DurationSeconds    float64           `json:"duration_seconds"`
	AverageSeconds     float64           `json:"average_time_seconds"`
	SuccessRate        float64           `json:"success_rate"`
	Copilot            copilotAssignJSON `json:"copilot_assignments"`
}

type copilotAssignJSON struct {
	Count     int         `json:"count"`
	Assignees []string    `json:"assignees"`
	DueDates  []time.Time `json:"due_dates"`
	NextDueAt *time.Time  `json:"next_due_at,omitempty"`
}

// WriteResults exports a run report as a JSON document.
func WriteResults(path string, report *RunReport) error {
	doc := exportDoc{
		Timestamp:   time.Now().UTC(),
		TotalIssues: report.Metrics.TotalIssues,
		Results:     report.Results,
		Metrics: &exportMetrics{
			ProcessedCount:     report.Metrics.ProcessedCount,
			SuccessCount:       report.Metrics.SuccessCount,
			ErrorCount:         report.Metrics.ErrorCount,
			ClarificationCount: report.Metrics.ClarificationCount,
			PreviewCount:       report.Metrics.PreviewCount,
			SkippedCount:       report.Metrics.SkippedCount,
			StartedAt:          report.Metrics.StartedAt,
			EndedAt:            report.Metrics.EndedAt,
			DurationSeconds:    report.Metrics.Duration().Seconds(),
			AverageSeconds:     report.Metrics.AverageSeconds(),
			SuccessRate:        report.Metrics.SuccessRate(),
			Copilot: copilotAssignJSON{
				Count:     report.Metrics.Assignments.Count,
				Assignees: report.Metrics.Assignments.Assignees,
				DueDates:  report.Metrics.Assignments.DueDates,
				NextDueAt: report.Metrics.Assignments.NextDueAt(),
			},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode batch results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write batch results: %w", err)
	}
	return nil
}
