package engine

import (
	"time"

	"github.com/jywlabs/sitetriage/internal/state"
)

// Mode records which execution path produced a result.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
	ModePreview  Mode = "preview"
)

// Error codes surfaced on Result.ErrorCode.
const (
	CodeInvalidIssueNumber = "INVALID_ISSUE_NUMBER"
	CodeEmptyTitle         = "EMPTY_TITLE"
	CodeInvalidLabels      = "INVALID_LABELS"
	CodeProcessingTimeout  = "PROCESSING_TIMEOUT"
	CodeWorkflowMatching   = "workflow_matching"
	CodeExecutionFailed    = "WORKFLOW_EXECUTION_FAILED"
	CodeNoDeliverables     = "NO_DELIVERABLES_CREATED"
	CodeUnexpected         = "UNEXPECTED_ERROR"
)

// Result is the output DTO of one processing call. It is not persisted
// beyond the call; the batch coordinator serializes it for export.
type Result struct {
	IssueNumber         int          `json:"issue_number"`
	Status              state.Status `json:"status"`
	WorkflowName        string       `json:"workflow_name,omitempty"`
	CreatedFiles        []string     `json:"created_files,omitempty"`
	ErrorCode           string       `json:"error_code,omitempty"`
	ErrorMessage        string       `json:"error_message,omitempty"`
	ClarificationNeeded bool         `json:"clarification_needed,omitempty"`
	Suggestions         []string     `json:"suggestions,omitempty"`
	ProcessingSeconds   float64      `json:"processing_time_seconds"`
	Branch              string       `json:"branch,omitempty"`
	CommitHash          string       `json:"commit,omitempty"`
	ExecutionMode       Mode         `json:"execution_mode,omitempty"`

	// Downstream-handoff fields, populated on completed (and preview)
	// results when handoff is configured.
	Assignee string     `json:"assignee,omitempty"`
	DueAt    *time.Time `json:"due_at,omitempty"`
	Summary  string     `json:"summary,omitempty"`
	Guidance string     `json:"guidance,omitempty"`
}

// Succeeded reports whether the result is a completed run.
func (r *Result) Succeeded() bool {
	return r.Status == state.StatusCompleted
}
