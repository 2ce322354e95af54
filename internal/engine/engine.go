// Package engine drives one issue through validate, match, execute and
// persist, producing a Result. This is the processing state machine.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jywlabs/sitetriage/internal/deliverable"
	"github.com/jywlabs/sitetriage/internal/github"
	"github.com/jywlabs/sitetriage/internal/gitops"
	"github.com/jywlabs/sitetriage/internal/retry"
	"github.com/jywlabs/sitetriage/internal/state"
	"github.com/jywlabs/sitetriage/internal/template"
	"github.com/jywlabs/sitetriage/internal/workflow"
)

// DefaultProcessingTimeout bounds how long a persisted "processing" record
// is honored before a new call may take the issue over.
const DefaultProcessingTimeout = 5 * time.Minute

const lookupMaxRetries = 2 // 3 attempts total for workflow lookup

// WorkflowSource answers matching queries. *workflow.Catalog satisfies it.
type WorkflowSource interface {
	BestMatch(labels []string) (*workflow.Definition, string)
	Suggestions(labels []string) []string
}

// DeliverableWriter is the file-generation contract. *deliverable.Writer
// satisfies it; tests inject fakes to exercise the fallback policy.
type DeliverableWriter interface {
	WriteAll(dctx deliverable.Context) ([]string, error)
	WriteBasic(dctx deliverable.Context) ([]string, error)
	PlannedFiles(dctx deliverable.Context) []string
}

// Committer commits created deliverables on a per-issue branch. nil
// disables git integration entirely.
type Committer interface {
	Commit(issueNumber int, workflowName string, files []string) (*gitops.CommitResult, error)
}

// RepoCommitter is the production Committer over a local repository.
type RepoCommitter struct {
	Path string
}

func (r RepoCommitter) Commit(issueNumber int, workflowName string, files []string) (*gitops.CommitResult, error) {
	return gitops.CommitDeliverables(r.Path, issueNumber, workflowName, files)
}

// ContentExtractor is the best-effort enrichment hook. Failures are
// logged and swallowed; extraction never blocks processing.
type ContentExtractor interface {
	Extract(ctx context.Context, issue github.Issue) (map[string]string, error)
}

// HandoffConfig controls the downstream assignee fields stamped onto
// completed results.
type HandoffConfig struct {
	Assignee string
	DueAfter time.Duration
}

// Config holds the engine's collaborators and policy knobs.
type Config struct {
	Source    WorkflowSource
	Store     *state.Store
	Writer    DeliverableWriter
	Committer Committer        // optional
	Extractor ContentExtractor // optional
	Handoff   *HandoffConfig   // optional

	ProcessingTimeout time.Duration // defaults to DefaultProcessingTimeout
	Logger            io.Writer

	// Now is a clock override for tests.
	Now func() time.Time
}

// Engine is the issue-processing state machine.
type Engine struct {
	cfg Config
}

// New creates an engine, applying defaults.
func New(cfg Config) *Engine {
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = DefaultProcessingTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg}
}

// ProcessIssue runs the full state machine for one issue. It never
// returns an error: every failure mode is converted into an error-status
// Result, and the state store is written on every exit path that reached
// the processing transition.
func (e *Engine) ProcessIssue(ctx context.Context, issue github.Issue) (res *Result) {
	start := e.cfg.Now()
	res = &Result{IssueNumber: issue.Number, ExecutionMode: ModePrimary}
	defer func() {
		if r := recover(); r != nil {
			res.Status = state.StatusError
			res.ErrorCode = CodeUnexpected
			res.ErrorMessage = fmt.Sprintf("unexpected failure: %v", r)
			e.persistResult(res)
		}
		res.ProcessingSeconds = e.cfg.Now().Sub(start).Seconds()
	}()

	// 1. Shape validation. An invalid issue number cannot be keyed into
	// the store, so that case skips persistence entirely.
	if code, msg := validateIssue(issue); code != "" {
		res.Status = state.StatusError
		res.ErrorCode = code
		res.ErrorMessage = msg
		if issue.Number > 0 {
			e.persistResult(res)
		}
		return res
	}

	// 2-3. Duplicate-processing guards. The timeout guard is advisory,
	// based on persisted timestamps only; the store's file lock prevents
	// interleaved writes but not a second coordinator taking the issue.
	if guard := e.checkProcessingGuard(issue.Number); guard != nil {
		return guard
	}

	// 4. Enter processing.
	now := e.cfg.Now().UTC()
	e.mustPersist(issue.Number, state.StatusProcessing, func(r *state.Record) {
		r.StartedAt = &now
		r.ErrorCode = ""
		r.ErrorMessage = ""
	})

	// 5. Gate label check: a normal skip, not an error.
	if !issue.HasLabel(template.GateLabel) {
		res.Status = state.StatusPending
		res.ErrorMessage = fmt.Sprintf("issue #%d is not %s flagged; skipping", issue.Number, template.GateLabel)
		e.persistResult(res)
		return res
	}

	// 6. Best-effort enrichment.
	extra := e.extract(ctx, issue)

	// 7. Workflow lookup with bounded retry.
	def, matchMsg, err := e.findWorkflow(ctx, issue.Labels)
	if err != nil {
		res.Status = state.StatusError
		res.ErrorCode = CodeWorkflowMatching
		res.ErrorMessage = fmt.Sprintf("workflow lookup failed: %v", err)
		e.persistResult(res)
		return res
	}

	// 8. No single match: ask for clarification, not an error.
	if def == nil {
		res.Status = state.StatusNeedsClarification
		res.ClarificationNeeded = true
		res.Suggestions = e.cfg.Source.Suggestions(issue.Labels)
		res.ErrorMessage = clarificationMessage(matchMsg, res.Suggestions)
		e.persistResult(res)
		return res
	}
	res.WorkflowName = def.Name

	// 9. Execute with fallback.
	out, mode, err := e.execute(deliverable.Context{
		Issue:    issue,
		Workflow: def,
		Now:      e.cfg.Now(),
		Extra:    extra,
	})
	res.ExecutionMode = mode
	if err != nil {
		res.Status = state.StatusError
		res.ErrorCode = CodeExecutionFailed
		res.ErrorMessage = fmt.Sprintf("workflow execution failed: %v", err)
		if strings.Contains(err.Error(), deliverable.ErrNoDeliverables.Error()) {
			res.ErrorMessage = fmt.Sprintf("workflow execution failed: %s: %v", CodeNoDeliverables, err)
		}
		e.persistResult(res)
		return res
	}

	// 10. Completed.
	res.Status = state.StatusCompleted
	res.CreatedFiles = out.files
	res.Branch = out.branch
	res.CommitHash = out.hash
	e.applyHandoff(res, issue, def)
	e.persistResult(res)
	return res
}

// GeneratePreview performs the same matching logic as ProcessIssue but
// never mutates the store and never writes files. It synthesizes the
// paths and handoff guidance a real run would produce, so dry runs show a
// faithful approximation of real output.
func (e *Engine) GeneratePreview(ctx context.Context, issue github.Issue) *Result {
	start := e.cfg.Now()
	res := &Result{IssueNumber: issue.Number, ExecutionMode: ModePreview}
	defer func() {
		res.ProcessingSeconds = e.cfg.Now().Sub(start).Seconds()
	}()

	if code, msg := validateIssue(issue); code != "" {
		res.Status = state.StatusError
		res.ErrorCode = code
		res.ErrorMessage = msg
		return res
	}

	if !issue.HasLabel(template.GateLabel) {
		res.Status = state.StatusPending
		res.ErrorMessage = fmt.Sprintf("issue #%d is not %s flagged; skipping", issue.Number, template.GateLabel)
		return res
	}

	def, matchMsg, err := e.findWorkflow(ctx, issue.Labels)
	if err != nil {
		res.Status = state.StatusError
		res.ErrorCode = CodeWorkflowMatching
		res.ErrorMessage = fmt.Sprintf("workflow lookup failed: %v", err)
		return res
	}
	if def == nil {
		res.Status = state.StatusNeedsClarification
		res.ClarificationNeeded = true
		res.Suggestions = e.cfg.Source.Suggestions(issue.Labels)
		res.ErrorMessage = clarificationMessage(matchMsg, res.Suggestions)
		return res
	}

	res.Status = state.StatusPreview
	res.WorkflowName = def.Name
	res.CreatedFiles = e.cfg.Writer.PlannedFiles(deliverable.Context{Issue: issue, Workflow: def, Now: e.cfg.Now()})
	res.Branch = gitops.BranchName(issue.Number, def.Name)
	e.applyHandoff(res, issue, def)
	return res
}

// checkProcessingGuard returns a short-circuit result if the issue is
// already being processed, or a timeout error result if a processing
// record went stale.
func (e *Engine) checkProcessingGuard(number int) *Result {
	rec, err := e.cfg.Store.Get(number)
	if err != nil || rec == nil || rec.Status != state.StatusProcessing {
		return nil
	}

	if rec.StartedAt != nil && e.cfg.Now().Sub(*rec.StartedAt) > e.cfg.ProcessingTimeout {
		res := &Result{
			IssueNumber:   number,
			Status:        state.StatusError,
			ErrorCode:     CodeProcessingTimeout,
			ErrorMessage:  fmt.Sprintf("issue #%d processing timed out after %s", number, e.cfg.ProcessingTimeout),
			ExecutionMode: ModePrimary,
		}
		e.persistResult(res)
		return res
	}

	// Idempotent re-entry: report processing without re-running.
	return &Result{
		IssueNumber:   number,
		Status:        state.StatusProcessing,
		ErrorMessage:  fmt.Sprintf("issue #%d is already being processed", number),
		ExecutionMode: ModePrimary,
	}
}

// findWorkflow wraps the catalog lookup in the shared retry utility.
// A panicking source (e.g. a torn refresh) counts as a retryable failure.
func (e *Engine) findWorkflow(ctx context.Context, labels []string) (def *workflow.Definition, msg string, err error) {
	err = retry.Do(ctx, retry.Config{
		MaxRetries: lookupMaxRetries,
		BaseDelay:  500 * time.Millisecond,
		RetryAll:   true,
		Logger:     e.cfg.Logger,
	}, func() (opErr error) {
		defer func() {
			if r := recover(); r != nil {
				opErr = fmt.Errorf("workflow lookup: %v", r)
			}
		}()
		def, msg = e.cfg.Source.BestMatch(labels)
		return nil
	})
	return def, msg, err
}

func (e *Engine) extract(ctx context.Context, issue github.Issue) map[string]string {
	if e.cfg.Extractor == nil {
		return nil
	}
	extra, err := e.cfg.Extractor.Extract(ctx, issue)
	if err != nil {
		e.logf("content extraction failed for issue #%d (continuing): %v", issue.Number, err)
		return nil
	}
	return extra
}

func (e *Engine) applyHandoff(res *Result, issue github.Issue, def *workflow.Definition) {
	if e.cfg.Handoff == nil {
		return
	}
	res.Assignee = e.cfg.Handoff.Assignee
	due := e.cfg.Now().Add(e.cfg.Handoff.DueAfter).UTC()
	res.DueAt = &due
	res.Summary = fmt.Sprintf("Issue #%d (%s) processed by workflow %s: %d deliverable(s) generated.",
		issue.Number, issue.Title, def.Name, len(res.CreatedFiles))
	res.Guidance = buildGuidance(res, def)
}

func buildGuidance(res *Result, def *workflow.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Next steps for %s\n\n", res.Assignee)
	fmt.Fprintf(&b, "Workflow `%s` generated the following deliverables:\n\n", def.Name)
	for _, f := range res.CreatedFiles {
		fmt.Fprintf(&b, "- `%s`\n", f)
	}
	if res.Branch != "" {
		fmt.Fprintf(&b, "\nReview them on branch `%s`", res.Branch)
		if res.DueAt != nil {
			fmt.Fprintf(&b, " by %s", res.DueAt.Format("2006-01-02 15:04 MST"))
		}
		b.WriteString(".\n")
	}
	b.WriteString("\nComplete every `_To be completed._` section, then close the issue.\n")
	return b.String()
}

func clarificationMessage(matchMsg string, suggestions []string) string {
	if len(suggestions) == 0 {
		return matchMsg
	}
	return fmt.Sprintf("%s (available workflow labels: %s)", matchMsg, strings.Join(suggestions, ", "))
}

// persistResult writes the terminal state for a call path. Persistence
// failures are logged, never propagated: the result is already decided.
func (e *Engine) persistResult(res *Result) {
	err := e.cfg.Store.UpdateStatus(res.IssueNumber, res.Status, func(r *state.Record) {
		r.WorkflowName = res.WorkflowName
		r.CreatedFiles = res.CreatedFiles
		r.ErrorCode = res.ErrorCode
		r.ErrorMessage = res.ErrorMessage
		r.Clarification = ""
		if res.ClarificationNeeded {
			r.Clarification = res.ErrorMessage
		}
		r.ExecutionMode = string(res.ExecutionMode)
		if res.Status == state.StatusCompleted {
			now := e.cfg.Now().UTC()
			r.CompletedAt = &now
		}
	})
	if err != nil {
		e.logf("failed to persist state for issue #%d: %v", res.IssueNumber, err)
	}
}

func (e *Engine) mustPersist(number int, status state.Status, merge func(*state.Record)) {
	if err := e.cfg.Store.UpdateStatus(number, status, merge); err != nil {
		// Treated as unexpected: surfaces through the top-level recover.
		panic(fmt.Sprintf("state store write failed: %v", err))
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.cfg.Logger != nil {
		fmt.Fprintf(e.cfg.Logger, format+"\n", args...)
	}
}

func validateIssue(issue github.Issue) (code, msg string) {
	if issue.Number <= 0 {
		return CodeInvalidIssueNumber, fmt.Sprintf("invalid issue number: %d", issue.Number)
	}
	if strings.TrimSpace(issue.Title) == "" {
		return CodeEmptyTitle, fmt.Sprintf("issue #%d has an empty title", issue.Number)
	}
	for _, l := range issue.Labels {
		if strings.TrimSpace(l) == "" {
			return CodeInvalidLabels, fmt.Sprintf("issue #%d has a blank label", issue.Number)
		}
	}
	return "", ""
}
