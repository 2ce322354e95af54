// Package assign implements the pre-processing agents that decide which
// workflow trigger labels to attach to open gate-labeled issues.
package assign

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jywlabs/sitetriage/internal/github"
	"github.com/jywlabs/sitetriage/internal/template"
	"github.com/jywlabs/sitetriage/internal/workflow"
)

// Labels the agents attach or honor.
const (
	ClarificationLabel = "needs-clarification"
	NeedsReviewLabel   = "needs-review"
)

// DefaultSkipLabels excludes issues already routed elsewhere.
var DefaultSkipLabels = []string{"feature", ClarificationLabel}

// MaxSuggestions caps the suggestion list in clarification comments.
const MaxSuggestions = 5

// WorkflowSource is the catalog surface the agents consume.
type WorkflowSource interface {
	FindMatching(labels []string) []*workflow.Definition
	Suggestions(labels []string) []string
	Names() []string
	Get(name string) *workflow.Definition
}

// ActionKind names the decision taken for one issue.
type ActionKind string

const (
	ActionAssigned      ActionKind = "assigned"
	ActionNeedsReview   ActionKind = "needs_review"
	ActionClarification ActionKind = "clarification"
	ActionSkipped       ActionKind = "skipped"
)

// Action records the decision for one issue.
type Action struct {
	IssueNumber int
	Kind        ActionKind
	Workflow    string
	Score       float64
	Reason      string
}

// Report summarizes one agent run.
type Report struct {
	Examined    int
	Assigned    int
	NeedsReview int
	Clarified   int
	Skipped     int
	Actions     []Action
}

func (r *Report) record(a Action) {
	r.Actions = append(r.Actions, a)
	switch a.Kind {
	case ActionAssigned:
		r.Assigned++
	case ActionNeedsReview:
		r.NeedsReview++
	case ActionClarification:
		r.Clarified++
	default:
		r.Skipped++
	}
}

// Agent is the deterministic label-matching assignment agent.
type Agent struct {
	GitHub     github.Collaborator
	Catalog    WorkflowSource
	SkipLabels []string
	Limit      int // 0 means no cap
	Logger     io.Writer
}

// NewAgent creates a deterministic agent with default skip labels.
func NewAgent(hub github.Collaborator, catalog WorkflowSource) *Agent {
	return &Agent{
		GitHub:     hub,
		Catalog:    catalog,
		SkipLabels: DefaultSkipLabels,
	}
}

// Run examines unassigned gate-labeled issues and attaches workflow
// trigger labels where exactly one workflow matches. It never guesses
// between multiple matches.
func (a *Agent) Run(ctx context.Context) (*Report, error) {
	candidates, err := fetchCandidates(ctx, a.GitHub, a.SkipLabels, a.Limit)
	if err != nil {
		return nil, err
	}

	report := &Report{Examined: len(candidates)}
	for _, issue := range candidates {
		action, err := a.decide(ctx, issue)
		if err != nil {
			return report, err
		}
		report.record(action)
		a.logf("issue #%d: %s %s", issue.Number, action.Kind, action.Workflow)
	}
	return report, nil
}

func (a *Agent) decide(ctx context.Context, issue github.Issue) (Action, error) {
	matches := a.Catalog.FindMatching(issue.Labels)
	switch {
	case len(matches) == 1:
		def := matches[0]
		if err := attachWorkflow(ctx, a.GitHub, issue, def); err != nil {
			return Action{}, err
		}
		return Action{IssueNumber: issue.Number, Kind: ActionAssigned, Workflow: def.Name}, nil

	case len(matches) == 0:
		if err := requestClarification(ctx, a.GitHub, issue, a.Catalog.Suggestions(issue.Labels)); err != nil {
			return Action{}, err
		}
		return Action{IssueNumber: issue.Number, Kind: ActionClarification}, nil

	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Name)
		}
		return Action{
			IssueNumber: issue.Number,
			Kind:        ActionSkipped,
			Reason:      fmt.Sprintf("multiple workflows match (%s)", strings.Join(names, ", ")),
		}, nil
	}
}

// fetchCandidates lists open gate-labeled issues, keeping only the
// unassigned ones without skip labels, capped at limit when positive.
func fetchCandidates(ctx context.Context, hub github.Collaborator, skip []string, limit int) ([]github.Issue, error) {
	issues, err := hub.ListIssuesByLabel(ctx, template.GateLabel)
	if err != nil {
		return nil, fmt.Errorf("list candidate issues: %w", err)
	}

	var out []github.Issue
	for _, issue := range issues {
		if len(issue.Assignees) > 0 {
			continue
		}
		if hasAnyLabel(issue, skip) {
			continue
		}
		out = append(out, issue)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// attachWorkflow adds the workflow's trigger labels the issue does not
// already carry and posts an explanatory comment.
func attachWorkflow(ctx context.Context, hub github.Collaborator, issue github.Issue, def *workflow.Definition) error {
	var missing []string
	for _, l := range def.TriggerLabels {
		if !issue.HasLabel(l) {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		if err := hub.AddLabels(ctx, issue.Number, missing); err != nil {
			return fmt.Errorf("attach labels to #%d: %w", issue.Number, err)
		}
	}

	body := fmt.Sprintf("Matched workflow **%s**: %s\n\nLabels attached so the next processing run picks this issue up.",
		def.Name, def.Description)
	if err := hub.CreateComment(ctx, issue.Number, body); err != nil {
		return fmt.Errorf("comment on #%d: %w", issue.Number, err)
	}
	return nil
}

// requestClarification labels the issue for follow-up and posts the top
// workflow suggestions.
func requestClarification(ctx context.Context, hub github.Collaborator, issue github.Issue, suggestions []string) error {
	if err := hub.AddLabels(ctx, issue.Number, []string{ClarificationLabel}); err != nil {
		return fmt.Errorf("attach clarification label to #%d: %w", issue.Number, err)
	}

	if len(suggestions) > MaxSuggestions {
		suggestions = suggestions[:MaxSuggestions]
	}
	var b strings.Builder
	b.WriteString("No workflow matches this issue's labels. ")
	b.WriteString("Add one of the following trigger labels to route it:\n")
	for _, s := range suggestions {
		fmt.Fprintf(&b, "- `%s`\n", s)
	}
	if len(suggestions) == 0 {
		b.WriteString("\nNo workflows are currently defined.")
	}
	if err := hub.CreateComment(ctx, issue.Number, b.String()); err != nil {
		return fmt.Errorf("comment on #%d: %w", issue.Number, err)
	}
	return nil
}

func hasAnyLabel(issue github.Issue, labels []string) bool {
	for _, l := range labels {
		if issue.HasLabel(l) {
			return true
		}
	}
	return false
}

func (a *Agent) logf(format string, args ...any) {
	if a.Logger != nil {
		fmt.Fprintf(a.Logger, format+"\n", args...)
	}
}
