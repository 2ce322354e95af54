package assign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jywlabs/sitetriage/internal/github"
	"github.com/jywlabs/sitetriage/internal/llm"
)

// Score weights and thresholds for the AI-assisted agent.
const (
	WeightLLMConfidence = 0.70
	WeightAgreement     = 0.20
	WeightHeuristic     = 0.10

	DefaultHighConfidence   = 0.80
	DefaultMediumConfidence = 0.60

	// Applied when no historical data exists for a workflow.
	defaultHeuristicScore = 0.50
)

// ErrAnalyzerRequired rejects AIAgent construction without a live LLM
// collaborator. There is no silent fallback to the deterministic path.
var ErrAnalyzerRequired = errors.New("AI assignment requires an LLM analyzer")

// Candidate is one scored workflow for an issue.
type Candidate struct {
	Workflow string
	Score    float64
}

// AIAgent scores workflows per issue by combining the LLM's confidence
// with deterministic agreement and a historical-success heuristic.
type AIAgent struct {
	GitHub     github.Collaborator
	Catalog    WorkflowSource
	Analyzer   llm.Analyzer
	SkipLabels []string
	Limit      int
	Logger     io.Writer

	// Thresholds on the combined score. Zero values take the defaults.
	HighConfidence   float64
	MediumConfidence float64

	// SuccessRates overrides the historical heuristic per workflow name.
	SuccessRates map[string]float64
}

// NewAIAgent creates an AI-assisted agent. The analyzer is mandatory.
func NewAIAgent(hub github.Collaborator, catalog WorkflowSource, analyzer llm.Analyzer) (*AIAgent, error) {
	if analyzer == nil {
		return nil, ErrAnalyzerRequired
	}
	return &AIAgent{
		GitHub:           hub,
		Catalog:          catalog,
		Analyzer:         analyzer,
		SkipLabels:       DefaultSkipLabels,
		HighConfidence:   DefaultHighConfidence,
		MediumConfidence: DefaultMediumConfidence,
	}, nil
}

// Run examines unassigned gate-labeled issues, scores workflows for
// each, and acts according to the confidence band the best score falls
// in. Analyzer failures abort the run.
func (a *AIAgent) Run(ctx context.Context) (*Report, error) {
	if a.Analyzer == nil {
		return nil, ErrAnalyzerRequired
	}
	high, medium := a.thresholds()

	candidates, err := fetchCandidates(ctx, a.GitHub, a.SkipLabels, a.Limit)
	if err != nil {
		return nil, err
	}

	report := &Report{Examined: len(candidates)}
	for _, issue := range candidates {
		ranked, err := a.scoreIssue(ctx, issue)
		if err != nil {
			return report, fmt.Errorf("analyze issue #%d: %w", issue.Number, err)
		}

		action, err := a.act(ctx, issue, ranked, high, medium)
		if err != nil {
			return report, err
		}
		report.record(action)
		a.logf("issue #%d: %s %s (score %.2f)", issue.Number, action.Kind, action.Workflow, action.Score)
	}
	return report, nil
}

func (a *AIAgent) thresholds() (high, medium float64) {
	high, medium = a.HighConfidence, a.MediumConfidence
	if high <= 0 {
		high = DefaultHighConfidence
	}
	if medium <= 0 {
		medium = DefaultMediumConfidence
	}
	return high, medium
}

// scoreIssue asks the analyzer about the issue and combines its
// per-workflow confidence with the deterministic match and the
// historical heuristic. Workflow names the analyzer invents are
// discarded.
func (a *AIAgent) scoreIssue(ctx context.Context, issue github.Issue) ([]Candidate, error) {
	analysis, err := a.Analyzer.AnalyzeIssue(ctx, issue, a.Catalog.Names())
	if err != nil {
		return nil, err
	}

	deterministic := ""
	if matches := a.Catalog.FindMatching(issue.Labels); len(matches) == 1 {
		deterministic = matches[0].Name
	}

	var ranked []Candidate
	for name, confidence := range analysis.ConfidenceScores {
		if a.Catalog.Get(name) == nil {
			a.logf("issue #%d: discarding unknown workflow %q from analysis", issue.Number, name)
			continue
		}
		if confidence < 0 {
			confidence = 0
		} else if confidence > 1 {
			confidence = 1
		}

		score := WeightLLMConfidence * confidence
		if name == deterministic {
			score += WeightAgreement
		}
		score += WeightHeuristic * a.heuristic(name)
		ranked = append(ranked, Candidate{Workflow: name, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Workflow < ranked[j].Workflow
	})
	return ranked, nil
}

func (a *AIAgent) heuristic(name string) float64 {
	if rate, ok := a.SuccessRates[name]; ok {
		return rate
	}
	return defaultHeuristicScore
}

func (a *AIAgent) act(ctx context.Context, issue github.Issue, ranked []Candidate, high, medium float64) (Action, error) {
	if len(ranked) == 0 {
		if err := requestClarification(ctx, a.GitHub, issue, a.Catalog.Suggestions(issue.Labels)); err != nil {
			return Action{}, err
		}
		return Action{IssueNumber: issue.Number, Kind: ActionClarification}, nil
	}

	best := ranked[0]
	def := a.Catalog.Get(best.Workflow)

	switch {
	case best.Score >= high:
		if err := attachWorkflow(ctx, a.GitHub, issue, def); err != nil {
			return Action{}, err
		}
		return Action{IssueNumber: issue.Number, Kind: ActionAssigned, Workflow: best.Workflow, Score: best.Score}, nil

	case best.Score >= medium:
		if err := a.requestReview(ctx, issue, ranked); err != nil {
			return Action{}, err
		}
		return Action{IssueNumber: issue.Number, Kind: ActionNeedsReview, Workflow: best.Workflow, Score: best.Score}, nil

	default:
		if err := requestClarification(ctx, a.GitHub, issue, a.Catalog.Suggestions(issue.Labels)); err != nil {
			return Action{}, err
		}
		return Action{IssueNumber: issue.Number, Kind: ActionClarification, Score: best.Score}, nil
	}
}

// requestReview labels the issue for human review and posts the ranked
// candidate list. No workflow is assigned.
func (a *AIAgent) requestReview(ctx context.Context, issue github.Issue, ranked []Candidate) error {
	if err := a.GitHub.AddLabels(ctx, issue.Number, []string{NeedsReviewLabel}); err != nil {
		return fmt.Errorf("attach review label to #%d: %w", issue.Number, err)
	}

	var b strings.Builder
	b.WriteString("Workflow suggestions (confidence too low to auto-assign):\n")
	for i, c := range ranked {
		if i == MaxSuggestions {
			break
		}
		fmt.Fprintf(&b, "%d. `%s` (score %.2f)", i+1, c.Workflow, c.Score)
		if def := a.Catalog.Get(c.Workflow); def != nil {
			fmt.Fprintf(&b, ": add %s", formatLabels(def.TriggerLabels))
		}
		b.WriteString("\n")
	}
	if err := a.GitHub.CreateComment(ctx, issue.Number, b.String()); err != nil {
		return fmt.Errorf("comment on #%d: %w", issue.Number, err)
	}
	return nil
}

func formatLabels(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = "`" + l + "`"
	}
	return strings.Join(quoted, ", ")
}

func (a *AIAgent) logf(format string, args ...any) {
	if a.Logger != nil {
		fmt.Fprintf(a.Logger, format+"\n", args...)
	}
}
