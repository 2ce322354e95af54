package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jywlabs/sitetriage/internal/engine"
	"github.com/jywlabs/sitetriage/internal/github"
	"github.com/jywlabs/sitetriage/internal/state"
)

// fakeProcessor returns canned results keyed by issue number and records
// which path (process vs preview) handled each issue.
type fakeProcessor struct {
	mu       sync.Mutex
	results  map[int]*engine.Result
	slow     map[int]time.Duration
	procs    []int
	previews []int
}

func (f *fakeProcessor) result(number int) *engine.Result {
	if res, ok := f.results[number]; ok {
		copied := *res
		return &copied
	}
	return &engine.Result{IssueNumber: number, Status: state.StatusCompleted}
}

func (f *fakeProcessor) ProcessIssue(ctx context.Context, issue github.Issue) *engine.Result {
	if d, ok := f.slow[issue.Number]; ok {
		time.Sleep(d)
	}
	f.mu.Lock()
	f.procs = append(f.procs, issue.Number)
	f.mu.Unlock()
	return f.result(issue.Number)
}

func (f *fakeProcessor) GeneratePreview(ctx context.Context, issue github.Issue) *engine.Result {
	f.mu.Lock()
	f.previews = append(f.previews, issue.Number)
	f.mu.Unlock()
	res := f.result(issue.Number)
	res.Status = state.StatusPreview
	return res
}

// fakeHub implements github.Collaborator for discovery and fetch tests.
type fakeHub struct {
	issues  []github.Issue
	listErr error
	getErr  map[int]error
}

func (f *fakeHub) GetIssue(ctx context.Context, number int) (*github.Issue, error) {
	if err := f.getErr[number]; err != nil {
		return nil, err
	}
	for _, issue := range f.issues {
		if issue.Number == number {
			copied := issue
			return &copied, nil
		}
	}
	return &github.Issue{Number: number, Title: fmt.Sprintf("issue %d", number), Labels: []string{"site-monitor"}}, nil
}

func (f *fakeHub) ListIssuesByLabel(ctx context.Context, label string) ([]github.Issue, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.issues, nil
}

func (f *fakeHub) AddLabels(ctx context.Context, number int, labels []string) error  { return nil }
func (f *fakeHub) RemoveLabel(ctx context.Context, number int, label string) error  { return nil }
func (f *fakeHub) CreateComment(ctx context.Context, number int, body string) error { return nil }
func (f *fakeHub) AddAssignees(ctx context.Context, number int, a []string) error   { return nil }

func numbers(from, to int) []int {
	var out []int
	for n := from; n <= to; n++ {
		out = append(out, n)
	}
	return out
}

func newTestCoordinator(proc *fakeProcessor, hub *fakeHub, mutate func(*Config)) *Coordinator {
	cfg := Config{
		Engine:         proc,
		GitHub:         hub,
		MaxBatchSize:   10,
		MaxWorkers:     3,
		IssueTimeout:   2 * time.Second,
		RetryCount:     1,
		RetryDelay:     time.Millisecond,
		RateLimitPause: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		count int
		size  int
		want  []int // batch sizes
	}{
		{"exact multiple", 20, 10, []int{10, 10}},
		{"remainder", 23, 10, []int{10, 10, 3}},
		{"single partial", 3, 10, []int{3}},
		{"empty", 0, 10, nil},
		{"size one", 4, 1, []int{1, 1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Partition(numbers(1, tt.count), tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d batches, want %d", len(got), len(tt.want))
			}
			next := 1
			for i, batch := range got {
				if len(batch) != tt.want[i] {
					t.Errorf("batch %d: size %d, want %d", i, len(batch), tt.want[i])
				}
				for _, n := range batch {
					if n != next {
						t.Fatalf("batch %d: got %d, want %d (order not preserved)", i, n, next)
					}
					next++
				}
			}
		})
	}
}

func TestProcessIssuesMetricsConservation(t *testing.T) {
	proc := &fakeProcessor{results: map[int]*engine.Result{
		2: {IssueNumber: 2, Status: state.StatusError, ErrorCode: engine.CodeExecutionFailed},
		3: {IssueNumber: 3, Status: state.StatusNeedsClarification},
		5: {IssueNumber: 5, Status: state.StatusPending},
	}}
	coord := newTestCoordinator(proc, &fakeHub{}, nil)

	report := coord.ProcessIssues(context.Background(), numbers(1, 6), false)

	m := report.Metrics
	if m.TotalIssues != 6 || m.ProcessedCount != 6 {
		t.Fatalf("TotalIssues=%d ProcessedCount=%d, want 6 and 6", m.TotalIssues, m.ProcessedCount)
	}
	sum := m.SuccessCount + m.ErrorCount + m.ClarificationCount + m.PreviewCount + m.SkippedCount
	if sum != m.ProcessedCount {
		t.Errorf("bucket sum %d != processed %d", sum, m.ProcessedCount)
	}
	if m.SuccessCount != 3 || m.ErrorCount != 1 || m.ClarificationCount != 1 || m.SkippedCount != 1 {
		t.Errorf("buckets success=%d error=%d clar=%d skipped=%d", m.SuccessCount, m.ErrorCount, m.ClarificationCount, m.SkippedCount)
	}
	if m.StartedAt.IsZero() || m.EndedAt.IsZero() || m.EndedAt.Before(m.StartedAt) {
		t.Errorf("timestamps not set correctly: %v .. %v", m.StartedAt, m.EndedAt)
	}
	if len(report.Results) != 6 {
		t.Errorf("got %d results, want 6", len(report.Results))
	}
}

func TestProcessIssuesStopOnFirstError(t *testing.T) {
	proc := &fakeProcessor{results: map[int]*engine.Result{
		2: {IssueNumber: 2, Status: state.StatusError, ErrorCode: engine.CodeUnexpected},
	}}
	coord := newTestCoordinator(proc, &fakeHub{}, func(cfg *Config) {
		cfg.MaxBatchSize = 5
		cfg.StopOnFirstError = true
	})

	report := coord.ProcessIssues(context.Background(), numbers(1, 12), false)

	// The erroring batch drains in full; later batches never start.
	if report.Metrics.ProcessedCount != 5 {
		t.Fatalf("ProcessedCount=%d, want first batch size 5", report.Metrics.ProcessedCount)
	}
	if report.Metrics.ErrorCount != 1 {
		t.Errorf("ErrorCount=%d, want 1", report.Metrics.ErrorCount)
	}
	for _, n := range proc.procs {
		if n > 5 {
			t.Errorf("issue %d processed after stop", n)
		}
	}
}

func TestProcessIssuesDryRunUsesPreview(t *testing.T) {
	proc := &fakeProcessor{}
	coord := newTestCoordinator(proc, &fakeHub{}, nil)

	report := coord.ProcessIssues(context.Background(), numbers(1, 4), true)

	if len(proc.procs) != 0 {
		t.Errorf("dry run hit the processing path for %v", proc.procs)
	}
	if len(proc.previews) != 4 {
		t.Errorf("preview path handled %d issues, want 4", len(proc.previews))
	}
	if report.Metrics.PreviewCount != 4 {
		t.Errorf("PreviewCount=%d, want 4", report.Metrics.PreviewCount)
	}
}

func TestProcessIssuesFetchRetryExhaustion(t *testing.T) {
	hub := &fakeHub{getErr: map[int]error{7: errors.New("boom")}}
	coord := newTestCoordinator(&fakeProcessor{}, hub, nil)

	report := coord.ProcessIssues(context.Background(), []int{7}, false)

	if len(report.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(report.Results))
	}
	res := report.Results[0]
	if res.Status != state.StatusError || res.ErrorCode != engine.CodeUnexpected {
		t.Errorf("status=%s code=%s, want error/%s", res.Status, res.ErrorCode, engine.CodeUnexpected)
	}
	if !strings.Contains(res.ErrorMessage, "fetch issue #7") {
		t.Errorf("message %q missing fetch context", res.ErrorMessage)
	}
}

func TestProcessIssuesPerIssueTimeout(t *testing.T) {
	proc := &fakeProcessor{slow: map[int]time.Duration{3: 500 * time.Millisecond}}
	coord := newTestCoordinator(proc, &fakeHub{}, func(cfg *Config) {
		cfg.IssueTimeout = 50 * time.Millisecond
		cfg.RetryCount = 0
	})

	report := coord.ProcessIssues(context.Background(), []int{1, 3}, false)

	var timedOut *engine.Result
	for _, res := range report.Results {
		if res.IssueNumber == 3 {
			timedOut = res
		}
	}
	if timedOut == nil {
		t.Fatal("no result for the slow issue")
	}
	if timedOut.Status != state.StatusError || timedOut.ErrorCode != engine.CodeProcessingTimeout {
		t.Errorf("status=%s code=%s, want error/%s", timedOut.Status, timedOut.ErrorCode, engine.CodeProcessingTimeout)
	}
	if report.Metrics.SuccessCount != 1 {
		t.Errorf("fast issue should still succeed, SuccessCount=%d", report.Metrics.SuccessCount)
	}
}

func TestProcessIssuesCancelBetweenBatches(t *testing.T) {
	proc := &fakeProcessor{}
	var coord *Coordinator
	coord = newTestCoordinator(proc, &fakeHub{}, func(cfg *Config) {
		cfg.MaxBatchSize = 2
		cfg.Progress = func(ev Event) {
			if ev.Phase == "batch_done" && ev.BatchIndex == 0 {
				coord.Cancel()
			}
		}
	})

	report := coord.ProcessIssues(context.Background(), numbers(1, 6), false)

	if report.Metrics.ProcessedCount != 2 {
		t.Errorf("ProcessedCount=%d, want only the first batch (2)", report.Metrics.ProcessedCount)
	}
}

func TestProcessIssuesEmptyInput(t *testing.T) {
	coord := newTestCoordinator(&fakeProcessor{}, &fakeHub{}, nil)

	report := coord.ProcessIssues(context.Background(), nil, false)

	if report.Metrics.ProcessedCount != 0 || len(report.Results) != 0 {
		t.Errorf("empty input produced results: %+v", report.Metrics)
	}
	if report.Metrics.StartedAt.IsZero() || report.Metrics.EndedAt.IsZero() {
		t.Error("timestamps must be stamped even for an empty run")
	}
}

func TestFindSiteMonitorIssues(t *testing.T) {
	issues := []github.Issue{
		{Number: 10, Labels: []string{"site-monitor", "bug"}},
		{Number: 11, Labels: []string{"site-monitor", "priority-high"}},
		{Number: 12, Labels: []string{"site-monitor"}, Assignees: []string{"alice"}},
		{Number: 13, Labels: []string{"site-monitor", "priority-critical"}},
	}

	tests := []struct {
		name    string
		filters Filters
		want    []int
	}{
		{"default excludes assigned", Filters{}, []int{10, 11, 13}},
		{"none excludes assigned", Filters{Assignee: "none"}, []int{10, 11, 13}},
		{"all includes assigned", Filters{Assignee: "all"}, []int{10, 11, 12, 13}},
		{"specific assignee", Filters{Assignee: "alice"}, []int{12}},
		{"label filter", Filters{Assignee: "all", AnyLabels: []string{"bug"}}, []int{10}},
		{"priority sort", Filters{SortByPriority: true}, []int{13, 11, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord := newTestCoordinator(&fakeProcessor{}, &fakeHub{issues: issues}, func(cfg *Config) {
				cfg.PriorityLabels = []string{"priority-critical", "priority-high"}
			})
			got := coord.FindSiteMonitorIssues(context.Background(), tt.filters)
			if len(got.IssueNumbers) != len(tt.want) {
				t.Fatalf("got %v, want %v", got.IssueNumbers, tt.want)
			}
			for i, n := range tt.want {
				if got.IssueNumbers[i] != n {
					t.Fatalf("got %v, want %v", got.IssueNumbers, tt.want)
				}
			}
		})
	}
}

func TestFindSiteMonitorIssuesListFailure(t *testing.T) {
	var log strings.Builder
	coord := newTestCoordinator(&fakeProcessor{}, &fakeHub{listErr: errors.New("api down")}, func(cfg *Config) {
		cfg.Logger = &log
	})

	got := coord.FindSiteMonitorIssues(context.Background(), Filters{})

	if len(got.IssueNumbers) != 0 {
		t.Errorf("failed discovery returned issues: %v", got.IssueNumbers)
	}
	if !strings.Contains(log.String(), "discovery failed") {
		t.Errorf("failure not logged: %q", log.String())
	}
}

func TestCopilotAssignmentAggregation(t *testing.T) {
	due1 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	due2 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	proc := &fakeProcessor{results: map[int]*engine.Result{
		1: {IssueNumber: 1, Status: state.StatusCompleted, Assignee: "copilot", DueAt: &due1},
		2: {IssueNumber: 2, Status: state.StatusCompleted, Assignee: "copilot", DueAt: &due2},
		3: {IssueNumber: 3, Status: state.StatusError},
	}}
	coord := newTestCoordinator(proc, &fakeHub{}, nil)

	report := coord.ProcessIssues(context.Background(), []int{1, 2, 3}, false)

	a := report.Metrics.Assignments
	if a.Count != 2 {
		t.Errorf("Count=%d, want 2", a.Count)
	}
	if len(a.Assignees) != 1 || a.Assignees[0] != "copilot" {
		t.Errorf("Assignees=%v, want deduplicated [copilot]", a.Assignees)
	}
	next := a.NextDueAt()
	if next == nil || !next.Equal(due2) {
		t.Errorf("NextDueAt=%v, want %v", next, due2)
	}
}

func TestWriteResults(t *testing.T) {
	proc := &fakeProcessor{results: map[int]*engine.Result{
		2: {IssueNumber: 2, Status: state.StatusError, ErrorCode: engine.CodeUnexpected},
	}}
	coord := newTestCoordinator(proc, &fakeHub{}, nil)
	report := coord.ProcessIssues(context.Background(), []int{1, 2}, false)

	path := filepath.Join(t.TempDir(), "results.json")
	if err := WriteResults(path, report); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if doc["total_issues"].(float64) != 2 {
		t.Errorf("total_issues=%v, want 2", doc["total_issues"])
	}
	results, ok := doc["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results=%v, want 2 entries", doc["results"])
	}
	metrics, ok := doc["metrics"].(map[string]any)
	if !ok {
		t.Fatal("metrics section missing")
	}
	if metrics["success_count"].(float64) != 1 || metrics["error_count"].(float64) != 1 {
		t.Errorf("metrics counts wrong: %v", metrics)
	}
	if _, ok := metrics["copilot_assignments"]; !ok {
		t.Error("copilot_assignments section missing")
	}
}
