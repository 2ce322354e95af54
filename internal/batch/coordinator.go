// Package batch runs the processing engine over many issues with bounded
// concurrency, per-issue retries, rate limiting and aggregate metrics.
package batch

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jywlabs/sitetriage/internal/engine"
	"github.com/jywlabs/sitetriage/internal/github"
	"github.com/jywlabs/sitetriage/internal/retry"
	"github.com/jywlabs/sitetriage/internal/state"
	"github.com/jywlabs/sitetriage/internal/template"
)

// Defaults for the coordinator's policy knobs.
const (
	DefaultMaxBatchSize   = 10
	DefaultMaxWorkers     = 3
	DefaultIssueTimeout   = 5 * time.Minute
	DefaultRetryCount     = 2
	DefaultRetryDelay     = 1 * time.Second
	DefaultRateLimitPause = 500 * time.Millisecond
)

// Processor is the engine-facing contract. *engine.Engine satisfies it.
type Processor interface {
	ProcessIssue(ctx context.Context, issue github.Issue) *engine.Result
	GeneratePreview(ctx context.Context, issue github.Issue) *engine.Result
}

// Event is delivered to the progress callback. The callback is a side
// channel only and never alters control flow.
type Event struct {
	Phase      string // "batch_start", "issue_done", "batch_done"
	BatchIndex int    // 0-based
	BatchCount int
	Result     *engine.Result // set for issue_done
}

// Config holds the coordinator's collaborators and policy knobs.
type Config struct {
	Engine Processor
	GitHub github.Collaborator

	MaxBatchSize     int
	MaxWorkers       int
	IssueTimeout     time.Duration
	RetryCount       int
	RetryDelay       time.Duration
	RateLimitPause   time.Duration
	StopOnFirstError bool
	PriorityLabels   []string // highest priority first

	Progress func(Event)
	Logger   io.Writer
}

// Coordinator fans the engine out over batches of issues.
type Coordinator struct {
	cfg       Config
	cancelled atomic.Bool
}

// New creates a coordinator, applying defaults.
func New(cfg Config) *Coordinator {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.IssueTimeout <= 0 {
		cfg.IssueTimeout = DefaultIssueTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = DefaultRetryCount
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.RateLimitPause <= 0 {
		cfg.RateLimitPause = DefaultRateLimitPause
	}
	return &Coordinator{cfg: cfg}
}

// Cancel requests a cooperative stop. The flag is checked between
// batches; in-flight work finishes.
func (c *Coordinator) Cancel() {
	c.cancelled.Store(true)
}

// Filters restricts issue discovery.
type Filters struct {
	// Assignee: "" (default) and "none" select unassigned issues only;
	// "all" includes assigned issues; anything else matches that username.
	Assignee       string
	AnyLabels      []string // keep issues carrying at least one of these
	SortByPriority bool
}

// Discovery is the result of FindSiteMonitorIssues.
type Discovery struct {
	IssueNumbers []int
	Filters      Filters
	Issues       []github.Issue
}

// FindSiteMonitorIssues queries the collaborator for gate-labeled open
// issues and applies the filters. Collaborator failures yield an empty
// discovery, never an error.
func (c *Coordinator) FindSiteMonitorIssues(ctx context.Context, f Filters) Discovery {
	out := Discovery{Filters: f}

	issues, err := c.cfg.GitHub.ListIssuesByLabel(ctx, template.GateLabel)
	if err != nil {
		c.logf("issue discovery failed: %v", err)
		return out
	}

	for _, issue := range issues {
		if !matchesAssignee(issue, f.Assignee) {
			continue
		}
		if len(f.AnyLabels) > 0 && !hasAnyLabel(issue, f.AnyLabels) {
			continue
		}
		out.Issues = append(out.Issues, issue)
	}

	if f.SortByPriority && len(c.cfg.PriorityLabels) > 0 {
		ranks := make(map[string]int, len(c.cfg.PriorityLabels))
		for i, l := range c.cfg.PriorityLabels {
			ranks[l] = i
		}
		sort.SliceStable(out.Issues, func(i, j int) bool {
			ri, rj := priorityRank(out.Issues[i], ranks), priorityRank(out.Issues[j], ranks)
			if ri != rj {
				return ri < rj
			}
			return out.Issues[i].Number < out.Issues[j].Number
		})
	}

	for _, issue := range out.Issues {
		out.IssueNumbers = append(out.IssueNumbers, issue.Number)
	}
	return out
}

func matchesAssignee(issue github.Issue, filter string) bool {
	switch filter {
	case "", "none":
		return len(issue.Assignees) == 0
	case "all":
		return true
	default:
		for _, a := range issue.Assignees {
			if a == filter {
				return true
			}
		}
		return false
	}
}

func hasAnyLabel(issue github.Issue, labels []string) bool {
	for _, l := range labels {
		if issue.HasLabel(l) {
			return true
		}
	}
	return false
}

func priorityRank(issue github.Issue, ranks map[string]int) int {
	best := len(ranks)
	for _, l := range issue.Labels {
		if r, ok := ranks[l]; ok && r < best {
			best = r
		}
	}
	return best
}

// RunReport is the outcome of one ProcessIssues call.
type RunReport struct {
	Results []*engine.Result
	Metrics *Metrics
}

// Partition splits numbers into order-preserving chunks of at most size.
func Partition(numbers []int, size int) [][]int {
	if size <= 0 {
		size = DefaultMaxBatchSize
	}
	var out [][]int
	for start := 0; start < len(numbers); start += size {
		end := start + size
		if end > len(numbers) {
			end = len(numbers)
		}
		out = append(out, numbers[start:end])
	}
	return out
}

// ProcessIssues runs the engine over the given issue numbers in bounded
// batches. Metrics always get start/end timestamps, even for an empty
// input. Batches never pipeline: batch N fully drains (and the
// stop-on-error check and rate-limit pause run) before batch N+1 starts.
func (c *Coordinator) ProcessIssues(ctx context.Context, numbers []int, dryRun bool) *RunReport {
	metrics := &Metrics{
		TotalIssues: len(numbers),
		StartedAt:   time.Now().UTC(),
	}
	report := &RunReport{Metrics: metrics}
	defer func() {
		metrics.EndedAt = time.Now().UTC()
	}()

	batches := Partition(numbers, c.cfg.MaxBatchSize)
	for bi, batch := range batches {
		if c.cancelled.Load() || ctx.Err() != nil {
			c.logf("run cancelled; %d batch(es) not started", len(batches)-bi)
			break
		}

		c.emit(Event{Phase: "batch_start", BatchIndex: bi, BatchCount: len(batches)})
		results := c.runBatch(ctx, batch, dryRun)

		// Aggregation happens here, after the batch drained, so the
		// metrics never see concurrent writers.
		stop := false
		for _, res := range results {
			metrics.record(res)
			report.Results = append(report.Results, res)
			c.emit(Event{Phase: "issue_done", BatchIndex: bi, BatchCount: len(batches), Result: res})
			if c.cfg.StopOnFirstError && res.Status == state.StatusError {
				stop = true
			}
		}
		c.emit(Event{Phase: "batch_done", BatchIndex: bi, BatchCount: len(batches)})

		if stop {
			c.logf("stopping after batch %d/%d: stop-on-first-error triggered", bi+1, len(batches))
			break
		}
		if bi < len(batches)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RateLimitPause):
			}
		}
	}

	return report
}

// runBatch dispatches one batch through a bounded worker pool and waits
// for it to drain. Results keep the batch's input order.
func (c *Coordinator) runBatch(ctx context.Context, batch []int, dryRun bool) []*engine.Result {
	workers := c.cfg.MaxWorkers
	if workers > len(batch) {
		workers = len(batch)
	}

	results := make([]*engine.Result, len(batch))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = c.runOne(ctx, batch[idx], dryRun)
			}
		}()
	}
	for idx := range batch {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	return results
}

// runOne awaits a single issue's processing with a timeout. The timeout
// wraps the whole call, retries included; a timed-out issue is not
// retried again by this layer.
func (c *Coordinator) runOne(ctx context.Context, number int, dryRun bool) *engine.Result {
	done := make(chan *engine.Result, 1)
	go func() {
		done <- c.processWithRetry(ctx, number, dryRun)
	}()

	select {
	case res := <-done:
		return res
	case <-time.After(c.cfg.IssueTimeout):
		return &engine.Result{
			IssueNumber:  number,
			Status:       state.StatusError,
			ErrorCode:    engine.CodeProcessingTimeout,
			ErrorMessage: fmt.Sprintf("issue #%d did not finish within %s", number, c.cfg.IssueTimeout),
		}
	}
}

// processWithRetry fetches the issue and runs it through the engine (or
// the preview path for dry runs), retrying the whole call with a fixed
// delay. Exceptions never cross this boundary: every failure becomes an
// error-status result.
func (c *Coordinator) processWithRetry(ctx context.Context, number int, dryRun bool) *engine.Result {
	var res *engine.Result
	err := retry.Do(ctx, retry.Config{
		MaxRetries: c.cfg.RetryCount,
		BaseDelay:  c.cfg.RetryDelay,
		FixedDelay: true,
		RetryAll:   true,
		Logger:     c.cfg.Logger,
	}, func() error {
		issue, err := c.cfg.GitHub.GetIssue(ctx, number)
		if err != nil {
			return fmt.Errorf("fetch issue #%d: %w", number, err)
		}
		if dryRun {
			res = c.cfg.Engine.GeneratePreview(ctx, *issue)
		} else {
			res = c.cfg.Engine.ProcessIssue(ctx, *issue)
		}
		return nil
	})
	if err != nil {
		return &engine.Result{
			IssueNumber:  number,
			Status:       state.StatusError,
			ErrorCode:    engine.CodeUnexpected,
			ErrorMessage: err.Error(),
		}
	}
	return res
}

func (c *Coordinator) emit(ev Event) {
	if c.cfg.Progress != nil {
		c.cfg.Progress(ev)
	}
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.cfg.Logger != nil {
		fmt.Fprintf(c.cfg.Logger, format+"\n", args...)
	}
}
