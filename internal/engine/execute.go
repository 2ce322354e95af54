package engine

import (
	"fmt"

	"github.com/jywlabs/sitetriage/internal/deliverable"
)

// outcome is what an execution strategy produces on success.
type outcome struct {
	files  []string
	branch string
	hash   string
}

// execute runs the primary strategy and, on any failure, the
// basic-recovery strategy. Keeping the fallback policy in one small
// orchestrator keeps both strategies independently testable.
func (e *Engine) execute(dctx deliverable.Context) (*outcome, Mode, error) {
	out, err := e.executePrimary(dctx)
	if err == nil {
		return out, ModePrimary, nil
	}
	e.logf("primary execution failed for issue #%d, attempting basic recovery: %v", dctx.Issue.Number, err)

	out, recoveryErr := e.executeRecovery(dctx)
	if recoveryErr != nil {
		return nil, ModeFallback, fmt.Errorf("primary: %v; recovery: %w", err, recoveryErr)
	}
	return out, ModeFallback, nil
}

// executePrimary generates the full templated deliverable set and, when a
// committer is configured, commits it on the per-issue branch. Zero
// written files is tolerated; only failures trigger the fallback.
func (e *Engine) executePrimary(dctx deliverable.Context) (*outcome, error) {
	files, err := e.cfg.Writer.WriteAll(dctx)
	if err != nil {
		return nil, err
	}

	out := &outcome{files: files}
	if e.cfg.Committer != nil && len(files) > 0 {
		commit, err := e.cfg.Committer.Commit(dctx.Issue.Number, dctx.Workflow.Name, files)
		if err != nil {
			return nil, fmt.Errorf("commit failed: %w", err)
		}
		out.branch = commit.Branch
		if commit.Committed {
			out.hash = commit.Hash
		}
	}
	return out, nil
}

// executeRecovery writes minimal content with no git side effects. It
// must produce at least one file.
func (e *Engine) executeRecovery(dctx deliverable.Context) (*outcome, error) {
	files, err := e.cfg.Writer.WriteBasic(dctx)
	if err != nil {
		return nil, err
	}
	return &outcome{files: files}, nil
}
