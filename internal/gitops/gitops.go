// Package gitops commits generated deliverables on a per-issue branch.
package gitops

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNoChanges is returned when there is nothing to commit.
var ErrNoChanges = errors.New("no changes to commit")

// maxSubjectLen is the maximum length for the workflow name in commit messages.
const maxSubjectLen = 50

// CommitResult represents the outcome of a commit operation.
type CommitResult struct {
	Committed bool   // Whether a commit was made
	Branch    string // The branch the commit landed on
	Hash      string // The commit hash (if committed)
	Message   string // The commit message (if committed)
}

// BranchName returns the per-issue branch for a workflow run.
func BranchName(issueNumber int, workflowName string) string {
	return fmt.Sprintf("site-monitor/issue-%d-%s", issueNumber, workflowName)
}

// CommitDeliverables checks out (creating if needed) the per-issue branch,
// stages the given deliverable files, and commits them. File paths may be
// absolute or relative to repoPath. Returns a non-committed result when
// the files produced no staged changes.
func CommitDeliverables(repoPath string, issueNumber int, workflowName string, files []string) (*CommitResult, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	branch := BranchName(issueNumber, workflowName)
	if err := checkoutBranch(repo, worktree, branch); err != nil {
		return nil, err
	}

	for _, f := range files {
		rel := f
		if filepath.IsAbs(f) {
			rel, err = filepath.Rel(repoPath, f)
			if err != nil {
				return nil, fmt.Errorf("deliverable %s is outside the repository: %w", f, err)
			}
		}
		if _, err := worktree.Add(filepath.ToSlash(rel)); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}

	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	hasStagedChanges := false
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			hasStagedChanges = true
			break
		}
	}
	if !hasStagedChanges {
		return &CommitResult{Committed: false, Branch: branch}, nil
	}

	message := formatCommitMessage(issueNumber, workflowName)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "sitetriage",
			Email: "sitetriage@jywlabs.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return &CommitResult{
		Committed: true,
		Branch:    branch,
		Hash:      hash.String(),
		Message:   message,
	}, nil
}

// checkoutBranch switches to the branch, creating it from HEAD if it does
// not exist yet. Keep preserves the freshly written deliverables in the
// worktree across the switch.
func checkoutBranch(repo *git.Repository, worktree *git.Worktree, branch string) error {
	ref := plumbing.NewBranchReferenceName(branch)
	_, err := repo.Reference(ref, true)
	create := err != nil

	if err := worktree.Checkout(&git.CheckoutOptions{
		Branch: ref,
		Create: create,
		Keep:   true,
	}); err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", branch, err)
	}
	return nil
}

// formatCommitMessage creates a commit message with the format:
// "sitetriage: issue #N <workflow name truncated to 50 chars>"
func formatCommitMessage(issueNumber int, workflowName string) string {
	name := workflowName
	if len(name) > maxSubjectLen {
		name = name[:maxSubjectLen]
	}
	return fmt.Sprintf("sitetriage: issue #%d %s deliverables", issueNumber, name)
}

// HasChanges checks if the repository has any uncommitted changes.
func HasChanges(repoPath string) (bool, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return false, fmt.Errorf("failed to open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}

	return !status.IsClean(), nil
}
