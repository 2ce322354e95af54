// Package github wraps the GitHub REST API behind the small collaborator
// interface the triage components consume.
package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v68/github"
)

// Issue is the read-only view of a GitHub issue the triage components
// operate on. The engine never mutates it.
type Issue struct {
	Number    int
	Title     string
	Body      string
	Labels    []string
	Assignees []string
	CreatedAt time.Time
	UpdatedAt time.Time
	URL       string
}

// HasLabel reports whether the issue carries the given label.
func (i Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Collaborator is the capability interface for issue operations. All
// methods are synchronous and block the calling goroutine.
type Collaborator interface {
	GetIssue(ctx context.Context, number int) (*Issue, error)
	ListIssuesByLabel(ctx context.Context, label string) ([]Issue, error)
	AddLabels(ctx context.Context, number int, labels []string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	CreateComment(ctx context.Context, number int, body string) error
	AddAssignees(ctx context.Context, number int, assignees []string) error
}

// Client implements Collaborator using the go-github library.
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
}

// NewClient creates a client for the given repository. An empty token
// yields an unauthenticated client (limited to 60 requests/hour).
func NewClient(token, owner, repo string) *Client {
	client := gh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &Client{gh: client, owner: owner, repo: repo}
}

// NewClientWithHTTPClient creates a client backed by a custom HTTP client
// and base URL. This is primarily used for testing with httptest servers.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, owner, repo string) (*Client, error) {
	client := gh.NewClient(httpClient)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, err
		}
	}
	return &Client{gh: client, owner: owner, repo: repo}, nil
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	issue, _, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, wrapAPIError("get issue", err)
	}
	converted := convertIssue(issue)
	return &converted, nil
}

// ListIssuesByLabel returns every open issue carrying the given label,
// following pagination. Pull requests are filtered out.
func (c *Client) ListIssuesByLabel(ctx context.Context, label string) ([]Issue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		Labels:      []string{label},
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var out []Issue
	for {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, wrapAPIError("list issues", err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			out = append(out, convertIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// AddLabels attaches labels to an issue, preserving existing ones.
func (c *Client) AddLabels(ctx context.Context, number int, labels []string) error {
	_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels)
	if err != nil {
		return wrapAPIError("add labels", err)
	}
	return nil
}

// RemoveLabel detaches one label from an issue.
func (c *Client) RemoveLabel(ctx context.Context, number int, label string) error {
	_, err := c.gh.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, label)
	if err != nil {
		return wrapAPIError("remove label", err)
	}
	return nil
}

// CreateComment posts a comment on an issue.
func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return wrapAPIError("create comment", err)
	}
	return nil
}

// AddAssignees assigns users to an issue.
func (c *Client) AddAssignees(ctx context.Context, number int, assignees []string) error {
	_, _, err := c.gh.Issues.AddAssignees(ctx, c.owner, c.repo, number, assignees)
	if err != nil {
		return wrapAPIError("add assignees", err)
	}
	return nil
}

func convertIssue(issue *gh.Issue) Issue {
	out := Issue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		URL:    issue.GetHTMLURL(),
	}
	for _, l := range issue.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	for _, a := range issue.Assignees {
		out.Assignees = append(out.Assignees, a.GetLogin())
	}
	if ts := issue.GetCreatedAt(); !ts.IsZero() {
		out.CreatedAt = ts.Time
	}
	if ts := issue.GetUpdatedAt(); !ts.IsZero() {
		out.UpdatedAt = ts.Time
	}
	return out
}

// wrapAPIError keeps rate-limit context in the message so the retry
// utility classifies these as retryable.
func wrapAPIError(op string, err error) error {
	switch err.(type) {
	case *gh.RateLimitError:
		return fmt.Errorf("github %s: rate limit exceeded: %w", op, err)
	case *gh.AbuseRateLimitError:
		return fmt.Errorf("github %s: secondary rate limit: %w", op, err)
	}
	return fmt.Errorf("github %s: %w", op, err)
}
