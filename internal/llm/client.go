// Package llm consults the Anthropic API to suggest workflows for an
// issue based on its content.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jywlabs/sitetriage/internal/github"
	"github.com/jywlabs/sitetriage/internal/retry"
)

const (
	defaultModel   = "claude-3-5-haiku-latest"
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// ErrAPIKeyRequired is returned when no Anthropic API key is available.
// The AI assignment agent fails hard on this; there is no silent fallback.
var ErrAPIKeyRequired = errors.New("API key required: set ANTHROPIC_API_KEY")

// Analysis is the structured payload the model returns for one issue.
type Analysis struct {
	Summary             string             `json:"summary"`
	KeyTopics           []string           `json:"key_topics"`
	SuggestedWorkflows  []string           `json:"suggested_workflows"`
	ConfidenceScores    map[string]float64 `json:"confidence_scores"`
	TechnicalIndicators []string           `json:"technical_indicators"`
	UrgencyLevel        string             `json:"urgency_level"`
	ContentType         string             `json:"content_type"`
}

// Analyzer is the black-box classifier interface consumed by the AI
// assignment agent.
type Analyzer interface {
	AnalyzeIssue(ctx context.Context, issue github.Issue, workflowNames []string) (*Analysis, error)
}

// Client implements Analyzer against the Anthropic Messages API.
type Client struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewClient creates an Anthropic-backed analyzer. Env var
// ANTHROPIC_API_KEY takes precedence over the explicit apiKey.
func NewClient(apiKey string) (*Client, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	return &Client{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(defaultModel),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// AnalyzeIssue sends the issue content and the real workflow names to the
// model and parses the JSON analysis from the reply.
func (c *Client) AnalyzeIssue(ctx context.Context, issue github.Issue, workflowNames []string) (*Analysis, error) {
	prompt := buildPrompt(issue, workflowNames)

	text, err := c.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	analysis, err := ParseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis for issue #%d: %w", issue.Number, err)
	}
	return analysis, nil
}

func buildPrompt(issue github.Issue, workflowNames []string) string {
	var b strings.Builder
	b.WriteString("You triage site-monitoring GitHub issues. Analyze the issue below and respond with ONLY a JSON object with these keys: ")
	b.WriteString(`summary (string), key_topics (array), suggested_workflows (array), confidence_scores (object mapping workflow name to 0..1), technical_indicators (array), urgency_level (low|medium|high), content_type (string).`)
	b.WriteString("\n\nOnly suggest workflows from this list: ")
	b.WriteString(strings.Join(workflowNames, ", "))
	fmt.Fprintf(&b, "\n\nIssue #%d: %s\n", issue.Number, issue.Title)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if issue.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", issue.Body)
	}
	return b.String()
}

func (c *Client) callWithRetry(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("unexpected response format: no content blocks")
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return content.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !retry.IsRetryable(err) {
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return "", fmt.Errorf("failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// ParseAnalysis extracts the JSON analysis from a model reply, tolerating
// markdown code fences around the object.
func ParseAnalysis(text string) (*Analysis, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	// Fall back to the outermost braces if the model added prose.
	if !strings.HasPrefix(trimmed, "{") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in response")
		}
		trimmed = trimmed[start : end+1]
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(trimmed), &analysis); err != nil {
		return nil, fmt.Errorf("malformed analysis JSON: %w", err)
	}
	if analysis.ConfidenceScores == nil {
		analysis.ConfidenceScores = map[string]float64{}
	}
	return &analysis, nil
}
