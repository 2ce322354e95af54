// Package config loads the .sitetriage/config.yaml file, merging it
// over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jywlabs/sitetriage/internal/template"
	"gopkg.in/yaml.v3"
)

// Config is the fully merged configuration the commands consume.
type Config struct {
	WorkflowsDir      string
	OutputDir         string
	TelemetryFile     string
	ProcessingTimeout time.Duration
	CatalogRefresh    time.Duration

	GitHub  GitHubConfig
	Batch   BatchConfig
	Assign  AssignConfig
	Handoff HandoffConfig
}

type GitHubConfig struct {
	Owner string
	Repo  string
}

type BatchConfig struct {
	MaxBatchSize     int
	MaxWorkers       int
	RetryCount       int
	RetryDelay       time.Duration
	RateLimitPause   time.Duration
	StopOnFirstError bool
	PriorityLabels   []string
}

type AssignConfig struct {
	HighConfidence   float64
	MediumConfidence float64
	SkipLabels       []string
}

type HandoffConfig struct {
	Assignee string
	DueHours int
}

// rawConfig mirrors the YAML structure. Pointer fields distinguish
// missing keys from explicit zero values.
type rawConfig struct {
	WorkflowsDir      *string    `yaml:"workflowsDir"`
	OutputDir         *string    `yaml:"outputDir"`
	TelemetryFile     *string    `yaml:"telemetryFile"`
	ProcessingTimeout *string    `yaml:"processingTimeout"`
	CatalogRefresh    *string    `yaml:"catalogRefresh"`
	GitHub            rawGitHub  `yaml:"github"`
	Batch             rawBatch   `yaml:"batch"`
	Assign            rawAssign  `yaml:"assign"`
	Handoff           rawHandoff `yaml:"handoff"`
}

type rawGitHub struct {
	Owner *string `yaml:"owner"`
	Repo  *string `yaml:"repo"`
}

type rawBatch struct {
	MaxBatchSize     *int     `yaml:"maxBatchSize"`
	MaxWorkers       *int     `yaml:"maxWorkers"`
	RetryCount       *int     `yaml:"retryCount"`
	RetryDelay       *string  `yaml:"retryDelay"`
	RateLimitPause   *string  `yaml:"rateLimitPause"`
	StopOnFirstError *bool    `yaml:"stopOnFirstError"`
	PriorityLabels   []string `yaml:"priorityLabels"`
}

type rawAssign struct {
	HighConfidence   *float64 `yaml:"highConfidence"`
	MediumConfidence *float64 `yaml:"mediumConfidence"`
	SkipLabels       []string `yaml:"skipLabels"`
}

type rawHandoff struct {
	Assignee *string `yaml:"assignee"`
	DueHours *int    `yaml:"dueHours"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WorkflowsDir:      filepath.Join(template.TriageDir, template.WorkflowsDir),
		OutputDir:         "docs/monitoring",
		TelemetryFile:     filepath.Join(template.TriageDir, template.TelemetryFile),
		ProcessingTimeout: 5 * time.Minute,
		CatalogRefresh:    5 * time.Minute,
		Batch: BatchConfig{
			MaxBatchSize:   10,
			MaxWorkers:     3,
			RetryCount:     2,
			RetryDelay:     time.Second,
			RateLimitPause: 500 * time.Millisecond,
			PriorityLabels: []string{"priority-critical", "priority-high", "priority-medium", "priority-low"},
		},
		Assign: AssignConfig{
			HighConfidence:   0.8,
			MediumConfidence: 0.6,
			SkipLabels:       []string{"feature", "needs-clarification"},
		},
		Handoff: HandoffConfig{
			Assignee: "Copilot",
			DueHours: 24,
		},
	}
}

// Load reads .sitetriage/config.yaml under dir. A missing file yields
// the defaults; a present file overrides only the keys it sets.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, template.TriageDir, template.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := Default()
	if err := merge(&cfg, &raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &cfg, nil
}

func merge(cfg *Config, raw *rawConfig) error {
	if raw.WorkflowsDir != nil {
		cfg.WorkflowsDir = *raw.WorkflowsDir
	}
	if raw.OutputDir != nil {
		cfg.OutputDir = *raw.OutputDir
	}
	if raw.TelemetryFile != nil {
		cfg.TelemetryFile = *raw.TelemetryFile
	}
	if err := mergeDuration(&cfg.ProcessingTimeout, raw.ProcessingTimeout, "processingTimeout"); err != nil {
		return err
	}
	if err := mergeDuration(&cfg.CatalogRefresh, raw.CatalogRefresh, "catalogRefresh"); err != nil {
		return err
	}

	if raw.GitHub.Owner != nil {
		cfg.GitHub.Owner = *raw.GitHub.Owner
	}
	if raw.GitHub.Repo != nil {
		cfg.GitHub.Repo = *raw.GitHub.Repo
	}

	if raw.Batch.MaxBatchSize != nil {
		cfg.Batch.MaxBatchSize = *raw.Batch.MaxBatchSize
	}
	if raw.Batch.MaxWorkers != nil {
		cfg.Batch.MaxWorkers = *raw.Batch.MaxWorkers
	}
	if raw.Batch.RetryCount != nil {
		cfg.Batch.RetryCount = *raw.Batch.RetryCount
	}
	if err := mergeDuration(&cfg.Batch.RetryDelay, raw.Batch.RetryDelay, "batch.retryDelay"); err != nil {
		return err
	}
	if err := mergeDuration(&cfg.Batch.RateLimitPause, raw.Batch.RateLimitPause, "batch.rateLimitPause"); err != nil {
		return err
	}
	if raw.Batch.StopOnFirstError != nil {
		cfg.Batch.StopOnFirstError = *raw.Batch.StopOnFirstError
	}
	if len(raw.Batch.PriorityLabels) > 0 {
		cfg.Batch.PriorityLabels = raw.Batch.PriorityLabels
	}

	if raw.Assign.HighConfidence != nil {
		cfg.Assign.HighConfidence = *raw.Assign.HighConfidence
	}
	if raw.Assign.MediumConfidence != nil {
		cfg.Assign.MediumConfidence = *raw.Assign.MediumConfidence
	}
	if len(raw.Assign.SkipLabels) > 0 {
		cfg.Assign.SkipLabels = raw.Assign.SkipLabels
	}

	if raw.Handoff.Assignee != nil {
		cfg.Handoff.Assignee = *raw.Handoff.Assignee
	}
	if raw.Handoff.DueHours != nil {
		cfg.Handoff.DueHours = *raw.Handoff.DueHours
	}
	return nil
}

func mergeDuration(dst *time.Duration, raw *string, key string) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// Validate checks the merged configuration for usable values.
func (c *Config) Validate() error {
	if c.WorkflowsDir == "" {
		return fmt.Errorf("workflowsDir must not be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("outputDir must not be empty")
	}
	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("processingTimeout must be positive")
	}
	if c.Batch.MaxBatchSize <= 0 {
		return fmt.Errorf("batch.maxBatchSize must be greater than 0")
	}
	if c.Batch.MaxWorkers <= 0 {
		return fmt.Errorf("batch.maxWorkers must be greater than 0")
	}
	if c.Batch.RetryCount < 0 {
		return fmt.Errorf("batch.retryCount must not be negative")
	}
	if c.Assign.HighConfidence <= c.Assign.MediumConfidence {
		return fmt.Errorf("assign.highConfidence must exceed assign.mediumConfidence")
	}
	if c.Assign.MediumConfidence <= 0 || c.Assign.HighConfidence > 1 {
		return fmt.Errorf("assign thresholds must fall in (0, 1]")
	}
	if c.Handoff.Assignee == "" {
		return fmt.Errorf("handoff.assignee must not be empty")
	}
	if c.Handoff.DueHours <= 0 {
		return fmt.Errorf("handoff.dueHours must be greater than 0")
	}
	return nil
}
