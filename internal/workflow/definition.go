package workflow

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/jywlabs/sitetriage/internal/template"
)

// labelPattern restricts trigger labels to GitHub-safe label names.
var labelPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// versionPattern matches a plain semver string (1.2.3).
var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// validOutputFormats are the deliverable formats a workflow may declare.
var validOutputFormats = map[string]bool{
	"markdown": true,
	"html":     true,
	"text":     true,
}

// Definition is a single workflow loaded from a YAML definition file.
// Definitions are immutable after load.
type Definition struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Version       string            `yaml:"version"`
	TriggerLabels []string          `yaml:"trigger_labels"`
	Deliverables  []DeliverableSpec `yaml:"deliverables"`
	Processing    ProcessingSpec    `yaml:"processing"`
	Validation    ValidationSpec    `yaml:"validation"`
	Output        OutputSpec        `yaml:"output"`

	// SourcePath is the file the definition was loaded from.
	SourcePath string `yaml:"-"`
}

// DeliverableSpec describes one file a workflow produces.
type DeliverableSpec struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Template    string `yaml:"template"`
	Required    bool   `yaml:"required"`
	Order       int    `yaml:"order"`
}

// ProcessingSpec carries per-workflow timeout and retry hints.
type ProcessingSpec struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
}

// ValidationSpec carries content rules for generated deliverables.
type ValidationSpec struct {
	MinContentLength int      `yaml:"min_content_length"`
	RequiredSections []string `yaml:"required_sections"`
}

// OutputSpec controls where and how deliverables are written.
type OutputSpec struct {
	Format          string `yaml:"format"`
	Directory       string `yaml:"directory"`
	FolderStructure string `yaml:"folder_structure"`
}

// Validate checks a parsed definition against the schema rules.
// A failing definition is skipped by the catalog, not fatal to the load.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("missing required field: name")
	}
	if len(d.TriggerLabels) == 0 {
		return fmt.Errorf("workflow %q: trigger_labels must not be empty", d.Name)
	}
	for _, l := range d.TriggerLabels {
		if l == template.GateLabel {
			return fmt.Errorf("workflow %q: trigger_labels must not contain the gate label %q", d.Name, template.GateLabel)
		}
		if !labelPattern.MatchString(l) {
			return fmt.Errorf("workflow %q: invalid trigger label %q", d.Name, l)
		}
	}
	if len(d.Deliverables) == 0 {
		return fmt.Errorf("workflow %q: deliverables must not be empty", d.Name)
	}
	seenNames := make(map[string]bool, len(d.Deliverables))
	seenOrders := make(map[int]bool, len(d.Deliverables))
	for _, spec := range d.Deliverables {
		if spec.Name == "" || spec.Title == "" || spec.Description == "" {
			return fmt.Errorf("workflow %q: each deliverable requires name, title and description", d.Name)
		}
		if seenNames[spec.Name] {
			return fmt.Errorf("workflow %q: duplicate deliverable name %q", d.Name, spec.Name)
		}
		seenNames[spec.Name] = true
		if spec.Order != 0 {
			if seenOrders[spec.Order] {
				return fmt.Errorf("workflow %q: duplicate deliverable order %d", d.Name, spec.Order)
			}
			seenOrders[spec.Order] = true
		}
	}
	if d.Version != "" && !versionPattern.MatchString(d.Version) {
		return fmt.Errorf("workflow %q: version %q is not semver", d.Name, d.Version)
	}
	if d.Output.Format != "" && !validOutputFormats[d.Output.Format] {
		return fmt.Errorf("workflow %q: unsupported output format %q", d.Name, d.Output.Format)
	}
	return nil
}

// OrderedDeliverables returns the deliverable specs sorted by Order,
// preserving file order for equal values.
func (d *Definition) OrderedDeliverables() []DeliverableSpec {
	out := make([]DeliverableSpec, len(d.Deliverables))
	copy(out, d.Deliverables)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// Matches reports whether any of the issue labels is one of the workflow's
// trigger labels. The gate label check is the catalog's job, not this one.
func (d *Definition) Matches(labels []string) bool {
	for _, l := range labels {
		for _, t := range d.TriggerLabels {
			if l == t {
				return true
			}
		}
	}
	return false
}
