package template

import (
	_ "embed"
)

//go:embed config.yaml
var DefaultConfig string

//go:embed workflow-example.yaml
var ExampleWorkflow string

// TriageDir is the name of the sitetriage configuration directory.
const TriageDir = ".sitetriage"

// File and directory name constants for consistent usage across the codebase.
const (
	ConfigFile    = "config.yaml"
	WorkflowsDir  = "workflows"       // Workflow definition files
	StateFile     = "state.json"      // Issue processing state store
	TelemetryFile = "telemetry.jsonl" // JSON-lines telemetry sink
)

// GateLabel is the universal label an issue must carry before any workflow
// can match it.
const GateLabel = "site-monitor"

// DefaultFiles returns the default files to create in .sitetriage/
func DefaultFiles() map[string]string {
	return map[string]string{
		ConfigFile:                          DefaultConfig,
		WorkflowsDir + "/site-research.yaml": ExampleWorkflow,
	}
}
