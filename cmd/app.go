package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/jywlabs/sitetriage/internal/config"
	"github.com/jywlabs/sitetriage/internal/deliverable"
	"github.com/jywlabs/sitetriage/internal/engine"
	"github.com/jywlabs/sitetriage/internal/github"
	"github.com/jywlabs/sitetriage/internal/output"
	"github.com/jywlabs/sitetriage/internal/state"
	"github.com/jywlabs/sitetriage/internal/telemetry"
	"github.com/jywlabs/sitetriage/internal/template"
	"github.com/jywlabs/sitetriage/internal/workflow"
)

// app bundles the collaborators a command needs, built from the merged
// configuration in the current directory.
type app struct {
	cfg     *config.Config
	hub     *github.Client
	catalog *workflow.Catalog
	store   *state.Store
	engine  *engine.Engine
	printer *output.Printer
	sink    *telemetry.Sink
}

// buildApp wires up the shared collaborators. withGitHub commands fail
// early when no repository can be resolved.
func buildApp(withGitHub bool) (*app, error) {
	if _, err := os.Stat(template.TriageDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s/ not found. Run 'sitetriage init' first", template.TriageDir)
	}

	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		printer: newPrinter(),
		sink:    telemetry.NewSink(cfg.TelemetryFile, os.Stderr),
	}

	a.catalog, err = workflow.NewCatalog(cfg.WorkflowsDir,
		workflow.WithRefreshInterval(cfg.CatalogRefresh),
		workflow.WithLogger(os.Stderr))
	if err != nil {
		return nil, err
	}

	a.store = state.NewStore(filepath.Join(template.TriageDir, template.StateFile), os.Stderr)

	if withGitHub {
		owner, repo, err := resolveRepo(cfg)
		if err != nil {
			return nil, err
		}
		a.hub = github.NewClient(os.Getenv("GITHUB_TOKEN"), owner, repo)
	}

	a.engine = newEngine(a)
	return a, nil
}

func newEngine(a *app) *engine.Engine {
	return engine.New(engine.Config{
		Source:            a.catalog,
		Store:             a.store,
		Writer:            newWriter(a.cfg),
		Committer:         engine.RepoCommitter{Path: "."},
		Handoff:           handoffConfig(a.cfg),
		ProcessingTimeout: a.cfg.ProcessingTimeout,
		Logger:            os.Stderr,
	})
}

func newWriter(cfg *config.Config) *deliverable.Writer {
	return deliverable.NewWriter(cfg.OutputDir, os.Stderr)
}

func handoffConfig(cfg *config.Config) *engine.HandoffConfig {
	return &engine.HandoffConfig{
		Assignee: cfg.Handoff.Assignee,
		DueAfter: time.Duration(cfg.Handoff.DueHours) * time.Hour,
	}
}

// resolveRepo picks the repository from --repo, the config file, or the
// GITHUB_REPOSITORY environment variable, in that order.
func resolveRepo(cfg *config.Config) (owner, repo string, err error) {
	spec := repoFlag
	if spec == "" && cfg.GitHub.Owner != "" && cfg.GitHub.Repo != "" {
		return cfg.GitHub.Owner, cfg.GitHub.Repo, nil
	}
	if spec == "" {
		spec = os.Getenv("GITHUB_REPOSITORY")
	}
	if spec == "" {
		return "", "", fmt.Errorf("no repository configured: pass --repo owner/repo, set github.owner/repo in %s, or set GITHUB_REPOSITORY",
			filepath.Join(template.TriageDir, template.ConfigFile))
	}

	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q: want owner/repo", spec)
	}
	return parts[0], parts[1], nil
}

func newPrinter() *output.Printer {
	if !noColorFlag && term.IsTerminal(os.Stdout.Fd()) {
		return output.NewColor(os.Stdout)
	}
	return output.New(os.Stdout)
}
