// Package workflow loads workflow definitions from a directory of YAML
// files and answers label-matching queries against them.
package workflow

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/jywlabs/sitetriage/internal/template"
)

// DefaultRefreshInterval is how long a loaded catalog stays fresh before
// the next query triggers an implicit reload.
const DefaultRefreshInterval = 5 * time.Minute

// ErrorCode classifies structural catalog load failures.
type ErrorCode string

const (
	DirectoryNotFound   ErrorCode = "DIRECTORY_NOT_FOUND"
	NotADirectory       ErrorCode = "NOT_A_DIRECTORY"
	DirectoryScanFailed ErrorCode = "DIRECTORY_SCAN_FAILED"
	NoValidWorkflows    ErrorCode = "NO_VALID_WORKFLOWS"
)

// CatalogError is a structural failure loading the workflow directory.
// Per-file parse failures are not CatalogErrors; they are logged and the
// file is skipped.
type CatalogError struct {
	Code ErrorCode
	Path string
	Err  error
}

func (e *CatalogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow catalog: %s (%s): %v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("workflow catalog: %s (%s)", e.Code, e.Path)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// snapshot is one immutable generation of the catalog cache. Reloads
// replace the whole snapshot so readers never observe a partial cache.
type snapshot struct {
	byName   map[string]*Definition
	names    []string // sorted
	loadedAt time.Time
}

// Catalog discovers, validates and caches workflow definitions.
type Catalog struct {
	dir          string
	refreshEvery time.Duration
	logger       io.Writer

	mu      sync.Mutex // serializes reloads
	current atomic.Pointer[snapshot]
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRefreshInterval overrides the implicit refresh interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Catalog) { c.refreshEvery = d }
}

// WithLogger sets the writer for skipped-file warnings.
func WithLogger(w io.Writer) Option {
	return func(c *Catalog) { c.logger = w }
}

// NewCatalog creates a catalog over the given workflow directory and
// performs the initial load.
func NewCatalog(dir string, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		dir:          dir,
		refreshEvery: DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh forces a reload of the workflow directory, replacing the cache.
func (c *Catalog) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load()
	if err != nil {
		return err
	}
	c.current.Store(snap)
	return nil
}

// load scans the directory and parses every definition file.
func (c *Catalog) load() (*snapshot, error) {
	info, err := os.Stat(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &CatalogError{Code: DirectoryNotFound, Path: c.dir, Err: err}
		}
		return nil, &CatalogError{Code: DirectoryScanFailed, Path: c.dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &CatalogError{Code: NotADirectory, Path: c.dir}
	}

	// WalkDir visits lexically, so load order (and therefore duplicate-name
	// resolution) is deterministic. The seen map de-duplicates in case the
	// directory tree contains links back into itself.
	var files []string
	seen := make(map[string]bool)
	err = filepath.WalkDir(c.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if !seen[abs] {
			seen[abs] = true
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &CatalogError{Code: DirectoryScanFailed, Path: c.dir, Err: err}
	}

	snap := &snapshot{
		byName:   make(map[string]*Definition),
		loadedAt: time.Now(),
	}

	attempted := 0
	for _, path := range files {
		attempted++
		def, err := parseFile(path)
		if err != nil {
			c.logf("skipping workflow file %s: %v", path, err)
			continue
		}
		if _, dup := snap.byName[def.Name]; dup {
			c.logf("skipping workflow file %s: duplicate workflow name %q", path, def.Name)
			continue
		}
		snap.byName[def.Name] = def
		snap.names = append(snap.names, def.Name)
	}
	sort.Strings(snap.names)

	// A directory with no definition files is a valid empty catalog, and a
	// single bad file may just be work in progress. Everything failing
	// across multiple files means the directory itself is wrong.
	if attempted > 1 && len(snap.byName) == 0 {
		return nil, &CatalogError{Code: NoValidWorkflows, Path: c.dir}
	}

	return snap, nil
}

func parseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid UTF-8")
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("malformed YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	def.SourcePath = path
	return &def, nil
}

func (c *Catalog) logf(format string, args ...any) {
	if c.logger != nil {
		fmt.Fprintf(c.logger, format+"\n", args...)
	}
}

// cache returns the current snapshot, reloading first if the refresh
// interval has elapsed. A failed implicit refresh keeps serving the last
// good snapshot.
func (c *Catalog) cache() *snapshot {
	snap := c.current.Load()
	if snap == nil || time.Since(snap.loadedAt) > c.refreshEvery {
		if err := c.Refresh(); err != nil {
			c.logf("implicit catalog refresh failed: %v", err)
		}
		if fresh := c.current.Load(); fresh != nil {
			return fresh
		}
	}
	return snap
}

// Definitions returns all loaded definitions sorted by name.
func (c *Catalog) Definitions() []*Definition {
	snap := c.cache()
	out := make([]*Definition, 0, len(snap.names))
	for _, name := range snap.names {
		out = append(out, snap.byName[name])
	}
	return out
}

// Names returns the sorted workflow names in the catalog.
func (c *Catalog) Names() []string {
	snap := c.cache()
	out := make([]string, len(snap.names))
	copy(out, snap.names)
	return out
}

// Get returns the definition with the given name, or nil.
func (c *Catalog) Get(name string) *Definition {
	return c.cache().byName[name]
}

// FindMatching returns every definition whose trigger labels intersect the
// issue's labels. Without the gate label the result is always empty.
func (c *Catalog) FindMatching(labels []string) []*Definition {
	if !hasLabel(labels, template.GateLabel) {
		return nil
	}
	snap := c.cache()
	var matched []*Definition
	for _, name := range snap.names {
		def := snap.byName[name]
		if def.Matches(labels) {
			matched = append(matched, def)
		}
	}
	return matched
}

// BestMatch selects the single workflow for a label set, or explains why
// none could be selected. Ambiguity is never auto-resolved; it always
// requires the issue to gain a more specific label.
func (c *Catalog) BestMatch(labels []string) (*Definition, string) {
	if !hasLabel(labels, template.GateLabel) {
		return nil, fmt.Sprintf("issue is missing the %q gate label", template.GateLabel)
	}
	matched := c.FindMatching(labels)
	switch len(matched) {
	case 0:
		return nil, "no workflow matches the current labels; add more specific labels"
	case 1:
		return matched[0], fmt.Sprintf("selected workflow: %s", matched[0].Name)
	default:
		names := make([]string, len(matched))
		for i, def := range matched {
			names[i] = def.Name
		}
		return nil, fmt.Sprintf("ambiguous match (%s); add more specific labels", strings.Join(names, ", "))
	}
}

// Suggestions returns every trigger label known to the catalog that the
// issue does not already carry, sorted. Used to build clarification
// comments.
func (c *Catalog) Suggestions(labels []string) []string {
	present := make(map[string]bool, len(labels))
	for _, l := range labels {
		present[l] = true
	}
	snap := c.cache()
	suggested := make(map[string]bool)
	for _, def := range snap.byName {
		for _, t := range def.TriggerLabels {
			if !present[t] {
				suggested[t] = true
			}
		}
	}
	out := make([]string, 0, len(suggested))
	for l := range suggested {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}
