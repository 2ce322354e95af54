// Package deliverable renders and writes the markdown files a workflow
// produces for an issue.
package deliverable

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jywlabs/sitetriage/internal/github"
	"github.com/jywlabs/sitetriage/internal/workflow"
)

// ErrNoDeliverables is returned by WriteBasic when not a single file could
// be written. The basic-recovery path must produce at least one file.
var ErrNoDeliverables = errors.New("no deliverables created")

// DefaultFolderStructure is used when a workflow's output spec does not
// declare one.
const DefaultFolderStructure = "issue-{issue_number}-{title_slug}"

// placeholderPattern matches {placeholder} tokens in templates and folder
// structure patterns.
var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Context carries everything needed to render deliverables for one issue.
type Context struct {
	Issue    github.Issue
	Workflow *workflow.Definition
	Now      time.Time
	// Extra holds best-effort enrichment from the content-extraction hook;
	// rendered into the primary scaffold when present.
	Extra map[string]string
}

// Writer renders and writes deliverable files under an output root.
type Writer struct {
	root   string
	logger io.Writer
}

// NewWriter creates a writer rooted at the given output directory.
func NewWriter(root string, logger io.Writer) *Writer {
	return &Writer{root: root, logger: logger}
}

// Folder resolves the output folder for an issue/workflow pair.
func (w *Writer) Folder(ctx Context) string {
	base := w.root
	if ctx.Workflow.Output.Directory != "" {
		base = ctx.Workflow.Output.Directory
	}
	pattern := ctx.Workflow.Output.FolderStructure
	if pattern == "" {
		pattern = DefaultFolderStructure
	}
	folder := strings.NewReplacer(
		"{issue_number}", fmt.Sprintf("%d", ctx.Issue.Number),
		"{title_slug}", Slugify(ctx.Issue.Title),
	).Replace(pattern)
	return filepath.Join(base, folder)
}

// PlannedFiles returns the paths a real run would create, in deliverable
// order, without touching the filesystem. Used by the preview path.
func (w *Writer) PlannedFiles(ctx Context) []string {
	folder := w.Folder(ctx)
	specs := ctx.Workflow.OrderedDeliverables()
	out := make([]string, 0, len(specs))
	for _, spec := range specs {
		out = append(out, filepath.Join(folder, fileName(spec, ctx.Workflow.Output.Format)))
	}
	return out
}

// WriteAll renders every deliverable in order and writes the files. A
// failure rendering or writing one deliverable is logged and skipped;
// the remaining deliverables still run. Zero written files is not an
// error here; only infrastructure failures (the folder itself) are.
func (w *Writer) WriteAll(ctx Context) ([]string, error) {
	folder := w.Folder(ctx)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("create deliverable folder: %w", err)
	}

	var created []string
	for _, spec := range ctx.Workflow.OrderedDeliverables() {
		content, err := w.renderPrimary(ctx, spec)
		if err != nil {
			w.logf("skipping deliverable %s for issue #%d: %v", spec.Name, ctx.Issue.Number, err)
			continue
		}
		path := filepath.Join(folder, fileName(spec, ctx.Workflow.Output.Format))
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			w.logf("failed to write deliverable %s for issue #%d: %v", spec.Name, ctx.Issue.Number, err)
			continue
		}
		created = append(created, path)
	}
	return created, nil
}

// WriteBasic writes minimal recovery content for every deliverable. It is
// the fallback when the primary path fails; producing zero files here is
// a hard failure.
func (w *Writer) WriteBasic(ctx Context) ([]string, error) {
	folder := w.Folder(ctx)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("create deliverable folder: %w", err)
	}

	var created []string
	for _, spec := range ctx.Workflow.OrderedDeliverables() {
		path := filepath.Join(folder, fileName(spec, ctx.Workflow.Output.Format))
		if err := os.WriteFile(path, []byte(renderBasic(ctx, spec)), 0644); err != nil {
			w.logf("recovery write failed for deliverable %s, issue #%d: %v", spec.Name, ctx.Issue.Number, err)
			continue
		}
		created = append(created, path)
	}
	if len(created) == 0 {
		return nil, ErrNoDeliverables
	}
	return created, nil
}

// renderPrimary builds the full deliverable content. When the spec
// declares a template it is used as the body; unknown placeholders are an
// error so a typo in a workflow file fails that deliverable loudly
// instead of shipping a literal "{placehodler}".
func (w *Writer) renderPrimary(ctx Context, spec workflow.DeliverableSpec) (string, error) {
	values := map[string]string{
		"issue_number":  fmt.Sprintf("%d", ctx.Issue.Number),
		"issue_title":   ctx.Issue.Title,
		"issue_url":     ctx.Issue.URL,
		"workflow_name": ctx.Workflow.Name,
		"date":          ctx.Now.Format("2006-01-02"),
		"title_slug":    Slugify(ctx.Issue.Title),
	}
	for k, v := range ctx.Extra {
		values[k] = v
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", spec.Title)
	fmt.Fprintf(&b, "- Issue: [#%d](%s) — %s\n", ctx.Issue.Number, ctx.Issue.URL, ctx.Issue.Title)
	fmt.Fprintf(&b, "- Workflow: %s\n", ctx.Workflow.Name)
	fmt.Fprintf(&b, "- Generated: %s\n\n", ctx.Now.Format("2006-01-02"))

	body := spec.Template
	if body == "" {
		body = defaultBody(ctx, spec)
	}
	rendered, err := renderTemplate(body, values)
	if err != nil {
		return "", err
	}
	b.WriteString(rendered)
	if !strings.HasSuffix(rendered, "\n") {
		b.WriteString("\n")
	}
	return b.String(), nil
}

func defaultBody(ctx Context, spec workflow.DeliverableSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Purpose\n\n%s\n\n", spec.Description)
	b.WriteString("## Issue Summary\n\n")
	if ctx.Issue.Body != "" {
		b.WriteString(ctx.Issue.Body)
		b.WriteString("\n\n")
	} else {
		b.WriteString("_No issue body provided._\n\n")
	}
	if len(ctx.Extra) > 0 {
		b.WriteString("## Extracted Context\n\n")
		for _, k := range sortedKeys(ctx.Extra) {
			fmt.Fprintf(&b, "- **%s**: %s\n", k, ctx.Extra[k])
		}
		b.WriteString("\n")
	}
	b.WriteString("## Findings\n\n_To be completed._\n")
	return b.String()
}

// renderBasic is the minimal recovery scaffold: no templates, no
// placeholder substitution, nothing that can fail except the write.
func renderBasic(ctx Context, spec workflow.DeliverableSpec) string {
	return fmt.Sprintf("# %s\n\nIssue #%d: %s\nWorkflow: %s\n\n%s\n\n_Generated in basic-recovery mode; regenerate for full content._\n",
		spec.Title, ctx.Issue.Number, ctx.Issue.Title, ctx.Workflow.Name, spec.Description)
}

// renderTemplate substitutes {placeholder} tokens, failing on unknown ones.
func renderTemplate(body string, values map[string]string) (string, error) {
	var unknown []string
	out := placeholderPattern.ReplaceAllStringFunc(body, func(tok string) string {
		key := strings.Trim(tok, "{}")
		if v, ok := values[key]; ok {
			return v
		}
		unknown = append(unknown, key)
		return tok
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("unknown template placeholders: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

func fileName(spec workflow.DeliverableSpec, format string) string {
	ext := ".md"
	switch format {
	case "html":
		ext = ".html"
	case "text":
		ext = ".txt"
	}
	return spec.Name + ext
}

// Slugify converts an issue title into a filesystem-safe slug.
func Slugify(title string) string {
	var b strings.Builder
	lastDash := true // trims leading dashes
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = "issue"
	}
	return slug
}

func (w *Writer) logf(format string, args ...any) {
	if w.logger != nil {
		fmt.Fprintf(w.logger, format+"\n", args...)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
