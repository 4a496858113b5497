package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
)

// Renderer executes agpm's two-pass templating: pass 1 renders only the raw
// frontmatter text (before transitive resolution, so the declared graph can
// be read back out), pass 2 renders the whole spliced file once transitive
// dependency content is known. Grounded on the teacher's
// internal/registry/aqua/template.go text/template+FuncMap usage, extended
// with sprig.TxtFuncMap() for the batteries a Jinja-like templating story
// implies.
type Renderer struct {
	funcs template.FuncMap

	warnedMu sync.Mutex
	warned   map[string]bool
}

// New returns a Renderer with sprig's function library registered.
func New() *Renderer {
	return &Renderer{funcs: sprig.TxtFuncMap(), warned: make(map[string]bool)}
}

// warnFrontmatterParseOnce logs a frontmatter-parse-failure warning at most
// once per path, mirroring the original implementation's
// `ctx.should_warn_file` dedup (original_source/src/markdown/frontmatter.rs)
// so transitive re-resolution of the same broken resource doesn't spam the
// log on every referrer.
func (r *Renderer) warnFrontmatterParseOnce(path string, err error) {
	r.warnedMu.Lock()
	shouldWarn := !r.warned[path]
	r.warned[path] = true
	r.warnedMu.Unlock()

	if shouldWarn {
		slog.Warn("unable to parse frontmatter; processing without metadata, declared dependencies will not be resolved or installed",
			"path", path, "error", err)
	}
}

// missingKeyPattern extracts the dotted path text.Template reports in its
// "map has no entry for key" / "nil pointer evaluating" execution errors,
// e.g. `<.agpm.deps.snippets.guide.content>`.
var missingKeyPattern = regexp.MustCompile(`at <(\.[^>]*)>: `)

// RenderString renders tmplText against variantInputs, with empty-context
// renders still performed (per spec §4.F) so syntax errors are caught even
// without variables. path and chain are used only for error context.
// FrontmatterSizeCap applies to the frontmatter alone when tmplText starts
// with a frontmatter fence, and to the whole text otherwise.
func (r *Renderer) RenderString(path, tmplText string, variantInputs map[string]any, chain []agpmerrors.DependencyChainEntry) (string, error) {
	capped := tmplText
	if b, ok := FindBoundaries([]byte(tmplText)); ok {
		capped = tmplText[b.Start:b.End]
	}
	if len(capped) > FrontmatterSizeCap {
		return "", agpmerrors.NewFrontmatterParseError(path,
			fmt.Errorf("frontmatter exceeds %d byte cap", FrontmatterSizeCap))
	}

	tmpl, err := template.New(path).Funcs(r.funcs).Option("missingkey=error").Parse(tmplText)
	if err != nil {
		return "", agpmerrors.NewTemplateRenderError(path, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variantInputs); err != nil {
		if m := missingKeyPattern.FindStringSubmatch(err.Error()); m != nil {
			variable := m[1][1:] // drop the leading "."
			return "", agpmerrors.NewMissingVariableError(path, variable, topLevelKeys(variantInputs), chain)
		}
		return "", agpmerrors.NewTemplateRenderError(path, err)
	}

	return buf.String(), nil
}

// RenderPass1 renders only the frontmatter text denoted by b, returning the
// rendered frontmatter string. The caller splices it back with
// ReplaceFrontmatter and parses it with ParseMetadata to discover the
// declared dependency graph.
func (r *Renderer) RenderPass1(path string, content []byte, b Boundaries, variantInputs map[string]any, chain []agpmerrors.DependencyChainEntry) (string, error) {
	return r.RenderString(path, Raw(content, b), variantInputs, chain)
}

// RenderPass2 renders the entire spliced file (frontmatter + body) once the
// transitive dependency graph and its rendered content are known.
func (r *Renderer) RenderPass2(path string, splicedContent []byte, variantInputs map[string]any, chain []agpmerrors.DependencyChainEntry) (string, error) {
	return r.RenderString(path, string(splicedContent), variantInputs, chain)
}

// ExtractMetadata runs pass-1 rendering and metadata extraction for one
// resource's raw content, returning the body ready for pass-2 (frontmatter
// spliced back in for Markdown-shaped resources, content unchanged
// otherwise) alongside the declared dependency graph. A file with no
// frontmatter fence is parsed as JSON metadata (hooks, mcp-servers); a file
// that parses as neither simply has no metadata and passes through
// untouched. Shared by the resolver and the installer so both walk exactly
// the same pass-1 logic when re-deriving a resource's transitive graph.
//
// A YAML/JSON parse failure *after* pass-1 templating is non-fatal: per
// spec.md's "detect YAML parse in frontmatter → warn once per file and
// continue without that resource's declared dependencies" and the ground
// truth in original_source's parse_with_templating (data: None, no Err),
// the resource is treated as having no metadata rather than aborting the
// whole resolve/install run.
func (r *Renderer) ExtractMetadata(path string, content []byte, variantInputs map[string]any, chain []agpmerrors.DependencyChainEntry) ([]byte, Metadata, error) {
	if b, ok := FindBoundaries(content); ok {
		renderedFM, err := r.RenderPass1(path, content, b, variantInputs, chain)
		if err != nil {
			return nil, Metadata{}, err
		}
		spliced, err := ReplaceFrontmatter(content, renderedFM, b)
		if err != nil {
			return nil, Metadata{}, err
		}
		meta, err := ParseMetadata(renderedFM)
		if err != nil {
			r.warnFrontmatterParseOnce(path, err)
			return spliced, Metadata{}, nil
		}
		return spliced, meta, nil
	}

	var raw map[string]any
	if json.Unmarshal(content, &raw) == nil {
		meta, err := ParseJSONMetadata(raw)
		if err != nil {
			r.warnFrontmatterParseOnce(path, err)
			return content, Metadata{}, nil
		}
		return content, meta, nil
	}

	return content, Metadata{}, nil
}

func topLevelKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
