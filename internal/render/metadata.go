package render

import (
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/agpm-dev/agpm/internal/restype"
)

// FrontmatterSizeCap is the maximum frontmatter byte length accepted by
// either templating pass, per spec §4.F.
const FrontmatterSizeCap = 64 * 1024

// DependencySpec is one transitive dependency declared in a resource's
// frontmatter (as opposed to the project manifest).
type DependencySpec struct {
	Path         string
	Version      string
	Branch       string
	Rev          string
	Target       string
	Filename     string
	Tool         string
	Install      *bool
	TemplateVars map[string]any
}

// InstallEnabled reports the effective install flag, defaulting to true.
func (d DependencySpec) InstallEnabled() bool {
	return d.Install == nil || *d.Install
}

// Metadata is the parsed, pass-1-rendered frontmatter of a resource.
type Metadata struct {
	Templating   bool
	TemplateVars map[string]any
	Dependencies map[restype.Type][]DependencySpec
	Raw          map[string]any
}

// ParseMetadata parses rendered frontmatter YAML text into a Metadata.
// Called after pass-1 rendering so the YAML is guaranteed resolved (the
// pre-render text may not even be valid YAML when it contains unrendered
// template syntax).
func ParseMetadata(frontmatterYAML string) (Metadata, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(frontmatterYAML), &raw); err != nil {
		return Metadata{}, fmt.Errorf("render: parse frontmatter: %w", err)
	}
	return metadataFromMap(raw)
}

// ParseJSONMetadata extracts Metadata from a JSON resource's top-level
// `dependencies` object and optional `agpm` block, per spec §4.F.
func ParseJSONMetadata(raw map[string]any) (Metadata, error) {
	return metadataFromMap(raw)
}

func metadataFromMap(raw map[string]any) (Metadata, error) {
	m := Metadata{
		Dependencies: make(map[restype.Type][]DependencySpec),
		Raw:          raw,
	}

	if agpmBlock, ok := asMap(raw["agpm"]); ok {
		if t, ok := agpmBlock["templating"].(bool); ok {
			m.Templating = t
		}
		if tv, ok := asMap(agpmBlock["template_vars"]); ok {
			m.TemplateVars = tv
		}
	}

	depsBlock, ok := asMap(raw["dependencies"])
	if !ok {
		return m, nil
	}

	for _, t := range restype.All {
		list, ok := depsBlock[t.Plural()].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			spec, err := parseDependencySpec(item)
			if err != nil {
				return Metadata{}, fmt.Errorf("render: dependency %s.%v: %w", t.Plural(), item, err)
			}
			m.Dependencies[t] = append(m.Dependencies[t], spec)
		}
	}

	return m, nil
}

func parseDependencySpec(item any) (DependencySpec, error) {
	switch v := item.(type) {
	case string:
		return DependencySpec{Path: v}, nil
	case map[string]any:
		spec := DependencySpec{}
		spec.Path, _ = v["path"].(string)
		spec.Version, _ = v["version"].(string)
		spec.Branch, _ = v["branch"].(string)
		spec.Rev, _ = v["rev"].(string)
		spec.Target, _ = v["target"].(string)
		spec.Filename, _ = v["filename"].(string)
		spec.Tool, _ = v["tool"].(string)
		if install, ok := v["install"].(bool); ok {
			spec.Install = &install
		}
		if tv, ok := asMap(v["template_vars"]); ok {
			spec.TemplateVars = tv
		}
		if spec.Path == "" {
			return spec, fmt.Errorf("missing required field \"path\"")
		}
		return spec, nil
	default:
		return DependencySpec{}, fmt.Errorf("dependency entry must be a string or table, got %T", item)
	}
}

// InstalledDependencies filters a Metadata's declared dependencies down to
// those that should be written to disk as their own resources, as opposed
// to install:false dependencies that exist only to supply template content.
func InstalledDependencies(meta Metadata) map[restype.Type][]DependencySpec {
	out := make(map[restype.Type][]DependencySpec)
	for t, specs := range meta.Dependencies {
		for _, s := range specs {
			if s.InstallEnabled() {
				out[t] = append(out[t], s)
			}
		}
	}
	return out
}

// TemplateOnlyDependencies filters a Metadata's declared dependencies down
// to those with install:false — resources whose rendered content is
// consumed via `agpm.deps` but that are never themselves written to disk.
func TemplateOnlyDependencies(meta Metadata) map[restype.Type][]DependencySpec {
	out := make(map[restype.Type][]DependencySpec)
	for t, specs := range meta.Dependencies {
		for _, s := range specs {
			if !s.InstallEnabled() {
				out[t] = append(out[t], s)
			}
		}
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	default:
		return nil, false
	}
}
