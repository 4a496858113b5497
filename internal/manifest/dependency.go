package manifest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Dependency is a manifest dependency entry. It may appear in TOML as a bare
// string (the simple form, always a local path) or as an inline/standard
// table (the detailed form). Source == nil means a local, sourceless
// dependency relative to the manifest directory.
type Dependency struct {
	Source       *string
	Path         string
	Version      string
	Branch       string
	Rev          string
	Command      string
	Args         []string
	Target       string
	Filename     string
	Dependencies []string
	Tool         string
	Flatten      bool
	Install      *bool
	TemplateVars map[string]any

	// ManifestAlias, set by the resolver during pattern expansion, names the
	// manifest key a pattern-expanded Dependency came from. Never present on
	// a freshly manifest-loaded Dependency.
	ManifestAlias string
}

// IsRemote reports whether this dependency is fetched from a declared source.
func (d *Dependency) IsRemote() bool {
	return d.Source != nil && *d.Source != ""
}

// IsPattern reports whether Path contains glob metacharacters.
func (d *Dependency) IsPattern() bool {
	return strings.ContainsAny(d.Path, "*?{}[]")
}

// InstallEnabled reports the effective install flag, defaulting to true.
func (d *Dependency) InstallEnabled() bool {
	return d.Install == nil || *d.Install
}

// EffectiveVersion returns the version spec to resolve against, defaulting
// to "main" for remote dependencies that omit one.
func (d *Dependency) EffectiveVersion() string {
	switch {
	case d.Version != "":
		return d.Version
	case d.Rev != "":
		return d.Rev
	case d.Branch != "":
		return d.Branch
	case d.IsRemote():
		return "main"
	default:
		return ""
	}
}

// UnmarshalTOML implements toml.Unmarshaler, accepting either a bare path
// string or a detailed table. Hand-rolled field extraction is used instead
// of a nested (un)marshal round trip so the accepted shapes stay explicit.
func (d *Dependency) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case string:
		d.Path = v
		return nil
	case map[string]any:
		return d.fromTable(v)
	default:
		return fmt.Errorf("dependency must be a string or table, got %T", value)
	}
}

func (d *Dependency) fromTable(v map[string]any) error {
	if s, ok := stringField(v, "source"); ok {
		d.Source = &s
	}
	d.Path, _ = stringField(v, "path")
	d.Version, _ = stringField(v, "version")
	d.Branch, _ = stringField(v, "branch")
	d.Rev, _ = stringField(v, "rev")
	d.Command, _ = stringField(v, "command")
	d.Target, _ = stringField(v, "target")
	d.Filename, _ = stringField(v, "filename")
	d.Tool, _ = stringField(v, "tool")

	if args, ok := v["args"].([]any); ok {
		d.Args = toStringSlice(args)
	}
	if deps, ok := v["dependencies"].([]any); ok {
		d.Dependencies = toStringSlice(deps)
	}
	if flatten, ok := v["flatten"].(bool); ok {
		d.Flatten = flatten
	}
	if install, ok := v["install"].(bool); ok {
		d.Install = &install
	}
	if tv, ok := v["template_vars"].(map[string]any); ok {
		d.TemplateVars = tv
	}

	if d.Path == "" {
		return fmt.Errorf("dependency table missing required field %q", "path")
	}
	return nil
}

func stringField(v map[string]any, key string) (string, bool) {
	s, ok := v[key].(string)
	return s, ok
}

func toStringSlice(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// isSimple reports whether this dependency can round-trip as a bare string.
func (d *Dependency) isSimple() bool {
	return d.Source == nil && d.Version == "" && d.Branch == "" && d.Rev == "" &&
		d.Command == "" && len(d.Args) == 0 && d.Target == "" && d.Filename == "" &&
		len(d.Dependencies) == 0 && d.Tool == "" && !d.Flatten && d.Install == nil &&
		len(d.TemplateVars) == 0
}

// MarshalTOML implements toml.Marshaler, preferring the compact string form
// whenever the dependency carries no detailed fields, and emitting a
// hand-built inline table otherwise so field order stays deterministic.
func (d *Dependency) MarshalTOML() ([]byte, error) {
	if d.isSimple() {
		return []byte(quoteTOMLString(d.Path)), nil
	}

	var parts []string
	if d.Source != nil {
		parts = append(parts, "source = "+quoteTOMLString(*d.Source))
	}
	parts = append(parts, "path = "+quoteTOMLString(d.Path))
	if d.Version != "" {
		parts = append(parts, "version = "+quoteTOMLString(d.Version))
	}
	if d.Branch != "" {
		parts = append(parts, "branch = "+quoteTOMLString(d.Branch))
	}
	if d.Rev != "" {
		parts = append(parts, "rev = "+quoteTOMLString(d.Rev))
	}
	if d.Command != "" {
		parts = append(parts, "command = "+quoteTOMLString(d.Command))
	}
	if len(d.Args) > 0 {
		parts = append(parts, "args = "+quoteTOMLStringArray(d.Args))
	}
	if d.Target != "" {
		parts = append(parts, "target = "+quoteTOMLString(d.Target))
	}
	if d.Filename != "" {
		parts = append(parts, "filename = "+quoteTOMLString(d.Filename))
	}
	if len(d.Dependencies) > 0 {
		parts = append(parts, "dependencies = "+quoteTOMLStringArray(d.Dependencies))
	}
	if d.Tool != "" {
		parts = append(parts, "tool = "+quoteTOMLString(d.Tool))
	}
	if d.Flatten {
		parts = append(parts, "flatten = true")
	}
	if d.Install != nil {
		parts = append(parts, "install = "+strconv.FormatBool(*d.Install))
	}
	if len(d.TemplateVars) > 0 {
		parts = append(parts, "template_vars = "+inlineTable(d.TemplateVars))
	}

	return []byte("{ " + strings.Join(parts, ", ") + " }"), nil
}

func quoteTOMLString(s string) string {
	return strconv.Quote(s)
}

func quoteTOMLStringArray(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = quoteTOMLString(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// inlineTable renders a generic map as a TOML inline table with keys sorted
// for deterministic output.
func inlineTable(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" = "+inlineValue(m[k]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func inlineValue(v any) string {
	switch val := v.(type) {
	case string:
		return quoteTOMLString(val)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		return inlineTable(val)
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = inlineValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}
