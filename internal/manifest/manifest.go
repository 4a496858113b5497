// Package manifest provides the typed representation of agpm's project and
// private manifest files, their validation, and query/mutation helpers.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/atomicfile"
	"github.com/agpm-dev/agpm/internal/restype"
)

// ResourceConfig describes how one resource type is handled by one tool.
type ResourceConfig struct {
	Path        string `toml:"path,omitempty"`
	MergeTarget string `toml:"merge_target,omitempty"`
	Enabled     *bool  `toml:"enabled,omitempty"`
}

// IsEnabled reports the effective enabled flag, defaulting to true.
func (r *ResourceConfig) IsEnabled() bool {
	return r == nil || r.Enabled == nil || *r.Enabled
}

// Supported reports whether this resource config names either an artifact
// path (file installs) or a merge target (shared-file installs).
func (r *ResourceConfig) Supported() bool {
	return r != nil && (r.Path != "" || r.MergeTarget != "")
}

// ToolConfig describes one consumer of installed resources.
type ToolConfig struct {
	Path      string                     `toml:"path"`
	Resources map[string]*ResourceConfig `toml:"resources"`
}

// Manifest is the typed representation of agpm.toml.
type Manifest struct {
	Sources      map[string]string                    `toml:"sources,omitempty"`
	Target       map[string]string                     `toml:"target,omitempty"`
	Agents       map[string]*Dependency                `toml:"agents,omitempty"`
	Snippets     map[string]*Dependency                `toml:"snippets,omitempty"`
	Commands     map[string]*Dependency                `toml:"commands,omitempty"`
	Scripts      map[string]*Dependency                `toml:"scripts,omitempty"`
	Hooks        map[string]*Dependency                `toml:"hooks,omitempty"`
	MCPServers   map[string]*Dependency                `toml:"mcp-servers,omitempty"`
	Skills       map[string]*Dependency                `toml:"skills,omitempty"`
	Tools        map[string]*ToolConfig                `toml:"tools,omitempty"`
	Project      map[string]any                        `toml:"project,omitempty"`
	Patches      map[string]map[string]map[string]any  `toml:"patches,omitempty"`
	DefaultTools map[string]string                      `toml:"default-tools,omitempty"`

	// dir is the directory containing the manifest file; never serialized.
	dir string `toml:"-"`

	// versionConflicts accumulates invariant-4 violations found while
	// merging a private overlay: a dependency name shadowed by
	// agpm.private.toml whose version differs from the project manifest's.
	// Surfaced by validateConsistentVersions; nil outside LoadWithPrivate.
	versionConflicts []*agpmerrors.ValidationError `toml:"-"`
}

// Dir returns the directory the manifest was loaded from (or will be saved
// to), used to resolve relative local-dependency paths.
func (m *Manifest) Dir() string {
	return m.dir
}

// sectionFor returns the dependency map for a resource type.
func (m *Manifest) sectionFor(t restype.Type) map[string]*Dependency {
	switch t {
	case restype.Agent:
		return m.Agents
	case restype.Snippet:
		return m.Snippets
	case restype.Command:
		return m.Commands
	case restype.Script:
		return m.Scripts
	case restype.Hook:
		return m.Hooks
	case restype.MCPServer:
		return m.MCPServers
	case restype.Skill:
		return m.Skills
	default:
		return nil
	}
}

func (m *Manifest) ensureSection(t restype.Type) map[string]*Dependency {
	sec := m.sectionFor(t)
	if sec != nil {
		return sec
	}
	sec = make(map[string]*Dependency)
	switch t {
	case restype.Agent:
		m.Agents = sec
	case restype.Snippet:
		m.Snippets = sec
	case restype.Command:
		m.Commands = sec
	case restype.Script:
		m.Scripts = sec
	case restype.Hook:
		m.Hooks = sec
	case restype.MCPServer:
		m.MCPServers = sec
	case restype.Skill:
		m.Skills = sec
	}
	return sec
}

// New returns an empty Manifest rooted at dir.
func New(dir string) *Manifest {
	return &Manifest{dir: dir}
}

// Load reads and parses agpm.toml from dir, applies default-tool fill-in,
// and validates it.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "agpm.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, agpmerrors.NewManifestNotFoundError(path)
		}
		return nil, agpmerrors.Wrap(agpmerrors.CategoryIO, "failed to read manifest", err)
	}

	m := &Manifest{dir: dir}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, (&agpmerrors.Error{
			Category: agpmerrors.CategoryParse,
			Code:     agpmerrors.CodeManifestParse,
			Message:  fmt.Sprintf("failed to parse manifest %s", path),
			Cause:    err,
		})
	}

	m.applyDefaultTools()

	if errs := m.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}

	return m, nil
}

// applyDefaultTools fills in the owning tool for every dependency that
// doesn't declare one explicitly, using DefaultTools overrides first and
// falling back to the resource type's built-in default.
func (m *Manifest) applyDefaultTools() {
	for _, t := range restype.All {
		sec := m.sectionFor(t)
		def := t.DefaultTool()
		if m.DefaultTools != nil {
			if override, ok := m.DefaultTools[t.Plural()]; ok && override != "" {
				def = override
			}
		}
		for _, dep := range sec {
			if dep.Tool == "" {
				dep.Tool = def
			}
		}
	}
}

// ResourceEntry is one (resource_type, name, dependency) tuple, yielded by
// AllResources in a deterministic order.
type ResourceEntry struct {
	Type restype.Type
	Name string
	Dep  *Dependency
}

// AllResources yields every declared dependency across every section, sorted
// by (resource_type, name) for deterministic iteration.
func (m *Manifest) AllResources() []ResourceEntry {
	var out []ResourceEntry
	for _, t := range restype.All {
		sec := m.sectionFor(t)
		names := make([]string, 0, len(sec))
		for name := range sec {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, ResourceEntry{Type: t, Name: name, Dep: sec[name]})
		}
	}
	return out
}

// GetArtifactResourcePath returns the install-target base directory for
// (tool, type), and whether that (tool, type) combination is supported.
func (m *Manifest) GetArtifactResourcePath(tool string, t restype.Type) (string, bool) {
	tc, ok := m.Tools[tool]
	if !ok || tc.Resources == nil {
		return "", false
	}
	rc, ok := tc.Resources[t.Plural()]
	if !ok || !rc.Supported() || rc.Path == "" {
		return "", false
	}
	return filepath.Join(tc.Path, rc.Path), true
}

// GetMergeTarget returns the shared-config file path for (tool, type), and
// whether that (tool, type) combination merges into a shared file.
func (m *Manifest) GetMergeTarget(tool string, t restype.Type) (string, bool) {
	tc, ok := m.Tools[tool]
	if !ok || tc.Resources == nil {
		return "", false
	}
	rc, ok := tc.Resources[t.Plural()]
	if !ok || !rc.Supported() || rc.MergeTarget == "" {
		return "", false
	}
	return filepath.Join(tc.Path, rc.MergeTarget), true
}

// ToolEnabled reports whether (tool, type) is enabled for iteration; disabled
// dependencies are silently skipped by the resolver, never failing it.
func (m *Manifest) ToolEnabled(tool string, t restype.Type) bool {
	tc, ok := m.Tools[tool]
	if !ok || tc.Resources == nil {
		return true
	}
	rc, ok := tc.Resources[t.Plural()]
	if !ok {
		return true
	}
	return rc.IsEnabled()
}

// Save serializes the manifest to agpm.toml under its directory using an
// atomic write.
func (m *Manifest) Save() error {
	data, err := toml.Marshal(m)
	if err != nil {
		return agpmerrors.Wrap(agpmerrors.CategoryIO, "failed to encode manifest", err)
	}
	path := filepath.Join(m.dir, "agpm.toml")
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return agpmerrors.Wrap(agpmerrors.CategoryIO, "failed to write manifest", err)
	}
	return nil
}
