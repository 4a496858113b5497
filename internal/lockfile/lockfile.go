// Package lockfile provides the typed representation of agpm.lock: the
// resolver's pinned output, its per-type resource collections, and
// deterministic load/save.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/atomicfile"
	"github.com/agpm-dev/agpm/internal/restype"
)

// SourceEntry records one declared source's URL and, in FetchedAt, the
// author time of the commit the resolver first pinned from that source
// (zero when that commit's time cannot be read), for `agpm list`/diagnostics.
type SourceEntry struct {
	Name      string    `toml:"name"`
	URL       string    `toml:"url"`
	FetchedAt time.Time `toml:"fetched_at"`
}

// LockedResource is one pinned, fully-resolved dependency. Field order
// matches the external format's canonical order (spec §6) so Save produces
// the documented field ordering regardless of struct literal construction
// order.
type LockedResource struct {
	Name            string            `toml:"name"`
	Source          string            `toml:"source,omitempty"`
	URL             string            `toml:"url,omitempty"`
	Path            string            `toml:"path"`
	Version         string            `toml:"version,omitempty"`
	ResolvedCommit  string            `toml:"resolved_commit,omitempty"`
	Checksum        string            `toml:"checksum"`
	InstalledAt     string            `toml:"installed_at"`
	Dependencies    []string          `toml:"dependencies,omitempty"`
	ResourceType    restype.Type      `toml:"resource_type"`
	Tool            string            `toml:"tool,omitempty"`
	ManifestAlias   string            `toml:"manifest_alias,omitempty"`
	AppliedPatches  map[string]any    `toml:"applied_patches,omitempty"`
	VariantInputs   map[string]any    `toml:"variant_inputs,omitempty"`
	Install         *bool             `toml:"install,omitempty"`
}

// DependencyRefs parses Dependencies into structured refs, skipping (rather
// than failing on) any entry that doesn't parse, since a partially-written
// lockfile should not block inspection commands.
func (r *LockedResource) DependencyRefs() []DependencyRef {
	var out []DependencyRef
	for _, s := range r.Dependencies {
		if ref, err := ParseDependencyRef(s); err == nil {
			out = append(out, ref)
		}
	}
	return out
}

// Lockfile is the typed representation of agpm.lock.
type Lockfile struct {
	Sources    []SourceEntry      `toml:"sources,omitempty"`
	Agents     []*LockedResource  `toml:"agents,omitempty"`
	Snippets   []*LockedResource  `toml:"snippets,omitempty"`
	Commands   []*LockedResource  `toml:"commands,omitempty"`
	Scripts    []*LockedResource  `toml:"scripts,omitempty"`
	Hooks      []*LockedResource  `toml:"hooks,omitempty"`
	MCPServers []*LockedResource  `toml:"mcp-servers,omitempty"`
	Skills     []*LockedResource  `toml:"skills,omitempty"`

	dir string
}

// New returns an empty Lockfile rooted at dir.
func New(dir string) *Lockfile {
	return &Lockfile{dir: dir}
}

// Dir returns the directory this lockfile was loaded from (or will be saved
// to).
func (l *Lockfile) Dir() string {
	return l.dir
}

func (l *Lockfile) sectionFor(t restype.Type) []*LockedResource {
	switch t {
	case restype.Agent:
		return l.Agents
	case restype.Snippet:
		return l.Snippets
	case restype.Command:
		return l.Commands
	case restype.Script:
		return l.Scripts
	case restype.Hook:
		return l.Hooks
	case restype.MCPServer:
		return l.MCPServers
	case restype.Skill:
		return l.Skills
	default:
		return nil
	}
}

func (l *Lockfile) setSection(t restype.Type, resources []*LockedResource) {
	switch t {
	case restype.Agent:
		l.Agents = resources
	case restype.Snippet:
		l.Snippets = resources
	case restype.Command:
		l.Commands = resources
	case restype.Script:
		l.Scripts = resources
	case restype.Hook:
		l.Hooks = resources
	case restype.MCPServer:
		l.MCPServers = resources
	case restype.Skill:
		l.Skills = resources
	}
}

// GetResources returns the locked resources of type t.
func (l *Lockfile) GetResources(t restype.Type) []*LockedResource {
	return l.sectionFor(t)
}

// AddResource appends a locked resource to its type's collection.
func (l *Lockfile) AddResource(t restype.Type, r *LockedResource) {
	r.ResourceType = t
	l.setSection(t, append(l.sectionFor(t), r))
}

// AllResources returns every locked resource across every type, in the
// canonical section order.
func (l *Lockfile) AllResources() []*LockedResource {
	var out []*LockedResource
	for _, t := range restype.All {
		out = append(out, l.sectionFor(t)...)
	}
	return out
}

// Sort orders every per-type collection by (name, source) and the top-level
// sources list by name, the determinism invariant required for
// byte-identical lockfiles across runs.
func (l *Lockfile) Sort() {
	for _, t := range restype.All {
		sec := l.sectionFor(t)
		sort.Slice(sec, func(i, j int) bool {
			if sec[i].Name != sec[j].Name {
				return sec[i].Name < sec[j].Name
			}
			return sec[i].Source < sec[j].Source
		})
		l.setSection(t, sec)
	}
	sort.Slice(l.Sources, func(i, j int) bool { return l.Sources[i].Name < l.Sources[j].Name })
}

// Load reads and parses agpm.lock from dir. A missing lockfile is not an
// error; callers that require one must check the returned bool.
func Load(dir string) (*Lockfile, bool, error) {
	path := filepath.Join(dir, "agpm.lock")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(dir), false, nil
		}
		return nil, false, agpmerrors.Wrap(agpmerrors.CategoryIO, "failed to read lockfile", err)
	}

	l := &Lockfile{dir: dir}
	if err := toml.Unmarshal(data, l); err != nil {
		return nil, false, &agpmerrors.Error{
			Category: agpmerrors.CategoryParse,
			Code:     agpmerrors.CodeLockfileParse,
			Message:  fmt.Sprintf("failed to parse lockfile %s", path),
			Cause:    err,
		}
	}
	for _, t := range restype.All {
		for _, r := range l.sectionFor(t) {
			r.ResourceType = t
		}
	}
	return l, true, nil
}

// LoadPrivate reads agpm.private.lock the same way Load reads agpm.lock.
func LoadPrivate(dir string) (*Lockfile, bool, error) {
	path := filepath.Join(dir, "agpm.private.lock")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(dir), false, nil
		}
		return nil, false, agpmerrors.Wrap(agpmerrors.CategoryIO, "failed to read private lockfile", err)
	}
	l := &Lockfile{dir: dir}
	if err := toml.Unmarshal(data, l); err != nil {
		return nil, false, &agpmerrors.Error{
			Category: agpmerrors.CategoryParse,
			Code:     agpmerrors.CodeLockfileParse,
			Message:  fmt.Sprintf("failed to parse private lockfile %s", path),
			Cause:    err,
		}
	}
	for _, t := range restype.All {
		for _, r := range l.sectionFor(t) {
			r.ResourceType = t
		}
	}
	return l, true, nil
}

// Save sorts and serializes the lockfile to agpm.lock, atomically.
func (l *Lockfile) Save() error {
	return l.saveAs(filepath.Join(l.dir, "agpm.lock"))
}

// SavePrivate sorts and serializes the lockfile to agpm.private.lock.
func (l *Lockfile) SavePrivate() error {
	return l.saveAs(filepath.Join(l.dir, "agpm.private.lock"))
}

func (l *Lockfile) saveAs(path string) error {
	l.Sort()
	data, err := toml.Marshal(l)
	if err != nil {
		return agpmerrors.Wrap(agpmerrors.CategoryIO, "failed to encode lockfile", err)
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return agpmerrors.Wrap(agpmerrors.CategoryIO, "failed to write lockfile", err)
	}
	return nil
}

// Merged returns a single Lockfile view combining tracked and private
// resources, as the resolver treats them (read-only; callers must not save
// the result back to either file directly).
func Merged(tracked, private *Lockfile) *Lockfile {
	out := New(tracked.dir)
	out.Sources = append(append([]SourceEntry{}, tracked.Sources...), private.Sources...)
	for _, t := range restype.All {
		combined := append(append([]*LockedResource{}, tracked.sectionFor(t)...), private.sectionFor(t)...)
		out.setSection(t, combined)
	}
	return out
}
