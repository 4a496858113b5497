package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/restype"
)

// Conflict records a private-overlay entry that shadowed a project entry.
type Conflict struct {
	Section string
	Key     string
}

// PrivateOrigin marks, per (type, name), whether a locked resource's
// manifest entry came from the private overlay rather than the project
// manifest, so tooling can distinguish user-local resources.
type PrivateOrigin map[restype.Type]map[string]bool

// LoadWithPrivate loads agpm.toml, then merges agpm.private.toml from the
// same directory if present. Private sources and patches shadow project
// ones by name; a private manifest declaring [tools] is a validation error.
// Returns the merged manifest, the list of shadowed keys (informational,
// never fatal), and which dependency names originated in the overlay.
func LoadWithPrivate(dir string) (*Manifest, []Conflict, PrivateOrigin, error) {
	path := filepath.Join(dir, "agpm.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, agpmerrors.NewManifestNotFoundError(path)
		}
		return nil, nil, nil, agpmerrors.Wrap(agpmerrors.CategoryIO, "failed to read manifest", err)
	}

	m := &Manifest{dir: dir}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, nil, nil, &agpmerrors.Error{
			Category: agpmerrors.CategoryParse,
			Code:     agpmerrors.CodeManifestParse,
			Message:  fmt.Sprintf("failed to parse manifest %s", path),
			Cause:    err,
		}
	}

	origin := make(PrivateOrigin)
	var conflicts []Conflict

	privatePath := filepath.Join(dir, "agpm.private.toml")
	if privData, err := os.ReadFile(privatePath); err == nil {
		priv := &Manifest{dir: dir}
		if err := toml.Unmarshal(privData, priv); err != nil {
			return nil, nil, nil, &agpmerrors.Error{
				Category: agpmerrors.CategoryParse,
				Code:     agpmerrors.CodeManifestParse,
				Message:  fmt.Sprintf("failed to parse private manifest %s", privatePath),
				Cause:    err,
			}
		}
		if len(priv.Tools) > 0 {
			return nil, nil, nil, agpmerrors.NewPrivateConflictError("tools", "agpm.private.toml must not declare [tools]")
		}

		conflicts = append(conflicts, mergeSources(m, priv)...)
		conflicts = append(conflicts, mergePatches(m, priv)...)
		conflicts = append(conflicts, mergeDependencies(m, priv, origin)...)
	} else if !os.IsNotExist(err) {
		return nil, nil, nil, agpmerrors.Wrap(agpmerrors.CategoryIO, "failed to read private manifest", err)
	}

	m.applyDefaultTools()

	if errs := m.Validate(); len(errs) > 0 {
		return nil, nil, nil, errs[0]
	}

	return m, conflicts, origin, nil
}

func mergeSources(m, priv *Manifest) []Conflict {
	var conflicts []Conflict
	if len(priv.Sources) == 0 {
		return nil
	}
	if m.Sources == nil {
		m.Sources = make(map[string]string)
	}
	for name, url := range priv.Sources {
		if _, exists := m.Sources[name]; exists {
			conflicts = append(conflicts, Conflict{Section: "sources", Key: name})
		}
		m.Sources[name] = url
	}
	return conflicts
}

func mergePatches(m, priv *Manifest) []Conflict {
	var conflicts []Conflict
	for plural, aliases := range priv.Patches {
		if m.Patches == nil {
			m.Patches = make(map[string]map[string]map[string]any)
		}
		if m.Patches[plural] == nil {
			m.Patches[plural] = make(map[string]map[string]any)
		}
		for alias, patch := range aliases {
			if _, exists := m.Patches[plural][alias]; exists {
				conflicts = append(conflicts, Conflict{Section: "patches." + plural, Key: alias})
			}
			m.Patches[plural][alias] = patch
		}
	}
	return conflicts
}

func mergeDependencies(m, priv *Manifest, origin PrivateOrigin) []Conflict {
	var conflicts []Conflict
	for _, t := range restype.All {
		privSec := priv.sectionFor(t)
		if len(privSec) == 0 {
			continue
		}
		sec := m.ensureSection(t)
		for name, dep := range privSec {
			if existing, exists := sec[name]; exists {
				conflicts = append(conflicts, Conflict{Section: t.Plural(), Key: name})
				if pv, ov := existing.EffectiveVersion(), dep.EffectiveVersion(); pv != ov {
					m.versionConflicts = append(m.versionConflicts, agpmerrors.NewVersionMismatchError(
						t.Plural()+"."+name, pv, ov))
				}
			}
			sec[name] = dep
			if origin[t] == nil {
				origin[t] = make(map[string]bool)
			}
			origin[t][name] = true
		}
	}
	return conflicts
}
