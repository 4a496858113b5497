package manifest

import (
	"strings"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/pathutil"
	"github.com/agpm-dev/agpm/internal/restype"
)

// Validate enforces the seven manifest invariants and returns every
// violation found (rather than stopping at the first), so `agpm validate`
// can report everything in one pass.
func (m *Manifest) Validate() []*agpmerrors.ValidationError {
	var errs []*agpmerrors.ValidationError

	errs = append(errs, m.validateSourceReferences()...)
	errs = append(errs, m.validateLocalNoVersion()...)
	errs = append(errs, m.validateUniqueNamesCaseInsensitive()...)
	errs = append(errs, m.validateConsistentVersions()...)
	errs = append(errs, m.validateToolReferences()...)
	errs = append(errs, m.validatePatchTargets()...)
	errs = append(errs, m.validateSourceURLs()...)

	return errs
}

// 1. Every source referenced by a dependency exists in Sources.
func (m *Manifest) validateSourceReferences() []*agpmerrors.ValidationError {
	var errs []*agpmerrors.ValidationError
	for _, e := range m.AllResources() {
		if e.Dep.Source == nil {
			continue
		}
		if _, ok := m.Sources[*e.Dep.Source]; !ok {
			errs = append(errs, agpmerrors.NewValidationError(
				e.Type.Plural()+"."+e.Name, "source", "a declared [sources] key", *e.Dep.Source))
		}
	}
	return errs
}

// 2. Local (sourceless) dependencies never carry a version.
func (m *Manifest) validateLocalNoVersion() []*agpmerrors.ValidationError {
	var errs []*agpmerrors.ValidationError
	for _, e := range m.AllResources() {
		if e.Dep.Source != nil {
			continue
		}
		if e.Dep.Version != "" {
			errs = append(errs, agpmerrors.NewValidationError(
				e.Type.Plural()+"."+e.Name, "version", "empty (local dependencies are unversioned)", e.Dep.Version))
		}
	}
	return errs
}

// 3. No two dependencies within the same section share a name case-insensitively.
func (m *Manifest) validateUniqueNamesCaseInsensitive() []*agpmerrors.ValidationError {
	var errs []*agpmerrors.ValidationError
	for _, t := range restype.All {
		seen := make(map[string]string)
		for name := range m.sectionFor(t) {
			lower := strings.ToLower(name)
			if existing, ok := seen[lower]; ok {
				errs = append(errs, agpmerrors.NewValidationError(
					t.Plural(), "name", "unique (case-insensitive) name", name+" collides with "+existing))
			} else {
				seen[lower] = name
			}
		}
	}
	return errs
}

// 4. Within a section, two dependencies with the same name must carry the
// same version. Names are already required unique by rule 3, so this guards
// against the only remaining way two declarations can disagree: the private
// overlay re-declaring a project-manifest name with a different version.
// mergeDependencies records those mismatches (the project-manifest value is
// gone by the time Validate runs, since the overlay wins by name) so this
// just surfaces what was found during the merge.
func (m *Manifest) validateConsistentVersions() []*agpmerrors.ValidationError {
	return m.versionConflicts
}

// 5. Every declared tool exists in Tools, and the resource type is supported by it.
func (m *Manifest) validateToolReferences() []*agpmerrors.ValidationError {
	var errs []*agpmerrors.ValidationError
	for _, e := range m.AllResources() {
		if e.Dep.Tool == "" {
			continue
		}
		tc, ok := m.Tools[e.Dep.Tool]
		if !ok {
			errs = append(errs, agpmerrors.NewValidationError(
				e.Type.Plural()+"."+e.Name, "tool", "a declared [tools] entry", e.Dep.Tool))
			continue
		}
		rc := tc.Resources[e.Type.Plural()]
		if !rc.Supported() {
			errs = append(errs, agpmerrors.NewValidationError(
				e.Type.Plural()+"."+e.Name, "tool", "a tool supporting "+e.Type.Plural(), e.Dep.Tool))
		}
	}
	return errs
}

// 6. Patch keys reference dependencies that exist in the corresponding section.
func (m *Manifest) validatePatchTargets() []*agpmerrors.ValidationError {
	var errs []*agpmerrors.ValidationError
	for plural, aliases := range m.Patches {
		t, err := restype.ParsePlural(plural)
		if err != nil {
			errs = append(errs, agpmerrors.NewValidationError("patches", "section", "a known resource-type section", plural))
			continue
		}
		sec := m.sectionFor(t)
		for alias := range aliases {
			if _, ok := sec[alias]; !ok {
				errs = append(errs, agpmerrors.NewValidationError(
					"patches."+plural+"."+alias, "alias", "an existing dependency name in ["+plural+"]", alias))
			}
		}
	}
	return errs
}

// 7. Source URLs never embed credentials and do not use plain relative directory paths.
func (m *Manifest) validateSourceURLs() []*agpmerrors.ValidationError {
	var errs []*agpmerrors.ValidationError
	for name, url := range m.Sources {
		if strings.Contains(url, "@") && (strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
			errs = append(errs, agpmerrors.NewValidationError(
				"sources."+name, "url", "no embedded credentials", url))
		}
		class := pathutil.ClassifyURL(url)
		if class == pathutil.ClassLocalRelative {
			errs = append(errs, agpmerrors.NewValidationError(
				"sources."+name, "url", "an absolute path, file://, http(s)://, or ssh URL", url))
		}
	}
	return errs
}
