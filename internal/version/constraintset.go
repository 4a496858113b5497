package version

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// ConstraintSet aggregates every constraint declared on one dependency name
// across the whole resolution graph. Adding a constraint runs conflict
// detection immediately so a bad combination surfaces at the point it's
// introduced, not at final selection time.
type ConstraintSet struct {
	name        string
	constraints []Constraint
	// requiredBy parallels constraints, recording which parent introduced each one.
	requiredBy []string
}

// NewConstraintSet returns an empty set for the named dependency.
func NewConstraintSet(name string) *ConstraintSet {
	return &ConstraintSet{name: name}
}

// Add appends a constraint, rejecting it if it conflicts with one already
// in the set. Two Exact constraints with different versions conflict; two
// GitRefs with different values conflict. Requirements with different
// prefixes are independent namespaces and never conflict with each other.
func (s *ConstraintSet) Add(c Constraint, requiredBy string) error {
	for i, existing := range s.constraints {
		if conflicts(existing, c) {
			return fmt.Errorf("version conflict for %q: %q (required by %s) conflicts with %q (required by %s)",
				s.name, existing.String(), s.requiredBy[i], c.String(), requiredBy)
		}
	}
	s.constraints = append(s.constraints, c)
	s.requiredBy = append(s.requiredBy, requiredBy)
	return nil
}

func conflicts(a, b Constraint) bool {
	switch av := a.(type) {
	case Exact:
		if bv, ok := b.(Exact); ok {
			return !av.Version.Equal(bv.Version)
		}
	case GitRef:
		if bv, ok := b.(GitRef); ok {
			return av.Ref != bv.Ref
		}
	case Requirement:
		// Two Requirements never conflict outright: they narrow the
		// candidate set jointly in FindBestMatch's AND-all-constraints
		// pass, even when their prefixes differ (independent namespaces
		// that both happen to apply).
		_ = av
	}
	return false
}

// Constraints returns the raw constraints added to the set, in add order.
func (s *ConstraintSet) Constraints() []Constraint {
	return s.constraints
}

// RequiredBy returns the parent names that introduced each constraint, index-aligned with Constraints().
func (s *ConstraintSet) RequiredBy() []string {
	return s.requiredBy
}

// FindBestMatch filters candidates to those matching every constraint in the
// set, drops prereleases unless some constraint allows them, sorts
// descending, and returns the head. Candidates that don't parse as semver
// (bare git refs) are never matched by this path; callers resolve GitRef/
// Latest-only sets directly against the source cache instead.
func (s *ConstraintSet) FindBestMatch(candidates []*semver.Version) (*semver.Version, error) {
	allowPre := false
	for _, c := range s.constraints {
		if c.AllowsPrerelease() {
			allowPre = true
			break
		}
	}

	var matches []*semver.Version
	for _, v := range candidates {
		if v.Prerelease() != "" && !allowPre {
			continue
		}
		ok := true
		for _, c := range s.constraints {
			if !c.Allows(v) {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, v)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no version of %q satisfies all constraints", s.name)
	}

	sort.Sort(sort.Reverse(semverSlice(matches)))
	return matches[0], nil
}

// GitRefOnly reports whether every constraint in the set is a GitRef or
// Latest, meaning resolution bypasses semver matching entirely and defers to
// the source cache's ref resolution.
func (s *ConstraintSet) GitRefOnly() bool {
	for _, c := range s.constraints {
		switch c.(type) {
		case GitRef, Latest:
		default:
			return false
		}
	}
	return true
}

type semverSlice []*semver.Version

func (s semverSlice) Len() int           { return len(s) }
func (s semverSlice) Less(i, j int) bool { return s[i].LessThan(s[j]) }
func (s semverSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// ConflictingRequirement describes one constraint contributing to a
// VersionConflict, for structured error reporting.
type ConflictingRequirement struct {
	RequiredBy      string
	Requirement     string
	ResolvedSHA     string
	ResolvedVersion string
}

// VersionConflict reports that a dependency name has no version satisfying
// every constraint placed on it across the graph.
type VersionConflict struct {
	Resource                string
	ConflictingRequirements []ConflictingRequirement
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("version conflict for %q: no version satisfies all %d requirement(s)",
		e.Resource, len(e.ConflictingRequirements))
}

// ConstraintResolver holds a ConstraintSet per dependency name and resolves
// the whole graph against an available-version catalogue in one pass.
type ConstraintResolver struct {
	sets map[string]*ConstraintSet
	// order preserves first-seen insertion order for deterministic iteration.
	order []string
}

// NewConstraintResolver returns an empty resolver.
func NewConstraintResolver() *ConstraintResolver {
	return &ConstraintResolver{sets: make(map[string]*ConstraintSet)}
}

// Require registers a constraint on name, creating its ConstraintSet on
// first use. requiredBy names the dependent resource for conflict reporting.
func (r *ConstraintResolver) Require(name string, c Constraint, requiredBy string) error {
	set, ok := r.sets[name]
	if !ok {
		set = NewConstraintSet(name)
		r.sets[name] = set
		r.order = append(r.order, name)
	}
	return set.Add(c, requiredBy)
}

// Set returns the ConstraintSet for name, or nil if none was registered.
func (r *ConstraintResolver) Set(name string) *ConstraintSet {
	return r.sets[name]
}

// Names returns every registered dependency name in first-seen order.
func (r *ConstraintResolver) Names() []string {
	return append([]string{}, r.order...)
}

// ResolveAll resolves every registered name against its matching entry in
// catalogues, returning a name->version map or the first VersionConflict
// encountered (names are visited in sorted order so the error is
// deterministic across runs).
func (r *ConstraintResolver) ResolveAll(catalogues map[string][]*semver.Version) (map[string]*semver.Version, *VersionConflict) {
	names := append([]string{}, r.order...)
	sort.Strings(names)

	resolved := make(map[string]*semver.Version, len(names))
	for _, name := range names {
		set := r.sets[name]
		best, err := set.FindBestMatch(catalogues[name])
		if err != nil {
			var reqs []ConflictingRequirement
			for i, c := range set.Constraints() {
				reqs = append(reqs, ConflictingRequirement{
					RequiredBy:  set.RequiredBy()[i],
					Requirement: c.String(),
				})
			}
			return nil, &VersionConflict{Resource: name, ConflictingRequirements: reqs}
		}
		resolved[name] = best
	}
	return resolved, nil
}
