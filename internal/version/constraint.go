// Package version implements agpm's constraint engine: parsing semver
// ranges, exact pins, and git refs, checking compatibility, and selecting
// the best match from a catalogue of available versions — grounded on the
// teacher's aqua registry version-override matching, generalized from a
// single override gate into a full constraint hierarchy.
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Constraint is one requirement on a dependency's version.
type Constraint interface {
	// Allows reports whether v satisfies this constraint.
	Allows(v *semver.Version) bool
	// AllowsPrerelease reports whether this constraint kind considers
	// prerelease versions in scope (git refs always do; semver kinds only
	// when the constraint text itself names a prerelease).
	AllowsPrerelease() bool
	// String renders the constraint back to its manifest spelling.
	String() string
}

// Exact pins a dependency to precisely one version.
type Exact struct {
	Prefix  string // e.g. "v"
	Version *semver.Version
}

func (e Exact) Allows(v *semver.Version) bool { return v.Equal(e.Version) }
func (e Exact) AllowsPrerelease() bool         { return e.Version.Prerelease() != "" }
func (e Exact) String() string                { return e.Prefix + e.Version.Original() }

// Requirement is a semver range (^, ~, >=, <, =, *).
type Requirement struct {
	Prefix string
	Req    *semver.Constraints
	Raw    string
}

func (r Requirement) Allows(v *semver.Version) bool { return r.Req.Check(v) }
func (r Requirement) AllowsPrerelease() bool {
	rest := strings.TrimPrefix(r.Raw, r.Prefix)
	return strings.Contains(strings.ReplaceAll(rest, " - ", " "), "-")
}
func (r Requirement) String() string { return r.Raw }

// GitRef is a branch name, unprefixed commit SHA, or tag that isn't a
// recognizable version. GitRefs always resolve to exactly themselves and are
// always considered "prerelease-allowing" since they bypass semver ordering
// entirely.
type GitRef struct {
	Ref string
}

func (g GitRef) Allows(v *semver.Version) bool { return false }
func (g GitRef) AllowsPrerelease() bool         { return true }
func (g GitRef) String() string                { return g.Ref }

// Latest selects the highest stable tag, falling back to main/master when a
// source has no tags at all (handled by the source cache, not here).
type Latest struct{}

func (l Latest) Allows(v *semver.Version) bool { return v.Prerelease() == "" }
func (l Latest) AllowsPrerelease() bool         { return false }
func (l Latest) String() string                { return "latest" }

// recognizedPrefixes are stripped before semver parsing and re-attached on
// render, so tags like "release-1.2.3" match the same way "v1.2.3" does.
var recognizedPrefixes = []string{"v", "release-"}

func splitPrefix(s string) (prefix, rest string) {
	for _, p := range recognizedPrefixes {
		if strings.HasPrefix(s, p) {
			return p, strings.TrimPrefix(s, p)
		}
	}
	return "", s
}

// Parse classifies a raw manifest version spec into a Constraint.
func Parse(raw string) (Constraint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "latest" {
		return Latest{}, nil
	}

	prefix, rest := splitPrefix(raw)

	if isRangeOperator(rest) {
		constraints, err := semver.NewConstraint(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid version requirement %q: %w", raw, err)
		}
		return Requirement{Prefix: prefix, Req: constraints, Raw: raw}, nil
	}

	if v, err := semver.NewVersion(rest); err == nil {
		return Exact{Prefix: prefix, Version: v}, nil
	}

	return GitRef{Ref: raw}, nil
}

func isRangeOperator(s string) bool {
	for _, op := range []string{"^", "~", ">=", "<=", ">", "<", "=", "*", ","} {
		if strings.Contains(s, op) {
			return true
		}
	}
	return false
}
