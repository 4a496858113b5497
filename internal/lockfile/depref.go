package lockfile

import (
	"fmt"
	"strings"

	"github.com/agpm-dev/agpm/internal/restype"
)

// DependencyRef is a compact reference to another locked resource, used in
// LockedResource.Dependencies. It has three textual forms:
//
//	local:          <resource-type>:<path>[@<version>]
//	same-source:    <resource-type>/<name>[@<version>]
//	cross-source:   <source>:<resource-type>/<name>[@<version>]
type DependencyRef struct {
	// Source is set only for the cross-source form.
	Source string
	Type   restype.Type
	// Name is the locked resource's display name (same-source/cross-source
	// forms); Path is the repo-relative path (local form). Exactly one is set.
	Name string
	Path string
	// Version is the resolved/requested version annotation, appended during
	// the resolver's post-pass. Empty before that pass runs.
	Version string
}

// String renders the compact form described in the package comment.
func (r DependencyRef) String() string {
	var sb strings.Builder

	switch {
	case r.Path != "":
		sb.WriteString(string(r.Type))
		sb.WriteString(":")
		sb.WriteString(r.Path)
	case r.Source != "":
		sb.WriteString(r.Source)
		sb.WriteString(":")
		sb.WriteString(string(r.Type))
		sb.WriteString("/")
		sb.WriteString(r.Name)
	default:
		sb.WriteString(string(r.Type))
		sb.WriteString("/")
		sb.WriteString(r.Name)
	}

	if r.Version != "" {
		sb.WriteString("@")
		sb.WriteString(r.Version)
	}

	return sb.String()
}

// ParseDependencyRef parses a compact reference string back into its parts.
func ParseDependencyRef(s string) (DependencyRef, error) {
	var ref DependencyRef

	body, version, hasVersion := strings.Cut(s, "@")
	if hasVersion {
		ref.Version = version
	}

	// The local and cross-source forms both look like "X:Y" at a glance, so
	// the first segment before the colon disambiguates them: a valid
	// resource type there means local (<type>:<path>); anything else means
	// the segment is a source name and the rest is <type>/<name>.
	if idx := strings.Index(body, ":"); idx >= 0 {
		before, after := body[:idx], body[idx+1:]
		if t := restype.Type(before); t.Valid() {
			ref.Type = t
			ref.Path = after
			return ref, nil
		}

		typeStr, name, ok := strings.Cut(after, "/")
		if !ok {
			return ref, fmt.Errorf("invalid cross-source dependency ref %q", s)
		}
		t, err := validateType(typeStr)
		if err != nil {
			return ref, err
		}
		ref.Source = before
		ref.Type = t
		ref.Name = name
		return ref, nil
	}

	if strings.Contains(body, "/") {
		typeStr, name, _ := strings.Cut(body, "/")
		t, err := validateType(typeStr)
		if err != nil {
			return ref, err
		}
		ref.Type = t
		ref.Name = name
		return ref, nil
	}

	return ref, fmt.Errorf("unrecognized dependency ref %q", s)
}

func validateType(s string) (restype.Type, error) {
	t := restype.Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown resource type %q in dependency ref", s)
	}
	return t, nil
}
