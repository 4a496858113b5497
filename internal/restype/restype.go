// Package restype defines the closed enumeration of resource types agpm
// manages, grounded on the teacher's resource.Kind string-enum pattern.
package restype

import "fmt"

// Type is one of the seven resource kinds agpm manages.
type Type string

const (
	Agent     Type = "agent"
	Snippet   Type = "snippet"
	Command   Type = "command"
	Script    Type = "script"
	Hook      Type = "hook"
	MCPServer Type = "mcp-server"
	Skill     Type = "skill"
)

// All lists every resource type in the canonical manifest section order.
var All = []Type{Agent, Snippet, Command, Script, Hook, MCPServer, Skill}

// pluralForms maps each type to its manifest-section (plural) spelling.
var pluralForms = map[Type]string{
	Agent:     "agents",
	Snippet:   "snippets",
	Command:   "commands",
	Script:    "scripts",
	Hook:      "hooks",
	MCPServer: "mcp-servers",
	Skill:     "skills",
}

var fromPlural = func() map[string]Type {
	m := make(map[string]Type, len(pluralForms))
	for t, p := range pluralForms {
		m[p] = t
	}
	return m
}()

// Plural returns the manifest-section spelling ("agents", "mcp-servers", ...).
func (t Type) Plural() string {
	if p, ok := pluralForms[t]; ok {
		return p
	}
	return string(t)
}

// DefaultTool returns the tool that owns this resource type when the
// manifest or dependency entry does not specify one.
func (t Type) DefaultTool() string {
	if t == Snippet {
		return "agpm"
	}
	return "claude-code"
}

// Valid reports whether t is one of the closed set of resource types.
func (t Type) Valid() bool {
	_, ok := pluralForms[t]
	return ok
}

// ParsePlural converts a manifest section name ("agents") back to a Type.
func ParsePlural(plural string) (Type, error) {
	t, ok := fromPlural[plural]
	if !ok {
		return "", fmt.Errorf("unknown resource section %q", plural)
	}
	return t, nil
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}
