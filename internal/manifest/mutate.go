package manifest

import "github.com/agpm-dev/agpm/internal/restype"

// AddSource adds or replaces a source URL. Mutations never validate; call
// Validate explicitly (or go through Load/Save) when that matters.
func (m *Manifest) AddSource(name, url string) {
	if m.Sources == nil {
		m.Sources = make(map[string]string)
	}
	m.Sources[name] = url
}

// AddTypedDependency adds or replaces a dependency in the section for t.
func (m *Manifest) AddTypedDependency(t restype.Type, name string, dep *Dependency) {
	m.ensureSection(t)[name] = dep
}

// AddMCPServer is a convenience wrapper for AddTypedDependency(MCPServer, ...).
func (m *Manifest) AddMCPServer(name string, dep *Dependency) {
	m.AddTypedDependency(restype.MCPServer, name, dep)
}

// RemoveTypedDependency removes a dependency by name from the section for t,
// reporting whether it was present.
func (m *Manifest) RemoveTypedDependency(t restype.Type, name string) bool {
	sec := m.sectionFor(t)
	if sec == nil {
		return false
	}
	if _, ok := sec[name]; !ok {
		return false
	}
	delete(sec, name)
	return true
}
