package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agpm-dev/agpm/internal/restype"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agpm.toml"), []byte(content), 0o644))
}

const sampleManifest = `
[sources]
community = "https://example.com/community.git"

[tools.claude-code]
path = ".claude"

[tools.claude-code.resources]
agents = { path = "agents" }
hooks = { merge_target = ".claude/settings.local.json" }

[agents]
hello = "../local/hello.md"
remote = { source = "community", path = "agents/remote.md", version = "v1.0.0" }
`

func TestLoad_SimpleAndDetailedDependencies(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, sampleManifest)

	m, err := Load(dir)
	require.NoError(t, err)

	hello := m.Agents["hello"]
	require.NotNil(t, hello)
	assert.Nil(t, hello.Source)
	assert.Equal(t, "../local/hello.md", hello.Path)
	assert.Equal(t, "claude-code", hello.Tool)

	remote := m.Agents["remote"]
	require.NotNil(t, remote)
	require.NotNil(t, remote.Source)
	assert.Equal(t, "community", *remote.Source)
	assert.Equal(t, "v1.0.0", remote.Version)
	assert.True(t, remote.IsRemote())
}

func TestAllResources_SortedByTypeThenName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, sampleManifest)

	m, err := Load(dir)
	require.NoError(t, err)

	entries := m.AllResources()
	require.Len(t, entries, 2)
	assert.Equal(t, restype.Agent, entries[0].Type)
	assert.Equal(t, "hello", entries[0].Name)
	assert.Equal(t, "remote", entries[1].Name)
}

func TestValidate_SourceNotDeclared(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, `
[agents]
bad = { source = "ghost", path = "agents/bad.md" }
`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidate_LocalDependencyWithVersion(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, `
[agents]
bad = { path = "../local/bad.md", version = "v1.0.0" }
`)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, sampleManifest)

	m, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, m.Save())

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m.Agents["hello"].Path, reloaded.Agents["hello"].Path)
	assert.Equal(t, *m.Agents["remote"].Source, *reloaded.Agents["remote"].Source)
}

func TestLoadWithPrivate_SourceShadowing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, sampleManifest)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agpm.private.toml"), []byte(`
[sources]
community = "git@internal:mirror/community.git"

[agents]
local-only = "../local/secret.md"
`), 0o644))

	m, conflicts, origin, err := LoadWithPrivate(dir)
	require.NoError(t, err)
	assert.Equal(t, "git@internal:mirror/community.git", m.Sources["community"])
	require.Len(t, conflicts, 1)
	assert.Equal(t, "sources", conflicts[0].Section)
	assert.True(t, origin[restype.Agent]["local-only"])
}

func TestLoadWithPrivate_VersionMismatchIsFatal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, sampleManifest)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agpm.private.toml"), []byte(`
[agents]
remote = { source = "community", path = "agents/remote.md", version = "v2.0.0" }
`), 0o644))

	_, _, _, err := LoadWithPrivate(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v1.0.0")
	assert.Contains(t, err.Error(), "v2.0.0")
}

func TestLoadWithPrivate_SameVersionShadowIsNotFatal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, sampleManifest)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agpm.private.toml"), []byte(`
[agents]
remote = { source = "community", path = "agents/remote-fork.md", version = "v1.0.0" }
`), 0o644))

	m, conflicts, _, err := LoadWithPrivate(dir)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "agents/remote-fork.md", m.Agents["remote"].Path)
}

func TestLoadWithPrivate_RejectsTools(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, sampleManifest)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agpm.private.toml"), []byte(`
[tools.other]
path = ".other"
`), 0o644))

	_, _, _, err := LoadWithPrivate(dir)
	require.Error(t, err)
}
