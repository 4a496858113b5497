package installer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agpm-dev/agpm/internal/lockfile"
	"github.com/agpm-dev/agpm/internal/manifest"
	"github.com/agpm-dev/agpm/internal/pathutil"
	"github.com/agpm-dev/agpm/internal/restype"
	"github.com/agpm-dev/agpm/internal/sourcecache"
)

func writeManifest(t *testing.T, dir, content string) *manifest.Manifest {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agpm.toml"), []byte(content), 0o644))
	m, err := manifest.Load(dir)
	require.NoError(t, err)
	return m
}

const planManifest = `
[tools.claude-code]
path = ".claude"

[tools.claude-code.resources]
agents = { path = "agents" }
hooks = { merge_target = ".claude/settings.local.json" }

[agents]
hello = "../local/hello.md"
`

func newTestPaths(t *testing.T, dir string) *pathutil.Paths {
	t.Helper()
	p, err := pathutil.New(dir, pathutil.WithCacheDir(t.TempDir()))
	require.NoError(t, err)
	return p
}

func TestPlan_ArtifactDestination(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := writeManifest(t, dir, planManifest)
	paths := newTestPaths(t, dir)
	cache := sourcecache.New(paths)

	lock := lockfile.New(dir)
	lock.AddResource(restype.Agent, &lockfile.LockedResource{
		Name:         "hello",
		Path:         "hello.md",
		Checksum:     "sha256:deadbeef",
		InstalledAt:  ".claude/agents/hello.md",
		ResourceType: restype.Agent,
		Tool:         "claude-code",
	})

	inst := New(m, paths, cache)
	entries, err := inst.Plan(lock)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Merge)
	assert.Equal(t, filepath.Join(dir, ".claude", "agents", "hello.md"), entries[0].Dest)
}

func TestPlan_MergeTargetForHooks(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := writeManifest(t, dir, planManifest)
	paths := newTestPaths(t, dir)
	cache := sourcecache.New(paths)

	lock := lockfile.New(dir)
	lock.AddResource(restype.Hook, &lockfile.LockedResource{
		Name:         "pre-commit",
		Path:         "hooks/pre-commit.json",
		Checksum:     "sha256:deadbeef",
		InstalledAt:  ".claude/settings.local.json",
		ResourceType: restype.Hook,
		Tool:         "claude-code",
	})

	inst := New(m, paths, cache)
	entries, err := inst.Plan(lock)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Merge)
	assert.Equal(t, filepath.Join(dir, ".claude", "settings.local.json"), entries[0].Dest)
}

func TestPlan_UnsupportedToolErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := writeManifest(t, dir, planManifest)
	paths := newTestPaths(t, dir)
	cache := sourcecache.New(paths)

	lock := lockfile.New(dir)
	lock.AddResource(restype.Script, &lockfile.LockedResource{
		Name:         "build",
		Path:         "build.sh",
		Checksum:     "sha256:deadbeef",
		InstalledAt:  "scripts/build.sh",
		ResourceType: restype.Script,
		Tool:         "claude-code",
	})

	inst := New(m, paths, cache)
	_, err := inst.Plan(lock)
	assert.Error(t, err)
}

func TestMergeCoordinator_DeepMergePreservesSiblingKeys(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.local.json")

	existing := map[string]any{
		"handOfUser": true,
		"hooks": map[string]any{
			"preToolUse": []any{"other-hook"},
		},
	}
	existingBytes, err := json.Marshal(existing)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, existingBytes, 0o644))

	mc := newMergeCoordinator()
	incoming := []byte(`{"hooks": {"postToolUse": ["agpm-hook"]}}`)
	require.NoError(t, mc.merge(path, incoming))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, true, got["handOfUser"])
	hooks, ok := got["hooks"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, hooks, "preToolUse")
	assert.Contains(t, hooks, "postToolUse")
}

func TestMergeCoordinator_SerializesConcurrentWrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")

	mc := newMergeCoordinator()
	done := make(chan error, 2)
	go func() { done <- mc.merge(path, []byte(`{"servers":{"a":{"cmd":"a"}}}`)) }()
	go func() { done <- mc.merge(path, []byte(`{"servers":{"b":{"cmd":"b"}}}`)) }()

	require.NoError(t, <-done)
	require.NoError(t, <-done)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	servers, ok := got["servers"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, servers, "a")
	assert.Contains(t, servers, "b")
}
