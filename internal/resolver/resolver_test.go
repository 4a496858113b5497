package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/manifest"
	"github.com/agpm-dev/agpm/internal/pathutil"
	"github.com/agpm-dev/agpm/internal/restype"
	"github.com/agpm-dev/agpm/internal/sourcecache"
)

// testManifest returns a Manifest with enough tool configuration wired up
// that every resource type's default tool has an install target, so tests
// can focus on resolution behavior instead of re-declaring tool config.
func testManifest() *manifest.Manifest {
	m := manifest.New("")
	m.Tools = map[string]*manifest.ToolConfig{
		"claude-code": {
			Path: ".claude",
			Resources: map[string]*manifest.ResourceConfig{
				"agents":      {Path: "agents"},
				"commands":    {Path: "commands"},
				"scripts":     {Path: "scripts"},
				"skills":      {Path: "skills"},
				"hooks":       {MergeTarget: "settings.local.json"},
				"mcp-servers": {MergeTarget: ".mcp.json"},
			},
		},
		"agpm": {
			Path: ".agpm",
			Resources: map[string]*manifest.ResourceConfig{
				"snippets": {Path: "snippets"},
			},
		},
	}
	return m
}

func newTestResolver(t *testing.T, m *manifest.Manifest) (*Resolver, string) {
	t.Helper()
	projectDir := t.TempDir()
	return newTestResolverAt(t, m, projectDir), projectDir
}

func newTestResolverAt(t *testing.T, m *manifest.Manifest, projectDir string) *Resolver {
	t.Helper()
	paths, err := pathutil.New(projectDir, pathutil.WithCacheDir(t.TempDir()))
	require.NoError(t, err)
	cache := sourcecache.New(paths)
	return New(m, paths, cache)
}

func writeProjectFile(t *testing.T, projectDir, rel, content string) {
	t.Helper()
	full := filepath.Join(projectDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// newLocalGitRemote creates a throwaway git repository with one file and two
// tagged commits, standing in for a remote source in version-conflict tests.
func newLocalGitRemote(t *testing.T) (dir string) {
	t.Helper()
	dir = t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	sig := &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()}

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "a.md"), []byte("v1\n"), 0o644))
	_, err = wt.Add("agents/a.md")
	require.NoError(t, err)
	h1, err := wt.Commit("v1", &git.CommitOptions{Author: sig})
	require.NoError(t, err)
	_, err = repo.CreateTag("v1.0.0", h1, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "a.md"), []byte("v2\n"), 0o644))
	_, err = wt.Add("agents/a.md")
	require.NoError(t, err)
	h2, err := wt.Commit("v2", &git.CommitOptions{Author: sig})
	require.NoError(t, err)
	_, err = repo.CreateTag("v2.0.0", h2, nil)
	require.NoError(t, err)

	return dir
}

func TestResolveAll_LocalSimple(t *testing.T) {
	m := testManifest()
	m.Snippets = map[string]*manifest.Dependency{
		"guide": {Path: "snippets/guide.md"},
	}

	r, projectDir := newTestResolver(t, m)
	writeProjectFile(t, projectDir, "snippets/guide.md", "# Guide\n\nSome text.\n")

	lock, err := r.ResolveAll(context.Background())
	require.NoError(t, err)

	snippets := lock.GetResources(restype.Snippet)
	require.Len(t, snippets, 1)
	assert.Equal(t, "guide", snippets[0].Name)
	assert.Equal(t, "snippets/guide.md", snippets[0].Path)
	assert.Contains(t, snippets[0].Checksum, "sha256:")
}

func TestResolveAll_PatternExpansion(t *testing.T) {
	m := testManifest()
	m.Snippets = map[string]*manifest.Dependency{
		"all": {Path: "snippets/*.md"},
	}

	r, projectDir := newTestResolver(t, m)
	writeProjectFile(t, projectDir, "snippets/one.md", "one\n")
	writeProjectFile(t, projectDir, "snippets/two.md", "two\n")

	lock, err := r.ResolveAll(context.Background())
	require.NoError(t, err)

	snippets := lock.GetResources(restype.Snippet)
	require.Len(t, snippets, 2)
	names := []string{snippets[0].Name, snippets[1].Name}
	assert.ElementsMatch(t, []string{"one", "two"}, names)
}

func TestResolveAll_TransitiveTemplateOnlyDependency(t *testing.T) {
	m := testManifest()
	m.Agents = map[string]*manifest.Dependency{
		"reviewer": {Path: "agents/reviewer.md"},
	}

	r, projectDir := newTestResolver(t, m)
	writeProjectFile(t, projectDir, "agents/reviewer.md", ""+
		"---\n"+
		"agpm:\n"+
		"  templating: true\n"+
		"dependencies:\n"+
		"  snippets:\n"+
		"    - path: ../snippets/shared.md\n"+
		"      install: false\n"+
		"---\n"+
		"Body says: {{ .agpm.deps.snippets.shared.content }}\n")
	writeProjectFile(t, projectDir, "snippets/shared.md", "shared text")

	lock, err := r.ResolveAll(context.Background())
	require.NoError(t, err)

	agents := lock.GetResources(restype.Agent)
	require.Len(t, agents, 1)
	assert.Contains(t, string(agents[0].Checksum), "sha256:")

	// The template-only dependency is never itself installed, only
	// recorded as a reference.
	assert.Empty(t, lock.GetResources(restype.Snippet))
	require.Len(t, agents[0].Dependencies, 1)
	assert.Contains(t, agents[0].Dependencies[0], "shared")
}

func TestResolveAll_CycleDetected(t *testing.T) {
	m := testManifest()
	m.Agents = map[string]*manifest.Dependency{
		"a": {Path: "agents/a.md"},
	}

	r, projectDir := newTestResolver(t, m)
	writeProjectFile(t, projectDir, "agents/a.md", ""+
		"---\n"+
		"dependencies:\n"+
		"  agents:\n"+
		"    - path: b.md\n"+
		"---\n"+
		"a\n")
	writeProjectFile(t, projectDir, "agents/b.md", ""+
		"---\n"+
		"dependencies:\n"+
		"  agents:\n"+
		"    - path: a.md\n"+
		"---\n"+
		"b\n")

	_, err := r.ResolveAll(context.Background())
	require.Error(t, err)
	var resErr *agpmerrors.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, agpmerrors.CodeCyclicDependency, resErr.Base.Code)
}

func TestResolveAll_VersionConflict(t *testing.T) {
	remoteDir := newLocalGitRemote(t)

	m := testManifest()
	src := "upstream"
	m.Sources = map[string]string{src: remoteDir}
	m.Agents = map[string]*manifest.Dependency{
		"a": {Source: &src, Path: "agents/a.md", Version: "v1.0.0"},
		"b": {Source: &src, Path: "agents/a.md", Version: "v2.0.0"},
	}

	r, _ := newTestResolver(t, m)
	_, err := r.ResolveAll(context.Background())
	require.Error(t, err)
	var resErr *agpmerrors.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, agpmerrors.CodeVersionConflict, resErr.Base.Code)
}

func TestUpdate_OnlySelectivelyRefreshes(t *testing.T) {
	m := testManifest()
	m.Agents = map[string]*manifest.Dependency{
		"one": {Path: "agents/one.md"},
		"two": {Path: "agents/two.md"},
	}

	r, projectDir := newTestResolver(t, m)
	writeProjectFile(t, projectDir, "agents/one.md", "one v1\n")
	writeProjectFile(t, projectDir, "agents/two.md", "two v1\n")

	first, err := r.ResolveAll(context.Background())
	require.NoError(t, err)

	checksums := make(map[string]string)
	for _, a := range first.GetResources(restype.Agent) {
		checksums[a.Name] = a.Checksum
	}

	writeProjectFile(t, projectDir, "agents/one.md", "one v2\n")
	writeProjectFile(t, projectDir, "agents/two.md", "two v2\n")

	r2 := newTestResolverAt(t, m, projectDir)
	updated, err := r2.Update(context.Background(), first, []string{"agents/one"})
	require.NoError(t, err)

	agents := updated.GetResources(restype.Agent)
	require.Len(t, agents, 2)

	for _, a := range agents {
		switch a.Name {
		case "one":
			assert.NotEqual(t, checksums["one"], a.Checksum, "refreshed root should pick up the new content")
		case "two":
			assert.Equal(t, checksums["two"], a.Checksum, "untouched root must be copied byte-for-byte")
		}
	}
}

func TestUpdate_CleanStaleRemovedRoot(t *testing.T) {
	m := testManifest()
	m.Agents = map[string]*manifest.Dependency{
		"one": {Path: "agents/one.md"},
		"two": {Path: "agents/two.md"},
	}

	r, projectDir := newTestResolver(t, m)
	writeProjectFile(t, projectDir, "agents/one.md", "one\n")
	writeProjectFile(t, projectDir, "agents/two.md", "two\n")

	first, err := r.ResolveAll(context.Background())
	require.NoError(t, err)

	delete(m.Agents, "two")

	r2 := newTestResolverAt(t, m, projectDir)
	updated, err := r2.Update(context.Background(), first, []string{"agents/one"})
	require.NoError(t, err)

	agents := updated.GetResources(restype.Agent)
	require.Len(t, agents, 1)
	assert.Equal(t, "one", agents[0].Name)
}
