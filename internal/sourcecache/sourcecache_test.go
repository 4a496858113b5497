package sourcecache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agpm-dev/agpm/internal/pathutil"
)

// newLocalRemote creates a throwaway git repository with one commit and one
// tag, standing in for a remote source in tests.
func newLocalRemote(t *testing.T) (dir string, sha string) {
	t.Helper()
	dir = t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "a.md"), []byte("# A\n"), 0o644))

	_, err = wt.Add("agents/a.md")
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	_, err = repo.CreateTag("v1.0.0", hash, nil)
	require.NoError(t, err)

	return dir, hash.String()
}

func newCache(t *testing.T) *Cache {
	t.Helper()
	paths, err := pathutil.New(t.TempDir(), pathutil.WithCacheDir(t.TempDir()))
	require.NoError(t, err)
	return New(paths)
}

func TestEnsureRepo_ClonesOnce(t *testing.T) {
	remoteDir, _ := newLocalRemote(t)
	c := newCache(t)

	require.NoError(t, c.EnsureRepo("origin-test", remoteDir))
	require.NoError(t, c.EnsureRepo("origin-test", remoteDir))
}

func TestResolveRef_Tag(t *testing.T) {
	remoteDir, wantSHA := newLocalRemote(t)
	c := newCache(t)
	require.NoError(t, c.EnsureRepo("src", remoteDir))

	sha, err := c.ResolveRef("src", "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, wantSHA, sha)
}

func TestResolveRef_Constraint(t *testing.T) {
	remoteDir, wantSHA := newLocalRemote(t)
	c := newCache(t)
	require.NoError(t, c.EnsureRepo("src", remoteDir))

	sha, err := c.ResolveRef("src", "^1.0.0")
	require.NoError(t, err)
	assert.Equal(t, wantSHA, sha)
}

func TestGetOrCreateWorktreeForSHA_ConcurrentCallersShareOneWorktree(t *testing.T) {
	remoteDir, sha := newLocalRemote(t)
	c := newCache(t)

	const n = 50
	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.GetOrCreateWorktreeForSHA("src", remoteDir, sha, "test")
			paths[i] = p
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}

	data, err := os.ReadFile(filepath.Join(paths[0], "agents", "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "# A\n", string(data))
}

func TestGarbageCollect_RemovesUnkeptWorktrees(t *testing.T) {
	remoteDir, sha := newLocalRemote(t)
	c := newCache(t)

	wtPath, err := c.GetOrCreateWorktreeForSHA("src", remoteDir, sha, "test")
	require.NoError(t, err)

	require.NoError(t, c.GarbageCollect("src", map[string]bool{}))
	_, statErr := os.Stat(wtPath)
	assert.True(t, os.IsNotExist(statErr))
}
