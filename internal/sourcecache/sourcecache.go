// Package sourcecache implements agpm's content-addressed Git source cache:
// bare mirror clones per declared source, SHA-pinned worktrees carved out of
// them, and the locking discipline that lets many resolver/installer tasks
// share one cache safely. Grounded on the teacher's internal/git (go-git
// clone/pull usage) generalized from a single working clone per repo to a
// bare mirror plus many immutable worktrees, and on internal/state/store.go's
// flock+PID-file locking pattern, applied per source name instead of per
// process.
package sourcecache

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gitfs "github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/gofrs/flock"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/pathutil"
	"github.com/agpm-dev/agpm/internal/version"
)

// Retry policy for transient network fetch failures, per spec §4.D.
const (
	retryAttempts = 5
	retryBaseMS   = 10
	retryCapMS    = 200
)

// DefaultLockTimeout is how long a caller waits to acquire a per-source file
// lock before surfacing LockTimeout.
const DefaultLockTimeout = 60 * time.Second

// Cache is a handle on one project's source cache root. It is safe for
// concurrent use: mutating operations on a given source are serialized
// through a process-wide file lock, and worktree creation for a given
// (source, sha) is additionally guarded by an in-process mutex.
type Cache struct {
	paths *pathutil.Paths

	mu          sync.Mutex
	worktreeMus map[string]*sync.Mutex
}

// New returns a Cache rooted at paths.CacheDir().
func New(paths *pathutil.Paths) *Cache {
	return &Cache{
		paths:       paths,
		worktreeMus: make(map[string]*sync.Mutex),
	}
}

func (c *Cache) worktreeMutex(source, sha string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := source + "@" + sha
	m, ok := c.worktreeMus[key]
	if !ok {
		m = &sync.Mutex{}
		c.worktreeMus[key] = m
	}
	return m
}

// withSourceLock acquires the per-source process file lock for the duration
// of fn, surfacing LockTimeout if it can't be acquired within timeout.
func (c *Cache) withSourceLock(source string, fn func() error) error {
	lockPath := c.paths.LockFile(source)
	if err := pathutil.EnsureDir(filepath.Dir(lockPath)); err != nil {
		return fmt.Errorf("sourcecache: create lock dir: %w", err)
	}
	fl := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultLockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		return agpmerrors.NewLockTimeoutError(source)
	}
	defer fl.Unlock()

	return fn()
}

// withRetry retries fn on transient failures with capped exponential
// backoff (10ms -> 200ms, 5 attempts). An error that isAuthError reports
// as an auth failure is never retried.
func withRetry(fn func() error) error {
	delay := time.Duration(retryBaseMS) * time.Millisecond
	delayCap := time.Duration(retryCapMS) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if isAuthError(err) {
			return err
		}
		if attempt == retryAttempts-1 {
			break
		}
		time.Sleep(delay)
		delay *= 2
		if delay > delayCap {
			delay = delayCap
		}
	}
	return lastErr
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authentication") || strings.Contains(msg, "permission denied") ||
		err == transport.ErrAuthenticationRequired || err == transport.ErrAuthorizationFailed
}

// EnsureRepo makes sure the bare mirror for source exists and is up to date:
// clone if absent, otherwise update the remote URL (if changed) and fetch
// all refs and tags.
func (c *Cache) EnsureRepo(source, url string) error {
	return c.withSourceLock(source, func() error {
		repoPath := c.paths.SourceDir(source)

		if _, err := os.Stat(repoPath); os.IsNotExist(err) {
			if err := pathutil.EnsureDir(filepath.Dir(repoPath)); err != nil {
				return fmt.Errorf("sourcecache: create source dir: %w", err)
			}
			err := withRetry(func() error {
				_, cloneErr := git.PlainClone(repoPath, true, &git.CloneOptions{
					URL:        url,
					Mirror:     true,
					Tags:       git.AllTags,
				})
				return cloneErr
			})
			if err != nil {
				return agpmerrors.NewCloneError(source, url, err)
			}
			return nil
		}

		repo, err := git.PlainOpen(repoPath)
		if err != nil {
			return agpmerrors.NewCloneError(source, url, err)
		}

		remote, err := repo.Remote("origin")
		if err == nil && len(remote.Config().URLs) > 0 && remote.Config().URLs[0] != url {
			if err := repo.DeleteRemote("origin"); err != nil {
				return agpmerrors.NewFetchError(source, err)
			}
			if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{url}}); err != nil {
				return agpmerrors.NewFetchError(source, err)
			}
		}

		err = withRetry(func() error {
			fetchErr := repo.Fetch(&git.FetchOptions{
				RemoteName: "origin",
				Tags:       git.AllTags,
				Prune:      true,
				Force:      true,
			})
			if fetchErr == git.NoErrAlreadyUpToDate {
				return nil
			}
			return fetchErr
		})
		if err != nil {
			return agpmerrors.NewFetchError(source, err)
		}
		return nil
	})
}

// recognizedTagPrefixes are stripped before semver comparison so tags like
// "release-1.2.3" participate in constraint matching the same way "v1.2.3" does.
var recognizedTagPrefixes = []string{"v", "release-"}

// ResolveRef resolves a ref spec (tag, branch, SHA, version constraint, or
// "latest") against source's mirror to a 40-char lowercase hex commit SHA.
func (c *Cache) ResolveRef(source, ref string) (string, error) {
	repoPath := c.paths.SourceDir(source)
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", agpmerrors.NewRefNotFoundError(source, ref)
	}

	constraint, parseErr := version.Parse(ref)
	if parseErr == nil {
		switch constraint.(type) {
		case version.Exact, version.Requirement, version.Latest:
			return c.resolveConstraint(repo, source, ref, constraint)
		}
	}

	return c.resolveDirectRef(repo, source, ref)
}

func (c *Cache) resolveConstraint(repo *git.Repository, source, ref string, constraint version.Constraint) (string, error) {
	candidates, shaByVersion, err := candidateVersionsFrom(repo)
	if err != nil {
		return "", agpmerrors.NewRefNotFoundError(source, ref)
	}

	if _, isLatest := constraint.(version.Latest); isLatest && len(candidates) == 0 {
		if sha, err := c.resolveDirectRef(repo, source, "main"); err == nil {
			return sha, nil
		}
		return c.resolveDirectRef(repo, source, "master")
	}
	if len(candidates) == 0 {
		return "", agpmerrors.NewRefNotFoundError(source, ref)
	}

	set := version.NewConstraintSet(source + ":" + ref)
	if err := set.Add(constraint, source); err != nil {
		return "", agpmerrors.NewRefNotFoundError(source, ref)
	}

	best, err := set.FindBestMatch(candidates)
	if err != nil {
		return "", agpmerrors.NewRefNotFoundError(source, ref)
	}
	return shaByVersion[best.Original()], nil
}

// candidateVersionsFrom lists every tag in repo that parses as semver (after
// stripping a recognized prefix like "v" or "release-"), alongside a lookup
// from each version's original string back to the tag's commit SHA.
func candidateVersionsFrom(repo *git.Repository) ([]*semver.Version, map[string]string, error) {
	tagRefs, err := repo.Tags()
	if err != nil {
		return nil, nil, err
	}

	shaByVersion := make(map[string]string)
	var candidates []*semver.Version
	_ = tagRefs.ForEach(func(r *plumbing.Reference) error {
		stripped := r.Name().Short()
		for _, p := range recognizedTagPrefixes {
			if strings.HasPrefix(stripped, p) {
				stripped = strings.TrimPrefix(stripped, p)
				break
			}
		}
		v, err := semver.NewVersion(stripped)
		if err != nil {
			return nil
		}
		candidates = append(candidates, v)
		shaByVersion[v.Original()] = r.Hash().String()
		return nil
	})
	return candidates, shaByVersion, nil
}

// CandidateVersions lists source's tag-derived semver candidates and their
// commit SHAs, for callers that need to aggregate constraints from multiple
// requirers before picking one best match, rather than resolving a single
// ref in isolation the way ResolveRef does. The resolver does not call it;
// it resolves each ref through ResolveRef.
func (c *Cache) CandidateVersions(source string) ([]*semver.Version, map[string]string, error) {
	repo, err := git.PlainOpen(c.paths.SourceDir(source))
	if err != nil {
		return nil, nil, agpmerrors.NewSourceNotFoundError(source)
	}
	return candidateVersionsFrom(repo)
}

func (c *Cache) resolveDirectRef(repo *git.Repository, source, ref string) (string, error) {
	if h := tryHash(ref); h != "" {
		if _, err := repo.CommitObject(plumbing.NewHash(h)); err == nil {
			return h, nil
		}
	}

	revisions := []string{ref, "refs/tags/" + ref, "refs/heads/" + ref, "refs/remotes/origin/" + ref}
	for _, rev := range revisions {
		hash, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err == nil {
			return hash.String(), nil
		}
	}

	return "", agpmerrors.NewRefNotFoundError(source, ref)
}

func tryHash(s string) string {
	if len(s) < 7 || len(s) > 40 {
		return ""
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return ""
		}
	}
	return s
}

// GetOrCreateWorktreeForSHA returns the path to an immutable worktree for
// source pinned to sha, creating it if necessary. reason is informational,
// used only in error context.
func (c *Cache) GetOrCreateWorktreeForSHA(source, url, sha, reason string) (string, error) {
	mu := c.worktreeMutex(source, sha)
	mu.Lock()
	defer mu.Unlock()

	worktreePath := c.paths.WorktreeDir(source, sha)
	if dirNonEmpty(worktreePath) {
		return worktreePath, nil
	}

	if err := c.EnsureRepo(source, url); err != nil {
		return "", err
	}

	if dirNonEmpty(worktreePath) {
		return worktreePath, nil
	}

	if err := pathutil.EnsureDir(filepath.Dir(worktreePath)); err != nil {
		return "", fmt.Errorf("sourcecache: create worktree parent: %w", err)
	}

	stagingPath := worktreePath + fmt.Sprintf(".staging-%x", rand.Uint64())
	if err := pathutil.EnsureDir(stagingPath); err != nil {
		return "", fmt.Errorf("sourcecache: create staging dir: %w", err)
	}

	storer := gitfs.NewStorage(osfs.New(c.paths.SourceDir(source)), nil)

	wtRepo, err := git.Open(storer, osfs.New(stagingPath))
	if err != nil {
		os.RemoveAll(stagingPath)
		return "", agpmerrors.NewWorktreeError(source, sha, err)
	}

	wt, err := wtRepo.Worktree()
	if err != nil {
		os.RemoveAll(stagingPath)
		return "", agpmerrors.NewWorktreeError(source, sha, err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(sha)}); err != nil {
		os.RemoveAll(stagingPath)
		return "", agpmerrors.NewWorktreeError(source, sha, err)
	}

	if err := os.Rename(stagingPath, worktreePath); err != nil {
		os.RemoveAll(stagingPath)
		return "", agpmerrors.NewWorktreeError(source, sha, err)
	}

	return worktreePath, nil
}

func dirNonEmpty(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}

// GarbageCollect removes every worktree under source whose SHA is not in keep.
func (c *Cache) GarbageCollect(source string, keep map[string]bool) error {
	root := filepath.Join(c.paths.CacheDir(), "worktrees", source)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sourcecache: list worktrees: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || keep[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return fmt.Errorf("sourcecache: remove worktree %s: %w", e.Name(), err)
		}
	}
	return nil
}

// CommitTime returns the author time of a resolved commit, used for the
// lockfile's source fetched_at bookkeeping.
func (c *Cache) CommitTime(source, sha string) (time.Time, error) {
	repo, err := git.PlainOpen(c.paths.SourceDir(source))
	if err != nil {
		return time.Time{}, err
	}
	commit, err := repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return time.Time{}, err
	}
	return commit.Author.When, nil
}

