// Package installer implements agpm's installer (component H): it plans
// (lockfile entry, destination) pairs from a Lockfile and Manifest,
// pre-warms the source worktrees a run will need, and writes the rendered
// content of every locked resource to its tool-specific destination —
// merging into a shared JSON file for hooks and MCP servers, copying a
// staged directory tree for skills, and an atomic temp-then-rename for
// everything else.
//
// Grounded on the teacher's internal/installer/engine/engine.go for its
// semaphore-bounded, WaitGroup fan-out shape (generalized here from
// continue-on-error to fail-fast, since spec calls for one resource's
// failure to fail the whole install) and its atomic-write helpers in
// internal/registry/aqua/fetcher.go and internal/state/store.go.
package installer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/atomicfile"
	"github.com/agpm-dev/agpm/internal/lockfile"
	"github.com/agpm-dev/agpm/internal/manifest"
	"github.com/agpm-dev/agpm/internal/pathutil"
	"github.com/agpm-dev/agpm/internal/render"
	"github.com/agpm-dev/agpm/internal/restype"
	"github.com/agpm-dev/agpm/internal/sourcecache"
)

// defaultConcurrency bounds parallel worktree pre-warming and file
// installation, the same fixed pool shape the teacher's engine applies to
// node-group execution.
const defaultConcurrency = 8

// progressLockTimeout bounds how long a progress update waits for the
// shared install progress counter's lock (spec §5's 30-second timeout);
// ordinary contention never comes close to it.
const progressLockTimeout = 30 * time.Second

// ProgressFunc is called after each resource finishes installing, with the
// running count and the total planned.
type ProgressFunc func(done, total int)

// Option configures an Installer.
type Option func(*Installer)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(i *Installer) { i.progress = fn }
}

// WithConcurrency overrides the default bounded parallelism.
func WithConcurrency(n int) Option {
	return func(i *Installer) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// Installer writes a resolved Lockfile's content to disk.
type Installer struct {
	manifest    *manifest.Manifest
	paths       *pathutil.Paths
	cache       *sourcecache.Cache
	renderCache *render.Cache
	progress    ProgressFunc
	concurrency int
}

// New returns an Installer for m, rooted at paths, using cache as the
// backing source cache.
func New(m *manifest.Manifest, paths *pathutil.Paths, cache *sourcecache.Cache, opts ...Option) *Installer {
	i := &Installer{
		manifest:    m,
		paths:       paths,
		cache:       cache,
		renderCache: render.NewCache(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// PlanEntry is one (locked resource, destination) pair ready to install.
type PlanEntry struct {
	Resource *lockfile.LockedResource
	Dest     string
	Merge    bool
}

// Plan enumerates every locked resource's destination, validating that its
// (tool, type) combination is supported. Order matches the lockfile's own
// deterministic iteration order, preserved through to the result vector so
// checksums and any aggregate hashing never depend on goroutine scheduling.
func (i *Installer) Plan(lock *lockfile.Lockfile) ([]PlanEntry, error) {
	resources := lock.AllResources()
	entries := make([]PlanEntry, 0, len(resources))

	for _, res := range resources {
		tool := res.Tool
		if tool == "" {
			tool = res.ResourceType.DefaultTool()
		}

		if mergeTarget, ok := i.manifest.GetMergeTarget(tool, res.ResourceType); ok {
			entries = append(entries, PlanEntry{
				Resource: res,
				Dest:     filepath.Join(i.paths.ProjectDir(), filepath.FromSlash(mergeTarget)),
				Merge:    true,
			})
			continue
		}

		if _, ok := i.manifest.GetArtifactResourcePath(tool, res.ResourceType); !ok {
			return nil, agpmerrors.NewUnsupportedToolError(res.Name, tool)
		}

		entries = append(entries, PlanEntry{
			Resource: res,
			Dest:     filepath.Join(i.paths.ProjectDir(), filepath.FromSlash(res.InstalledAt)),
		})
	}

	return entries, nil
}

// PreWarm creates worktrees for every unique (source, resolved_commit) pair
// entries needs, bounded and concurrent. Failures here are non-fatal — the
// real install pass surfaces them — since pre-warming is purely an
// optimization to overlap Git I/O with planning.
func (i *Installer) PreWarm(ctx context.Context, entries []PlanEntry) {
	type triple struct{ source, url, sha string }

	seen := make(map[string]bool)
	var triples []triple
	for _, e := range entries {
		res := e.Resource
		if res.Source == "" || res.ResolvedCommit == "" {
			continue
		}
		key := res.Source + "@" + res.ResolvedCommit
		if seen[key] {
			continue
		}
		seen[key] = true
		url, ok := i.manifest.Sources[res.Source]
		if !ok {
			continue
		}
		triples = append(triples, triple{res.Source, url, res.ResolvedCommit})
	}

	sem := semaphore.NewWeighted(int64(i.concurrency))
	var wg sync.WaitGroup
	for _, t := range triples {
		t := t
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Go(func() {
			defer sem.Release(1)
			_, _ = i.cache.GetOrCreateWorktreeForSHA(t.source, t.url, t.sha, "prewarm")
		})
	}
	wg.Wait()
}

// Result is the outcome of an install run.
type Result struct {
	Installed []*lockfile.LockedResource
}

// Install plans and installs every resource in lock.
func (i *Installer) Install(ctx context.Context, lock *lockfile.Lockfile) (*Result, error) {
	entries, err := i.Plan(lock)
	if err != nil {
		return nil, err
	}
	return i.installPlan(ctx, entries)
}

// Selector names one locked resource — by name and, when it came from a
// remote source, that source — to selectively (re-)install, the shape
// `agpm update` drives after re-resolving only a subset of roots.
type Selector struct {
	Name       string
	Source     string
	OldVersion string
	NewVersion string
}

// InstallOnly installs only the resources matching one of selectors.
func (i *Installer) InstallOnly(ctx context.Context, lock *lockfile.Lockfile, selectors []Selector) (*Result, error) {
	entries, err := i.Plan(lock)
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(selectors))
	for _, s := range selectors {
		want[s.Source+"\x00"+s.Name] = true
	}

	filtered := entries[:0:0]
	for _, e := range entries {
		if want[e.Resource.Source+"\x00"+e.Resource.Name] {
			filtered = append(filtered, e)
		}
	}

	return i.installPlan(ctx, filtered)
}

// installPlan runs the parallel, semaphore-bounded install pipeline over
// entries: results are written into a pre-sized slice indexed by the
// original input position, so the aggregate result preserves input order
// regardless of which goroutine finishes first — the Go realization of
// spec's `buffered(usize::MAX)`-with-input-order guarantee. The first
// failure cancels the run; already-started writes are not rolled back.
func (i *Installer) installPlan(ctx context.Context, entries []PlanEntry) (*Result, error) {
	resolver := newContentResolver(i.manifest, i.paths, i.cache, i.renderCache)
	merger := newMergeCoordinator()
	prog := &progressCounter{total: len(entries), cb: i.progress}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*lockfile.LockedResource, len(entries))
	errs := make([]error, len(entries))

	sem := semaphore.NewWeighted(int64(i.concurrency))
	var wg sync.WaitGroup

	for idx, entry := range entries {
		idx, entry := idx, entry
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[idx] = err
			break
		}
		wg.Go(func() {
			defer sem.Release(1)
			if err := i.installOne(ctx, entry, resolver, merger); err != nil {
				errs[idx] = err
				cancel()
				return
			}
			results[idx] = entry.Resource
			prog.advance()
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	installed := make([]*lockfile.LockedResource, 0, len(results))
	for _, r := range results {
		if r != nil {
			installed = append(installed, r)
		}
	}
	return &Result{Installed: installed}, nil
}

// installOne installs a single planned entry: skills copy a directory
// tree, hooks/mcp-servers merge into their tool's shared config file, and
// everything else is rendered content written atomically to Dest.
func (i *Installer) installOne(ctx context.Context, entry PlanEntry, resolver *contentResolver, merger *mergeCoordinator) error {
	res := entry.Resource

	if res.ResourceType == restype.Skill {
		return installSkill(i.paths, i.cache, i.manifest, res, entry.Dest)
	}

	content, err := resolver.resolveLocked(res)
	if err != nil {
		return err
	}

	if entry.Merge {
		return merger.merge(entry.Dest, content)
	}

	if err := atomicfile.Write(entry.Dest, content, 0o644); err != nil {
		return agpmerrors.NewWriteError(res.Name, entry.Dest, err)
	}
	return nil
}

// progressCounter advances a shared done/total counter under a
// timeout-guarded lock (progressLockTimeout). If the lock cannot be taken
// in time, that one progress update is skipped; the install run itself is
// not aborted.
type progressCounter struct {
	mu    sync.Mutex
	done  int
	total int
	cb    ProgressFunc
}

func (p *progressCounter) advance() {
	deadline := time.Now().Add(progressLockTimeout)
	for !p.mu.TryLock() {
		if time.Now().After(deadline) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	defer p.mu.Unlock()
	p.done++
	if p.cb != nil {
		p.cb(p.done, p.total)
	}
}
