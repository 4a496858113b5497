package installer

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/lockfile"
	"github.com/agpm-dev/agpm/internal/manifest"
	"github.com/agpm-dev/agpm/internal/pathutil"
	"github.com/agpm-dev/agpm/internal/render"
	"github.com/agpm-dev/agpm/internal/restype"
	"github.com/agpm-dev/agpm/internal/sourcecache"
)

// skillMetadataFile is the one file inside a skill directory carrying
// frontmatter/dependencies, mirroring the resolver's own treatment of a
// skill dependency's declared path as a directory rather than a file.
const skillMetadataFile = "SKILL.md"

// readRetryAttempts/readRetryBase/readRetryCap implement the read-with-retry
// policy spec §4.H calls for: after a worktree is freshly created, a
// filesystem coherency delay can make a just-checked-out file briefly
// report ENOENT, so a transient NotFound is retried; any other error is not.
const (
	readRetryAttempts = 5
	readRetryBaseMS   = 10
	readRetryCapMS    = 200
)

// contentResolver re-derives a locked resource's fully-rendered, patched
// content without ever consulting the lockfile for a dependency's own
// entry: instead it walks the same pass-1/pass-2 pipeline the resolver used
// to produce that content in the first place, rooted at the locked
// resource's (source, path, resolved_commit). This handles install:true and
// install:false transitive dependencies identically, since neither needs a
// lockfile entry to be re-rendered — only its declaring parent's frontmatter
// and its own (possibly re-resolved) commit.
type contentResolver struct {
	manifest    *manifest.Manifest
	paths       *pathutil.Paths
	cache       *sourcecache.Cache
	renderer    *render.Renderer
	renderCache *render.Cache

	mu   sync.Mutex
	memo map[string][]byte
}

func newContentResolver(m *manifest.Manifest, paths *pathutil.Paths, cache *sourcecache.Cache, renderCache *render.Cache) *contentResolver {
	return &contentResolver{
		manifest:    m,
		paths:       paths,
		cache:       cache,
		renderer:    render.New(),
		renderCache: renderCache,
		memo:        make(map[string][]byte),
	}
}

// resolveLocked returns the installable content for a top-level locked
// resource. The result's checksum.OfBytes must equal res.Checksum — the
// same rendering and patching was already applied once by the resolver.
func (c *contentResolver) resolveLocked(res *lockfile.LockedResource) ([]byte, error) {
	variantInputs := res.VariantInputs
	if variantInputs == nil {
		variantInputs = render.BuildVariantInputs(c.manifest.Project, nil)
	}
	tool := res.Tool
	if tool == "" {
		tool = res.ResourceType.DefaultTool()
	}

	content, err := c.render(res.ResourceType, res.Source, res.Path, tool, res.ResolvedCommit, variantInputs, nil)
	if err != nil {
		return nil, err
	}

	if len(res.AppliedPatches) > 0 {
		patched, err := render.ApplyPatch(content, res.AppliedPatches)
		if err != nil {
			return nil, agpmerrors.NewFrontmatterParseError(res.Path, err)
		}
		content = patched
	}

	return content, nil
}

// render fetches and fully renders (pass 1 + pass 2, unpatched) the file at
// (source, relPath, sha), recursing into every dependency its frontmatter
// declares. Results are memoized per (source, path, sha, variant hash) so a
// dependency shared by several top-level resources in one install run is
// only fetched and rendered once.
func (c *contentResolver) render(t restype.Type, source, relPath, tool, sha string, variantInputs map[string]any, chain []agpmerrors.DependencyChainEntry) ([]byte, error) {
	id := source + "\x00" + relPath + "\x00" + sha + "\x00" + render.VariantHash(variantInputs)

	c.mu.Lock()
	if cached, ok := c.memo[id]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	raw, resolvedSHA, err := c.fetchRaw(t, source, relPath, sha)
	if err != nil {
		return nil, err
	}

	nextChain := append(append([]agpmerrors.DependencyChainEntry{}, chain...),
		agpmerrors.DependencyChainEntry{Name: path.Base(relPath), ResourceType: string(t)})

	spliced, meta, err := c.renderer.ExtractMetadata(relPath, raw, variantInputs, nextChain)
	if err != nil {
		return nil, err
	}

	depContent := make(map[string]map[string]string)
	for _, childType := range restype.All {
		for _, spec := range meta.Dependencies[childType] {
			childContent, err := c.renderDependency(source, relPath, childType, spec, resolvedSHA, nextChain)
			if err != nil {
				return nil, err
			}
			plural := childType.Plural()
			if depContent[plural] == nil {
				depContent[plural] = make(map[string]string)
			}
			depContent[plural][derivedName(spec.Path)] = string(childContent)
		}
	}

	finalContent := spliced
	if meta.Templating || len(depContent) > 0 {
		depValues := make([]string, 0, len(depContent))
		for _, byName := range depContent {
			for _, v := range byName {
				depValues = append(depValues, v)
			}
		}
		sort.Strings(depValues)

		key := render.CacheKey{
			Path:           relPath,
			ResourceType:   t,
			Tool:           tool,
			VariantHash:    render.VariantHash(variantInputs),
			ResolvedCommit: resolvedSHA,
			DependencyHash: render.DependencyHash(depValues),
		}
		rendered, err := c.renderCache.GetOrRender(key, func() (string, error) {
			withDeps := render.WithDeps(variantInputs, depContent)
			return c.renderer.RenderString(relPath, string(spliced), withDeps, nextChain)
		})
		if err != nil {
			return nil, err
		}
		finalContent = []byte(rendered)
	}

	c.mu.Lock()
	c.memo[id] = finalContent
	c.mu.Unlock()

	return finalContent, nil
}

// renderDependency resolves one dependency declared in a parent's
// frontmatter, mirroring the resolver's transitiveRequest: the child
// inherits its parent's source and is read from the parent's already
// resolved commit unless it declares its own version/branch/rev, in which
// case that ref is resolved fresh against the source cache.
func (c *contentResolver) renderDependency(parentSource, parentPath string, childType restype.Type, spec render.DependencySpec, parentSHA string, chain []agpmerrors.DependencyChainEntry) ([]byte, error) {
	childPath := spec.Path
	if !path.IsAbs(childPath) {
		childPath = path.Join(path.Dir(parentPath), childPath)
	}

	sha := parentSHA
	if spec.Version != "" || spec.Branch != "" || spec.Rev != "" {
		sha = ""
	}
	if sha == "" && parentSource != "" {
		versionSpec := spec.Version
		if versionSpec == "" {
			versionSpec = spec.Branch
		}
		if versionSpec == "" {
			versionSpec = spec.Rev
		}
		url, ok := c.manifest.Sources[parentSource]
		if !ok {
			return nil, agpmerrors.NewSourceNotFoundError(parentSource)
		}
		if err := c.cache.EnsureRepo(parentSource, url); err != nil {
			return nil, err
		}
		resolved, err := c.cache.ResolveRef(parentSource, versionSpec)
		if err != nil {
			return nil, err
		}
		sha = resolved
	}

	tool := spec.Tool
	if tool == "" {
		tool = childType.DefaultTool()
	}

	childVariantInputs := render.BuildVariantInputs(c.manifest.Project, spec.TemplateVars)

	return c.render(childType, parentSource, childPath, tool, sha, childVariantInputs, chain)
}

// fetchRaw reads a resource's raw bytes from the project directory (local)
// or a SHA-pinned worktree (remote), applying the read-with-retry policy.
// For a skill resource, relPath names the skill's directory; the file read
// is SKILL.md within it, matching the resolver's own treatment.
func (c *contentResolver) fetchRaw(t restype.Type, source, relPath, sha string) ([]byte, string, error) {
	fetchPath := relPath
	if t == restype.Skill {
		fetchPath = path.Join(relPath, skillMetadataFile)
	}

	if source == "" {
		full := filepath.Join(c.paths.ProjectDir(), filepath.FromSlash(fetchPath))
		data, err := readWithRetry(full)
		if err != nil {
			return nil, "", agpmerrors.NewMissingDependencyError(relPath, []string{relPath})
		}
		return data, "", nil
	}

	url, ok := c.manifest.Sources[source]
	if !ok {
		return nil, "", agpmerrors.NewSourceNotFoundError(source)
	}

	worktree, err := c.cache.GetOrCreateWorktreeForSHA(source, url, sha, string(t))
	if err != nil {
		return nil, "", err
	}

	full := filepath.Join(worktree, filepath.FromSlash(fetchPath))
	data, err := readWithRetry(full)
	if err != nil {
		return nil, "", agpmerrors.NewMissingDependencyError(relPath, []string{relPath})
	}
	return data, sha, nil
}

// readWithRetry reads path, retrying only a not-exist error up to
// readRetryAttempts times with capped exponential backoff — a freshly
// checked-out worktree can briefly lag the filesystem's view of its files.
func readWithRetry(path string) ([]byte, error) {
	delay := time.Duration(readRetryBaseMS) * time.Millisecond
	delayCap := time.Duration(readRetryCapMS) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < readRetryAttempts; attempt++ {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !os.IsNotExist(err) {
			return nil, err
		}
		if attempt == readRetryAttempts-1 {
			break
		}
		time.Sleep(delay)
		delay *= 2
		if delay > delayCap {
			delay = delayCap
		}
	}
	return nil, lastErr
}

// derivedName derives the agpm.deps.<type>.<name> key for a dependency from
// its declared path: the base filename without its extension, matching the
// name the resolver assigns the same dependency in the lockfile.
func derivedName(relPath string) string {
	base := path.Base(relPath)
	return base[:len(base)-len(path.Ext(base))]
}
