// Package resolver implements agpm's dependency graph walker (component G):
// seeding the graph from the manifest, expanding glob patterns, following
// transitive dependencies declared in resource frontmatter, detecting
// version conflicts and cycles, and assembling the resulting Lockfile.
//
// Grounded on the teacher's internal/graph (dag.go's three-color DFS cycle
// detection, deterministic sorted layering) and internal/installer/engine's
// fan-out concurrency shape, applied here to metadata extraction instead of
// install execution: each top-level manifest root resolves its own subtree
// concurrently (bounded by golang.org/x/sync/errgroup), while identities
// shared across roots are memoized: once one root has resolved an identity,
// later requests reuse that result. Two roots that reach the same
// unresolved identity at the same moment each resolve it.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/checksum"
	"github.com/agpm-dev/agpm/internal/lockfile"
	"github.com/agpm-dev/agpm/internal/manifest"
	"github.com/agpm-dev/agpm/internal/pathutil"
	"github.com/agpm-dev/agpm/internal/render"
	"github.com/agpm-dev/agpm/internal/restype"
	"github.com/agpm-dev/agpm/internal/sourcecache"
	"github.com/agpm-dev/agpm/internal/version"
)

// maxConcurrentRoots bounds how many top-level manifest dependencies resolve
// their subtrees at once, the same fixed-pool shape the teacher's install
// engine applies to layer execution.
const maxConcurrentRoots = 8

// Resolver walks a manifest's declared and transitive dependencies into a
// fully-pinned Lockfile.
type Resolver struct {
	manifest *manifest.Manifest
	paths    *pathutil.Paths
	cache    *sourcecache.Cache
	renderer *render.Renderer

	renderCache *render.Cache

	mu          sync.Mutex
	memo        map[string]*resolvedUnit
	constraints *version.ConstraintResolver
	// owningRoots maps a resolved identity to the set of top-level manifest
	// roots (by name) that reach it during this run. Update's stale-entry
	// pruning (filterByOwningRoot) does not read it; it keys on each locked
	// resource's ManifestAlias.
	owningRoots map[string]map[string]bool
}

// New returns a Resolver for m, using cache as the backing source cache.
func New(m *manifest.Manifest, paths *pathutil.Paths, cache *sourcecache.Cache) *Resolver {
	return &Resolver{
		manifest:    m,
		paths:       paths,
		cache:       cache,
		renderer:    render.New(),
		renderCache: render.NewCache(),
		memo:        make(map[string]*resolvedUnit),
		constraints: version.NewConstraintResolver(),
		owningRoots: make(map[string]map[string]bool),
	}
}

// resolvedUnit is one fully-rendered, checksummed dependency, ready either to
// be written to disk or (install:false) held only as template content for its
// referrer.
type resolvedUnit struct {
	locked  *lockfile.LockedResource
	content []byte
	install bool
}

// rootName is the manifest-section-qualified name of a top-level dependency,
// e.g. "agents/reviewer", used to key owningRoots and recorded as each locked
// resource's ManifestAlias for Update's selective refresh and stale pruning.
func rootName(t restype.Type, name string) string {
	return t.Plural() + "/" + name
}

// ResolveAll walks every manifest dependency and its transitive graph from
// scratch, returning a fresh Lockfile. Used for the first `agpm install` run
// or a full `agpm update`.
func (r *Resolver) ResolveAll(ctx context.Context) (*lockfile.Lockfile, error) {
	roots := r.manifest.AllResources()
	names := make([]string, 0, len(roots))
	for _, entry := range roots {
		names = append(names, rootName(entry.Type, entry.Name))
	}
	return r.resolveRoots(ctx, roots, names)
}

// Update re-resolves only the manifest roots named in only (by "type/name",
// e.g. "agents/reviewer"); every other root's previously-locked subtree is
// copied into the result unchanged, satisfying the selective-update
// invariant (`update --only foo` leaves `bar`'s entries byte-for-byte).
// If only is empty, every manifest root is refreshed (equivalent to
// ResolveAll, but still pruning stale entries against existing first).
func (r *Resolver) Update(ctx context.Context, existing *lockfile.Lockfile, only []string) (*lockfile.Lockfile, error) {
	allRoots := r.manifest.AllResources()
	currentRootNames := make(map[string]bool, len(allRoots))
	for _, entry := range allRoots {
		currentRootNames[rootName(entry.Type, entry.Name)] = true
	}

	dirty := make(map[string]bool, len(only))
	for _, n := range only {
		dirty[n] = true
	}
	refreshAll := len(only) == 0

	var toResolve []manifest.ResourceEntry
	var toResolveNames []string
	keep := make(map[string]bool)
	for _, entry := range allRoots {
		rn := rootName(entry.Type, entry.Name)
		if refreshAll || dirty[rn] {
			toResolve = append(toResolve, entry)
			toResolveNames = append(toResolveNames, rn)
		} else {
			keep[rn] = true
		}
	}

	kept := filterByOwningRoot(existing, keep, currentRootNames)

	fresh, err := r.resolveRoots(ctx, toResolve, toResolveNames)
	if err != nil {
		return nil, err
	}

	out := lockfile.New(r.paths.ProjectDir())
	seenSources := make(map[string]bool)
	for _, s := range kept.Sources {
		if !seenSources[s.Name] {
			out.Sources = append(out.Sources, s)
			seenSources[s.Name] = true
		}
	}
	for _, s := range fresh.Sources {
		if !seenSources[s.Name] {
			out.Sources = append(out.Sources, s)
			seenSources[s.Name] = true
		}
	}
	for _, t := range restype.All {
		for _, res := range kept.GetResources(t) {
			out.AddResource(t, res)
		}
		for _, res := range fresh.GetResources(t) {
			out.AddResource(t, res)
		}
	}
	out.Sort()
	return out, nil
}

// filterByOwningRoot returns a Lockfile containing only resources whose
// ManifestAlias (their owning root) is both still declared in the manifest
// and not one of the roots being refreshed — i.e. stale-entry cleanup plus
// the untouched portion of a selective update, combined.
func filterByOwningRoot(existing *lockfile.Lockfile, keep map[string]bool, currentRoots map[string]bool) *lockfile.Lockfile {
	out := lockfile.New("")
	out.Sources = existing.Sources
	for _, t := range restype.All {
		for _, res := range existing.GetResources(t) {
			if keep[res.ManifestAlias] && currentRoots[res.ManifestAlias] {
				out.AddResource(t, res)
			}
		}
	}
	return out
}

func (r *Resolver) resolveRoots(ctx context.Context, roots []manifest.ResourceEntry, names []string) (*lockfile.Lockfile, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRoots)

	results := make([][]*resolvedUnit, len(roots))
	for i, entry := range roots {
		i, entry, rn := i, entry, names[i]
		g.Go(func() error {
			units, err := r.resolveRoot(ctx, entry, rn)
			if err != nil {
				return err
			}
			results[i] = units
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := lockfile.New(r.paths.ProjectDir())
	seenSources := make(map[string]bool)
	for _, units := range results {
		for _, u := range units {
			if !u.install {
				continue
			}
			out.AddResource(u.locked.ResourceType, u.locked)
			if u.locked.Source != "" && !seenSources[u.locked.Source] {
				seenSources[u.locked.Source] = true
				if url, ok := r.manifest.Sources[u.locked.Source]; ok {
					fetchedAt := time.Time{}
					if u.locked.ResolvedCommit != "" {
						if t, err := r.cache.CommitTime(u.locked.Source, u.locked.ResolvedCommit); err == nil {
							fetchedAt = t
						}
					}
					out.Sources = append(out.Sources, lockfile.SourceEntry{Name: u.locked.Source, URL: url, FetchedAt: fetchedAt})
				}
			}
		}
	}
	out.Sort()
	return out, nil
}

func (r *Resolver) resolveRoot(ctx context.Context, entry manifest.ResourceEntry, rn string) ([]*resolvedUnit, error) {
	if !r.manifest.ToolEnabled(entry.Dep.Tool, entry.Type) {
		return nil, nil
	}

	req := dependencyRequest{
		Type:          entry.Type,
		Name:          entry.Name,
		ManifestAlias: entry.Name,
		Source:        sourceNameOf(entry.Dep),
		Path:          entry.Dep.Path,
		VersionSpec:   entry.Dep.EffectiveVersion(),
		Tool:          entry.Dep.Tool,
		Flatten:       entry.Dep.Flatten,
		Install:       entry.Dep.Install,
		TemplateVars:  entry.Dep.TemplateVars,
		Target:        entry.Dep.Target,
		Filename:      entry.Dep.Filename,
		RequiredBy:    "manifest",
		PatchAlias:    entry.Name,
	}

	if entry.Dep.IsPattern() {
		return r.resolvePattern(ctx, req, rn)
	}

	unit, children, err := r.resolveOne(ctx, req, rn, nil, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return append([]*resolvedUnit{unit}, children...), nil
}

func sourceNameOf(d *manifest.Dependency) string {
	if d.Source == nil {
		return ""
	}
	return *d.Source
}

// dependencyRequest is one dependency reference to resolve, whether a
// top-level manifest entry or a transitive declaration discovered in
// another resource's frontmatter.
type dependencyRequest struct {
	Type          restype.Type
	Name          string
	ManifestAlias string
	Source        string // "" = local, relative to the project directory
	Path          string
	VersionSpec   string
	// PinnedSHA, when set, skips version resolution entirely and reuses an
	// already-resolved worktree — used for transitive same-source
	// dependencies that don't override the version, which live in the same
	// commit as their referrer.
	PinnedSHA    string
	Tool         string
	Flatten      bool
	Install      *bool
	TemplateVars map[string]any
	Target       string
	Filename     string
	RequiredBy   string
	// PatternRelDir is the directory portion of a pattern-matched path
	// below the pattern's literal (non-glob) prefix, preserved in
	// installed_at unless Flatten strips it. Empty for non-pattern
	// dependencies.
	PatternRelDir string
	// PatchAlias is the manifest key patches.<plural>.<alias> is looked up
	// under. Set only for top-level manifest roots (and the pattern
	// expansions of one, which all share their root's alias); left empty
	// for transitive dependencies discovered via frontmatter, which are not
	// themselves addressable manifest entries and so can never carry a patch.
	PatchAlias string
}

func (req dependencyRequest) installEnabled() bool {
	return req.Install == nil || *req.Install
}

// identity names a (source, path) pair independent of version, used to
// detect when two different requirers reference the very same file so their
// constraints can be checked for compatibility and their render work shared.
func (req dependencyRequest) identity() string {
	return req.Source + "\x00" + req.Path
}

func (r *Resolver) resolvePattern(ctx context.Context, req dependencyRequest, rn string) ([]*resolvedUnit, error) {
	matches, baseDir, err := r.expandPattern(req)
	if err != nil {
		return nil, err
	}

	literalPrefix := literalDirPrefix(req.Path)

	var all []*resolvedUnit
	for _, m := range matches {
		child := req
		child.Path = m
		child.Name = patternDerivedName(m)
		child.PatternRelDir = path.Dir(strings.TrimPrefix(m, literalPrefix))
		unit, children, err := r.resolveOne(ctx, child, rn, nil, map[string]bool{})
		if err != nil {
			return nil, err
		}
		all = append(all, unit)
		all = append(all, children...)
	}
	_ = baseDir
	return all, nil
}

// literalDirPrefix returns the directory portion of pattern before its
// first glob metacharacter, with a trailing slash so TrimPrefix on a match
// leaves a clean relative remainder (e.g. "agents/" for "agents/**/*.md",
// "" for "*.md").
func literalDirPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*?{}[]")
	if idx < 0 {
		idx = len(pattern)
	}
	prefix := pattern[:idx]
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		return prefix[:i+1]
	}
	return ""
}

// patternDerivedName derives a lockfile resource name from a pattern-matched
// relative path: the base filename without its extension.
func patternDerivedName(relPath string) string {
	base := path.Base(relPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// resolveOne resolves a single dependency request (not a pattern) and its
// transitive graph, returning the unit for req itself followed by every
// descendant unit it pulled in. stack guards against cycles along this DFS
// path; identities already fully resolved elsewhere are served from memo.
func (r *Resolver) resolveOne(ctx context.Context, req dependencyRequest, rn string, chain []agpmerrors.DependencyChainEntry, stack map[string]bool) (*resolvedUnit, []*resolvedUnit, error) {
	id := req.identity()

	if stack[id] {
		cycleChain := make([]string, 0, len(chain)+1)
		for _, c := range chain {
			cycleChain = append(cycleChain, c.ResourceType+"/"+c.Name)
		}
		cycleChain = append(cycleChain, string(req.Type)+"/"+req.Name)
		return nil, nil, agpmerrors.NewCycleError(cycleChain)
	}

	if err := r.registerConstraint(req); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	if cached, ok := r.memo[id]; ok {
		r.owningRoots[id][rn] = true
		r.mu.Unlock()
		return cached, nil, nil
	}
	r.mu.Unlock()

	content, resolvedSHA, err := r.fetchContent(req)
	if err != nil {
		return nil, nil, err
	}

	nextStack := make(map[string]bool, len(stack)+1)
	for k := range stack {
		nextStack[k] = true
	}
	nextStack[id] = true
	nextChain := append(append([]agpmerrors.DependencyChainEntry{}, chain...), agpmerrors.DependencyChainEntry{
		Name: req.Name, ResourceType: string(req.Type),
	})

	projectVars := r.manifest.Project
	variantInputsBase := render.BuildVariantInputs(projectVars, req.TemplateVars)

	// Pass 1: render and parse only the frontmatter (or, for frontmatter-less
	// JSON resources, the whole file as metadata) so the declared transitive
	// graph is known before the body — which may reference that graph's
	// rendered content — is ever rendered.
	spliced, meta, err := r.renderer.ExtractMetadata(req.Path, content, variantInputsBase, nextChain)
	if err != nil {
		return nil, nil, err
	}

	installedDeps := render.InstalledDependencies(meta)
	templateOnlyDeps := render.TemplateOnlyDependencies(meta)

	var children []*resolvedUnit
	depContent := make(map[string]map[string]string)

	for _, t := range restype.All {
		for _, spec := range templateOnlyDeps[t] {
			childReq := r.transitiveRequest(req, t, spec, resolvedSHA)
			unit, grandchildren, err := r.resolveOne(ctx, childReq, rn, nextChain, nextStack)
			if err != nil {
				return nil, nil, err
			}
			if depContent[t.Plural()] == nil {
				depContent[t.Plural()] = make(map[string]string)
			}
			depContent[t.Plural()][childReq.Name] = string(unit.content)
			children = append(children, grandchildren...)
		}
		for _, spec := range installedDeps[t] {
			childReq := r.transitiveRequest(req, t, spec, resolvedSHA)
			unit, grandchildren, err := r.resolveOne(ctx, childReq, rn, nextChain, nextStack)
			if err != nil {
				return nil, nil, err
			}
			children = append(children, unit)
			children = append(children, grandchildren...)
		}
	}

	// Pass 2: render the whole spliced file now that every transitive
	// dependency's content is known. Resources with no templating and no
	// dependencies pass through with only their frontmatter spliced back.
	// Keyed by (path, type, tool, variant hash, commit, dependency hash) per
	// spec §3, so identical inputs reached via different requirers in the
	// same run are served from the cache once one of them has rendered.
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
			Path:           req.Path,
			ResourceType:   req.Type,
			Tool:           req.Tool,
			VariantHash:    render.VariantHash(variantInputsBase),
			ResolvedCommit: resolvedSHA,
			DependencyHash: render.DependencyHash(depValues),
		}
		rendered, err := r.renderCache.GetOrRender(key, func() (string, error) {
			variantInputs := render.WithDeps(variantInputsBase, depContent)
			return r.renderer.RenderString(req.Path, string(spliced), variantInputs, nextChain)
		})
		if err != nil {
			return nil, nil, err
		}
		finalContent = []byte(rendered)
	}

	// Patches apply after resolution (transitive graph fully known, content
	// fully rendered) but before the checksum is struck, so a patched
	// resource's checksum reflects the patched bytes — the same bytes the
	// installer must reproduce on a later re-render.
	var appliedPatch map[string]any
	if req.PatchAlias != "" {
		if byAlias, ok := r.manifest.Patches[req.Type.Plural()]; ok {
			appliedPatch = byAlias[req.PatchAlias]
		}
	}
	if len(appliedPatch) > 0 {
		patched, err := render.ApplyPatch(finalContent, appliedPatch)
		if err != nil {
			return nil, nil, agpmerrors.NewFrontmatterParseError(req.Path, err)
		}
		finalContent = patched
	}

	installedAt, err := r.computeInstalledAt(req)
	if err != nil {
		return nil, nil, err
	}

	locked := &lockfile.LockedResource{
		Name:           req.Name,
		Source:         req.Source,
		Path:           pathutil.NormalizeForStorage(req.Path),
		Version:        req.VersionSpec,
		ResolvedCommit: resolvedSHA,
		Checksum:       checksum.OfBytes(finalContent),
		InstalledAt:    installedAt,
		ResourceType:   req.Type,
		Tool:           req.Tool,
		ManifestAlias:  rn,
		AppliedPatches: appliedPatch,
		VariantInputs:  render.BuildVariantInputs(projectVars, req.TemplateVars),
		Install:        req.Install,
	}
	if req.Source != "" {
		if url, ok := r.manifest.Sources[req.Source]; ok {
			locked.URL = url
		}
	}
	for _, t := range restype.All {
		for _, spec := range append(append([]render.DependencySpec{}, installedDeps[t]...), templateOnlyDeps[t]...) {
			childReq := r.transitiveRequest(req, t, spec, resolvedSHA)
			locked.Dependencies = append(locked.Dependencies, dependencyRefFor(req, childReq, t).String())
		}
	}
	sort.Strings(locked.Dependencies)

	unit := &resolvedUnit{locked: locked, content: finalContent, install: req.installEnabled()}

	r.mu.Lock()
	r.memo[id] = unit
	if r.owningRoots[id] == nil {
		r.owningRoots[id] = make(map[string]bool)
	}
	r.owningRoots[id][rn] = true
	r.mu.Unlock()

	return unit, children, nil
}

// transitiveRequest builds a dependencyRequest for a dependency declared in
// another resource's frontmatter: it defaults to the same source as its
// referrer, with its path normalized relative to the referrer's directory,
// and (absent an explicit version override) pinned to the referrer's
// already-resolved commit so it's read from the same worktree.
func (r *Resolver) transitiveRequest(parent dependencyRequest, t restype.Type, spec render.DependencySpec, parentSHA string) dependencyRequest {
	childPath := spec.Path
	if !path.IsAbs(childPath) {
		childPath = path.Join(path.Dir(parent.Path), childPath)
	}

	versionSpec := spec.Version
	pinned := ""
	switch {
	case spec.Version != "":
	case spec.Branch != "":
		versionSpec = spec.Branch
	case spec.Rev != "":
		versionSpec = spec.Rev
	default:
		pinned = parentSHA
		versionSpec = parentSHA
	}

	tool := spec.Tool
	if tool == "" {
		tool = t.DefaultTool()
	}

	return dependencyRequest{
		Type:         t,
		Name:         patternDerivedName(childPath),
		Source:       parent.Source,
		Path:         childPath,
		VersionSpec:  versionSpec,
		PinnedSHA:    pinned,
		Tool:         tool,
		Install:      spec.Install,
		TemplateVars: spec.TemplateVars,
		Target:       spec.Target,
		Filename:     spec.Filename,
		RequiredBy:   string(parent.Type) + "/" + parent.Name,
	}
}

// computeInstalledAt derives a locked resource's repo-root-relative install
// destination from the manifest's tool/type artifact path, per spec §4.G
// step 6: hooks and MCP servers collapse onto their shared merge-target
// file; everything else joins the tool's base path with any `target`
// override and the pattern-preserved subdirectory (stripped entirely when
// `flatten` is set), then the `filename` override or the source file's own
// basename.
func (r *Resolver) computeInstalledAt(req dependencyRequest) (string, error) {
	tool := req.Tool
	if tool == "" {
		tool = req.Type.DefaultTool()
	}

	if mergeTarget, ok := r.manifest.GetMergeTarget(tool, req.Type); ok {
		return pathutil.NormalizeForStorage(mergeTarget), nil
	}

	basePath, ok := r.manifest.GetArtifactResourcePath(tool, req.Type)
	if !ok {
		return "", agpmerrors.NewUnsupportedToolError(req.Name, tool)
	}

	filename := req.Filename
	if filename == "" {
		filename = path.Base(req.Path)
	}

	dir := basePath
	if req.Target != "" {
		dir = filepath.Join(dir, req.Target)
	}
	if !req.Flatten && req.PatternRelDir != "" && req.PatternRelDir != "." {
		dir = filepath.Join(dir, req.PatternRelDir)
	}

	return pathutil.NormalizeForStorage(filepath.Join(dir, filename)), nil
}

// dependencyRefFor builds the compact DependencyRef for a resolved child, per
// spec §6's three textual forms: a local child (no source at all) is
// referenced by path; a remote child pulled from the same source as its
// parent is referenced by name alone (the source is implied); a remote
// child pulled from a different source than its parent carries that
// source explicitly.
func dependencyRefFor(parent, child dependencyRequest, t restype.Type) lockfile.DependencyRef {
	switch {
	case child.Source == "":
		return lockfile.DependencyRef{Type: t, Path: pathutil.NormalizeForStorage(child.Path), Version: child.VersionSpec}
	case child.Source == parent.Source:
		return lockfile.DependencyRef{Type: t, Name: child.Name, Version: child.VersionSpec}
	default:
		return lockfile.DependencyRef{Source: child.Source, Type: t, Name: child.Name, Version: child.VersionSpec}
	}
}

// registerConstraint records req's version constraint against its identity's
// ConstraintSet, surfacing a VersionConflict if it structurally conflicts
// with a constraint already registered by a different requirer.
func (r *Resolver) registerConstraint(req dependencyRequest) error {
	if req.Source == "" || req.PinnedSHA != "" {
		return nil
	}
	c, err := version.Parse(req.VersionSpec)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.constraints.Require(req.identity(), c, req.RequiredBy); err != nil {
		return agpmerrors.NewVersionConflictError(req.Name, []string{req.VersionSpec, err.Error()})
	}
	return nil
}

// skillMetadataFile is the one file inside a skill directory that carries
// frontmatter/dependencies; every other file in the tree is a supporting
// asset the installer copies verbatim, per spec §3's "SKILL.md + supporting
// files" shape. Checksumming and templating therefore cover only this file
// — the directory copy itself is content-addressed by the locked commit,
// not by a tree-wide digest.
const skillMetadataFile = "SKILL.md"

// relForFetch returns the file path to actually read off disk for req: the
// declared path itself, except for a skill dependency, where the declared
// path names the skill's directory and the readable file is SKILL.md inside it.
func relForFetch(req dependencyRequest) string {
	if req.Type == restype.Skill {
		return path.Join(req.Path, skillMetadataFile)
	}
	return req.Path
}

// fetchContent reads req's raw file content (from the project directory for
// local dependencies, or from a resolved source-cache worktree for remote
// ones), returning the resolved commit SHA (empty for local).
func (r *Resolver) fetchContent(req dependencyRequest) ([]byte, string, error) {
	if req.Source == "" {
		full := filepath.Join(r.paths.ProjectDir(), filepath.FromSlash(relForFetch(req)))
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, "", agpmerrors.NewMissingDependencyError(req.Name, []string{req.Path})
		}
		return data, "", nil
	}

	url, ok := r.manifest.Sources[req.Source]
	if !ok {
		return nil, "", agpmerrors.NewSourceNotFoundError(req.Source)
	}

	sha := req.PinnedSHA
	if sha == "" {
		if err := r.cache.EnsureRepo(req.Source, url); err != nil {
			return nil, "", err
		}
		resolved, err := r.cache.ResolveRef(req.Source, req.VersionSpec)
		if err != nil {
			return nil, "", err
		}
		sha = resolved
	}

	worktree, err := r.cache.GetOrCreateWorktreeForSHA(req.Source, url, sha, string(req.Type)+"/"+req.Name)
	if err != nil {
		return nil, "", err
	}

	full := filepath.Join(worktree, filepath.FromSlash(relForFetch(req)))
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, "", agpmerrors.NewMissingDependencyError(req.Name, []string{req.Path})
	}
	return data, sha, nil
}

// expandPattern resolves req's source/version to a worktree (or the project
// directory, for local patterns) and globs req.Path within it, returning the
// matched paths relative to that base directory.
func (r *Resolver) expandPattern(req dependencyRequest) ([]string, string, error) {
	var baseDir string
	if req.Source == "" {
		baseDir = r.paths.ProjectDir()
	} else {
		url, ok := r.manifest.Sources[req.Source]
		if !ok {
			return nil, "", agpmerrors.NewSourceNotFoundError(req.Source)
		}
		if err := r.registerConstraint(req); err != nil {
			return nil, "", err
		}
		if err := r.cache.EnsureRepo(req.Source, url); err != nil {
			return nil, "", err
		}
		sha, err := r.cache.ResolveRef(req.Source, req.VersionSpec)
		if err != nil {
			return nil, "", err
		}
		worktree, err := r.cache.GetOrCreateWorktreeForSHA(req.Source, url, sha, string(req.Type)+"/"+req.Name)
		if err != nil {
			return nil, "", err
		}
		baseDir = worktree
	}

	matches, err := globRelative(baseDir, req.Path)
	if err != nil {
		return nil, "", fmt.Errorf("resolver: expand pattern %q: %w", req.Path, err)
	}
	return matches, baseDir, nil
}
