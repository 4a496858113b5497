package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/agpm-dev/agpm/internal/restype"
)

// CacheKey identifies one rendered-content cache entry, per spec §3: a
// (resource_path, resource_type, tool, variant_inputs_hash, resolved_commit,
// dependency_hash) tuple. Two commits or two dependency graphs producing
// different content for the same file must never collide.
type CacheKey struct {
	Path           string
	ResourceType   restype.Type
	Tool           string
	VariantHash    string
	ResolvedCommit string
	DependencyHash string
}

func (k CacheKey) string() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", k.Path, k.ResourceType, k.Tool, k.VariantHash, k.ResolvedCommit, k.DependencyHash)
}

// VariantHash hashes a variant_inputs map deterministically across process
// runs. Per spec.md §9's Open Question resolution, this sorts the map's
// top-level keys into a slice before marshaling (Go map iteration order is
// randomized, so some determinism step is unavoidable) but otherwise
// hashes whatever JSON the map produces — no deeper value canonicalization
// (number formatting, Unicode normalization, null removal).
func VariantHash(inputs map[string]any) string {
	type kv struct {
		K string `json:"k"`
		V any    `json:"v"`
	}
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]kv, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, kv{K: k, V: inputs[k]})
	}

	data, err := json.Marshal(pairs)
	if err != nil {
		// Unmarshalable inputs (e.g. a func value slipped into project.*)
		// still need a stable, if degenerate, hash.
		data = []byte(fmt.Sprintf("%v", pairs))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DependencyHash hashes an ordered list of content strings (names are not
// part of the input) representing a resource's resolved transitive
// dependency content, so a change anywhere in the dependency graph
// invalidates the cache entry.
func DependencyHash(contents []string) string {
	h := sha256.New()
	for _, c := range contents {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is the in-memory rendered-content cache for one installation run.
// It is cleared implicitly when the run ends (the Cache value is simply
// dropped); nothing persists across runs.
type Cache struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get returns the cached rendered content for key, if present.
func (c *Cache) Get(key CacheKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key.string()]
	return v, ok
}

// Put stores rendered content for key.
func (c *Cache) Put(key CacheKey, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.string()] = content
}

// GetOrRender returns the cached value for key, or calls render, caches,
// and returns its result. The lock is not held while render runs, so
// concurrent callers that miss on the same key each invoke render and each
// Put its result; the last Put wins.
func (c *Cache) GetOrRender(key CacheKey, render func() (string, error)) (string, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := render()
	if err != nil {
		return "", err
	}
	c.Put(key, v)
	return v, nil
}
