package render

import (
	"encoding/json"

	"github.com/goccy/go-yaml"
)

// ApplyPatch deep-merges patch into content's metadata — the frontmatter
// for Markdown-shaped resources, the whole document for JSON-shaped ones
// (hooks, mcp-servers) — and returns the patched content. A nil/empty patch
// returns content unchanged. Patch values win over the resource's own
// metadata on conflict, matching DeepMerge's dst/src convention.
//
// Resolver and Installer both call this on the same pass-2 output so a
// patched resource's checksum (computed after patching) stays reproducible
// across a fresh resolve and a later re-render during install.
func ApplyPatch(content []byte, patch map[string]any) ([]byte, error) {
	if len(patch) == 0 {
		return content, nil
	}

	if b, ok := FindBoundaries(content); ok {
		var meta map[string]any
		if err := yaml.Unmarshal([]byte(Raw(content, b)), &meta); err != nil {
			return nil, err
		}
		merged := DeepMerge(meta, patch)
		out, err := yaml.Marshal(merged)
		if err != nil {
			return nil, err
		}
		return ReplaceFrontmatter(content, string(out), b)
	}

	var doc map[string]any
	if err := json.Unmarshal(content, &doc); err == nil {
		merged := DeepMerge(doc, patch)
		out, err := json.MarshalIndent(merged, "", "  ")
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	return content, nil
}
