// Package render implements agpm's metadata extractor and two-pass
// template renderer: frontmatter boundary detection (never parse-then-
// reserialize), Tera-style (here: text/template+sprig) rendering, declared
// transitive-dependency extraction, and the render cache keyed by
// (path, type, tool, variant-hash, commit, dep-hash).
//
// Grounded on the teacher's internal/registry/aqua/template.go
// (text/template + FuncMap, extended here with sprig per the pack's
// stencil-module usage) for rendering, and internal/registry/aqua/fetcher.go's
// goccy/go-yaml usage for frontmatter parsing. The raw-byte-range splice
// discipline is grounded on original_source/src/markdown/frontmatter.rs's
// gray_matter engine, which never round-trips through a structured
// parse-then-serialize pipeline.
package render

import (
	"bytes"
	"fmt"
)

// Boundaries marks the raw byte range of a resource's frontmatter body —
// the text between the opening and closing "---" fences, exclusive of the
// fences themselves. Templating operates on this raw string; the rendered
// result is spliced back with ReplaceFrontmatter, never re-serialized from
// a parsed structure.
type Boundaries struct {
	Start int
	End   int
}

var (
	fenceLF   = []byte("---\n")
	fenceCRLF = []byte("---\r\n")
	fenceOnly = []byte("---")
)

// FindBoundaries locates the frontmatter byte range in content. It returns
// ok=false for content with no leading "---" fence (e.g. JSON resources,
// which carry their dependency/agpm declarations as plain top-level keys
// instead).
func FindBoundaries(content []byte) (Boundaries, bool) {
	var fenceLen int
	switch {
	case bytes.HasPrefix(content, fenceLF):
		fenceLen = len(fenceLF)
	case bytes.HasPrefix(content, fenceCRLF):
		fenceLen = len(fenceCRLF)
	default:
		return Boundaries{}, false
	}

	rest := content[fenceLen:]
	idx := indexClosingFence(rest)
	if idx < 0 {
		return Boundaries{}, false
	}

	return Boundaries{Start: fenceLen, End: fenceLen + idx}, true
}

// indexClosingFence finds the byte offset, within rest, of a line that is
// exactly "---" (optionally followed by \r), returning the offset of the
// start of that line (i.e. right after the preceding newline).
func indexClosingFence(rest []byte) int {
	offset := 0
	for {
		nl := bytes.IndexByte(rest[offset:], '\n')
		lineStart := offset
		var lineEnd int
		if nl < 0 {
			lineEnd = len(rest)
		} else {
			lineEnd = offset + nl
		}
		line := bytes.TrimRight(rest[lineStart:lineEnd], "\r")
		if bytes.Equal(line, fenceOnly) {
			return lineStart
		}
		if nl < 0 {
			return -1
		}
		offset = offset + nl + 1
		if offset >= len(rest) {
			return -1
		}
	}
}

// ReplaceFrontmatter splices rendered in place of original[b.Start:b.End],
// preserving every byte outside the boundary exactly. This is the only
// sanctioned way to apply a rendered frontmatter back into a document —
// there is no parse-then-serialize path.
func ReplaceFrontmatter(original []byte, rendered string, b Boundaries) ([]byte, error) {
	if b.Start < 0 || b.End > len(original) || b.Start > b.End {
		return nil, fmt.Errorf("render: invalid frontmatter boundaries %+v for %d-byte content", b, len(original))
	}
	out := make([]byte, 0, b.Start+len(rendered)+(len(original)-b.End))
	out = append(out, original[:b.Start]...)
	out = append(out, rendered...)
	out = append(out, original[b.End:]...)
	return out, nil
}

// Raw extracts the frontmatter substring denoted by b.
func Raw(content []byte, b Boundaries) string {
	return string(content[b.Start:b.End])
}
