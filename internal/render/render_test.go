package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agpm-dev/agpm/internal/restype"
)

const sampleDoc = "---\nname: hello\nagpm:\n  templating: true\ndependencies:\n  snippets:\n    - path: guide.md\n      install: false\n---\nBody references {{ .agpm.deps.snippets.guide.content }}.\n"

func TestFindBoundaries(t *testing.T) {
	b, ok := FindBoundaries([]byte(sampleDoc))
	require.True(t, ok)
	fm := Raw([]byte(sampleDoc), b)
	assert.Contains(t, fm, "name: hello")
	assert.NotContains(t, fm, "Body references")
}

func TestFindBoundaries_NoFrontmatter(t *testing.T) {
	_, ok := FindBoundaries([]byte("just a plain file\n"))
	assert.False(t, ok)
}

func TestReplaceFrontmatter_PreservesSurroundingBytes(t *testing.T) {
	content := []byte(sampleDoc)
	b, ok := FindBoundaries(content)
	require.True(t, ok)

	replaced, err := ReplaceFrontmatter(content, "name: hello\n", b)
	require.NoError(t, err)

	assert.Equal(t, content[:b.Start], replaced[:b.Start])
	suffixLen := len(content) - b.End
	assert.Equal(t, content[b.End:], replaced[len(replaced)-suffixLen:])
}

func TestParseMetadata_ExtractsDependencies(t *testing.T) {
	b, ok := FindBoundaries([]byte(sampleDoc))
	require.True(t, ok)
	fm := Raw([]byte(sampleDoc), b)

	meta, err := ParseMetadata(fm)
	require.NoError(t, err)
	assert.True(t, meta.Templating)

	snippets := meta.Dependencies[restype.Snippet]
	require.Len(t, snippets, 1)
	assert.Equal(t, "guide.md", snippets[0].Path)
	assert.False(t, snippets[0].InstallEnabled())
}

func TestRenderer_TwoPass(t *testing.T) {
	r := New()
	content := []byte(sampleDoc)
	b, ok := FindBoundaries(content)
	require.True(t, ok)

	variantInputs := BuildVariantInputs(map[string]any{"name": "demo"}, nil)

	renderedFM, err := r.RenderPass1("hello.md", content, b, variantInputs, nil)
	require.NoError(t, err)

	spliced, err := ReplaceFrontmatter(content, renderedFM, b)
	require.NoError(t, err)

	withDeps := WithDeps(variantInputs, map[string]map[string]string{
		"snippets": {"guide": "# Guide\nHello."},
	})

	final, err := r.RenderPass2("hello.md", spliced, withDeps, nil)
	require.NoError(t, err)
	assert.Contains(t, final, "Body references # Guide\nHello..")
}

func TestRenderer_MissingVariable(t *testing.T) {
	r := New()
	_, err := r.RenderString("x.md", "{{ .agpm.deps.snippets.missing.content }}", map[string]any{"agpm": map[string]any{}}, nil)
	require.Error(t, err)
}

func TestExtractMetadata_InvalidYAMLFrontmatter_WarnsAndContinues(t *testing.T) {
	r := New()
	// Valid template syntax (so pass-1 rendering succeeds) but the rendered
	// result is not valid YAML (an unterminated flow sequence).
	content := []byte("---\nkey: [unterminated\n---\nBody text.\n")

	spliced, meta, err := r.ExtractMetadata("broken.md", content, map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, meta)
	assert.Contains(t, string(spliced), "Body text.")

	// A second resolution of the same path must not error either, and
	// should not panic re-acquiring the once-per-file warning lock.
	_, meta2, err := r.ExtractMetadata("broken.md", content, map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, meta2)
}

func TestExtractMetadata_InvalidJSONDependenciesBlock_WarnsAndContinues(t *testing.T) {
	r := New()
	// Valid JSON, but a "dependencies.agents" entry that isn't a string or
	// table, which ParseJSONMetadata rejects.
	content := []byte(`{"dependencies": {"agents": [123]}}`)

	spliced, meta, err := r.ExtractMetadata("broken.json", content, map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, meta)
	assert.Equal(t, content, spliced)
}

func TestVariantHash_StableAcrossMapOrdering(t *testing.T) {
	a := map[string]any{"x": 1, "y": 2}
	b := map[string]any{"y": 2, "x": 1}
	assert.Equal(t, VariantHash(a), VariantHash(b))
}
