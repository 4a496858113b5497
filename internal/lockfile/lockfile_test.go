package lockfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agpm-dev/agpm/internal/restype"
)

func TestDependencyRef_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  DependencyRef
		want string
	}{
		{
			name: "local with version",
			ref:  DependencyRef{Type: restype.Snippet, Path: "guide.md", Version: "v1.0.0"},
			want: "snippet:guide.md@v1.0.0",
		},
		{
			name: "local without version",
			ref:  DependencyRef{Type: restype.Agent, Path: "reviewer.md"},
			want: "agent:reviewer.md",
		},
		{
			name: "same source",
			ref:  DependencyRef{Type: restype.Command, Name: "deploy", Version: "v2.0.0"},
			want: "command/deploy@v2.0.0",
		},
		{
			name: "cross source",
			ref:  DependencyRef{Source: "community", Type: restype.Hook, Name: "lint", Version: "main"},
			want: "community:hook/lint@main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.ref.String())

			parsed, err := ParseDependencyRef(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.ref.Type, parsed.Type)
			assert.Equal(t, tt.ref.Source, parsed.Source)
			assert.Equal(t, tt.ref.Name, parsed.Name)
			assert.Equal(t, tt.ref.Path, parsed.Path)
			assert.Equal(t, tt.ref.Version, parsed.Version)
		})
	}
}

func TestParseDependencyRef_Invalid(t *testing.T) {
	t.Parallel()
	_, err := ParseDependencyRef("not-a-valid-ref")
	require.Error(t, err)
}

func TestLockfile_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	l := New(dir)
	l.AddResource(restype.Agent, &LockedResource{
		Name:        "community:reviewer@v1.0.0",
		Source:      "community",
		Path:        "agents/reviewer.md",
		Version:     "v1.0.0",
		Checksum:    "sha256:deadbeef",
		InstalledAt: ".claude/agents/reviewer.md",
	})
	l.AddResource(restype.Agent, &LockedResource{
		Name:        "hello",
		Path:        "../local/hello.md",
		Checksum:    "sha256:cafebabe",
		InstalledAt: ".claude/agents/hello.md",
	})

	require.NoError(t, l.Save())

	reloaded, exists, err := Load(dir)
	require.NoError(t, err)
	require.True(t, exists)
	require.Len(t, reloaded.Agents, 2)

	// Sorted by name: "community:reviewer@v1.0.0" < "hello"
	assert.Equal(t, "community:reviewer@v1.0.0", reloaded.Agents[0].Name)
	assert.Equal(t, "hello", reloaded.Agents[1].Name)
	assert.Equal(t, restype.Agent, reloaded.Agents[0].ResourceType)
}

func TestLockfile_Load_MissingIsNotError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	l, exists, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, l.AllResources())
}
