package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "empty", in: "", expected: ""},
		{name: "tilde only", in: "~", expected: home},
		{name: "tilde slash", in: "~/agpm", expected: filepath.Join(home, "agpm")},
		{name: "plain path unchanged", in: "/opt/agpm", expected: "/opt/agpm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Expand(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExpand_EnvVar(t *testing.T) {
	t.Setenv("AGPM_TEST_VAR", "/custom/root")

	got, err := Expand("${AGPM_TEST_VAR}/sources")
	require.NoError(t, err)
	assert.Equal(t, "/custom/root/sources", got)
}

func TestClassifyURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		expected URLClass
	}{
		{"https://github.com/acme/agents.git", ClassHTTP},
		{"http://example.com/repo.git", ClassHTTP},
		{"git@github.com:acme/agents.git", ClassSSH},
		{"ssh://git@github.com/acme/agents.git", ClassSSH},
		{"file:///srv/repos/agents", ClassFileScheme},
		{"/abs/local/path", ClassLocalAbsolute},
		{"../relative/path", ClassLocalRelative},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassifyURL(tt.in), tt.in)
	}
}

func TestNormalizeForStorage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a/b/c", NormalizeForStorage(filepath.Join("a", "b", "c")))
}

