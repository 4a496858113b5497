package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfBytes(t *testing.T) {
	got := OfBytes([]byte("hello"))
	assert.True(t, strings.HasPrefix(got, "sha256:"))
	assert.Len(t, strings.TrimPrefix(got, "sha256:"), 64)
}

func TestOfFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	got, err := OfFile(path)
	require.NoError(t, err)
	assert.Equal(t, OfBytes([]byte("content")), got)
}

func TestVerify(t *testing.T) {
	digest := OfBytes([]byte("content"))
	assert.True(t, Verify([]byte("content"), digest))
	assert.False(t, Verify([]byte("other"), digest))
}

func TestParse(t *testing.T) {
	_, hexDigest, err := Parse("sha256:deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", hexDigest)

	_, _, err = Parse("md5:deadbeef")
	assert.Error(t, err)

	_, _, err = Parse("nocolon")
	assert.Error(t, err)
}
