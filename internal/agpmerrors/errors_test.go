//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package agpmerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "without cause",
			err: &Error{
				Category: CategoryResolution,
				Code:     CodeCyclicDependency,
				Message:  "circular dependency detected",
			},
			expected: "circular dependency detected",
		},
		{
			name: "with cause",
			err: &Error{
				Category: CategoryParse,
				Code:     CodeManifestParse,
				Message:  "failed to parse manifest",
				Cause:    errors.New("invalid syntax"),
			},
			expected: "failed to parse manifest: invalid syntax",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := &Error{
		Category: CategoryIO,
		Code:     CodeWriteFailed,
		Message:  "write failed",
		Cause:    cause,
	}

	require.Equal(t, cause, err.Unwrap())
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	a := &Error{Category: CategoryGit, Code: CodeCloneFailed, Message: "clone failed"}
	b := &Error{Category: CategoryGit, Code: CodeCloneFailed, Message: "different message"}
	c := &Error{Category: CategoryGit, Code: CodeFetchFailed, Message: "clone failed"}

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
}

func TestResolutionError_Cycle(t *testing.T) {
	t.Parallel()

	err := NewCycleError([]string{"a", "b", "a"})
	assert.True(t, err.IsCycle())
	assert.Equal(t, CodeCyclicDependency, err.Base.Code)

	var target error = err
	var got *ResolutionError
	require.ErrorAs(t, target, &got)
	assert.Equal(t, []string{"a", "b", "a"}, got.Cycle)
}

func TestChecksumError_Format(t *testing.T) {
	t.Parallel()

	err := NewChecksumMismatchError("agent:reviewer", "sha256:aaa", "sha256:bbb")
	f := NewFormatter(nil, true)
	out := f.Format(err)
	assert.Contains(t, out, "E502")
	assert.Contains(t, out, "sha256:aaa")
	assert.Contains(t, out, "sha256:bbb")
}
