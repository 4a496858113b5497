package agpmerrors

import "fmt"

// GitError represents a failure in a source-cache git operation.
type GitError struct {
	Base Error `json:"error"`

	// Source is the source name being operated on.
	Source string `json:"source,omitempty"`

	// URL is the remote URL, when known.
	URL string `json:"url,omitempty"`

	// Ref is the requested ref/version, when applicable.
	Ref string `json:"ref,omitempty"`
}

// NewCloneError wraps a clone failure.
func NewCloneError(source, url string, cause error) *GitError {
	return &GitError{
		Base: Error{
			Category: CategoryGit,
			Code:     CodeCloneFailed,
			Message:  fmt.Sprintf("failed to clone source %q", source),
			Hint:     "Check network connectivity and that the URL is reachable.",
			Cause:    cause,
		},
		Source: source,
		URL:    url,
	}
}

// NewFetchError wraps a fetch failure.
func NewFetchError(source string, cause error) *GitError {
	return &GitError{
		Base: Error{
			Category: CategoryGit,
			Code:     CodeFetchFailed,
			Message:  fmt.Sprintf("failed to fetch updates for source %q", source),
			Cause:    cause,
		},
		Source: source,
	}
}

// NewRefNotFoundError reports that a ref/tag/branch/SHA could not be resolved.
func NewRefNotFoundError(source, ref string) *GitError {
	return &GitError{
		Base: Error{
			Category: CategoryNotFound,
			Code:     CodeRefNotFound,
			Message:  fmt.Sprintf("ref %q not found in source %q", ref, source),
			Hint:     "Run a fetch or double-check the tag/branch/commit spelling.",
		},
		Source: source,
		Ref:    ref,
	}
}

// NewWorktreeError wraps a worktree creation/checkout failure.
func NewWorktreeError(source, ref string, cause error) *GitError {
	return &GitError{
		Base: Error{
			Category: CategoryGit,
			Code:     CodeWorktreeFailed,
			Message:  fmt.Sprintf("failed to prepare worktree for %q at %q", source, ref),
			Cause:    cause,
		},
		Source: source,
		Ref:    ref,
	}
}

// NewLockTimeoutError reports that a source's process lock could not be acquired in time.
func NewLockTimeoutError(source string) *GitError {
	return &GitError{
		Base: Error{
			Category: CategoryGit,
			Code:     CodeLockTimeout,
			Message:  fmt.Sprintf("timed out waiting for lock on source %q", source),
			Hint:     "Another agpm process may be holding the source cache lock.",
		},
		Source: source,
	}
}

// Error implements the error interface.
func (e *GitError) Error() string {
	return e.Base.Error()
}

// Unwrap returns the underlying error.
func (e *GitError) Unwrap() error {
	return e.Base.Cause
}

// Is reports whether the target error matches this error by code.
func (e *GitError) Is(target error) bool {
	t, ok := target.(*GitError)
	if !ok {
		return false
	}
	return e.Base.Code == t.Base.Code
}
