package agpmerrors

import "fmt"

// InstallError represents a failure while placing a resource on disk.
type InstallError struct {
	Base Error `json:"error"`

	// Resource identifies the resource being installed.
	Resource string `json:"resource,omitempty"`

	// Path is the destination path.
	Path string `json:"path,omitempty"`
}

// NewWriteError wraps a failure writing an installed resource file.
func NewWriteError(resource, path string, cause error) *InstallError {
	return &InstallError{
		Base: Error{
			Category: CategoryIO,
			Code:     CodeWriteFailed,
			Message:  fmt.Sprintf("failed to write %q", path),
			Cause:    cause,
		},
		Resource: resource,
		Path:     path,
	}
}

// NewAtomicRenameError wraps a failure completing an atomic rename.
func NewAtomicRenameError(path string, cause error) *InstallError {
	return &InstallError{
		Base: Error{
			Category: CategoryIO,
			Code:     CodeAtomicRename,
			Message:  fmt.Sprintf("failed to atomically finalize %q", path),
			Hint:     "No partial write should be visible; re-run the install.",
			Cause:    cause,
		},
		Path: path,
	}
}

// NewMergeError wraps a failure merging into a shared hook/MCP-server target file.
func NewMergeError(path string, cause error) *InstallError {
	return &InstallError{
		Base: Error{
			Category: CategoryPlatform,
			Code:     CodeMergeFailed,
			Message:  fmt.Sprintf("failed to merge managed block into %q", path),
			Cause:    cause,
		},
		Path: path,
	}
}

// NewUnsupportedToolError reports a resource/tool combination with no install target.
func NewUnsupportedToolError(resource, tool string) *InstallError {
	return &InstallError{
		Base: Error{
			Category: CategoryPlatform,
			Code:     CodeUnsupportedTool,
			Message:  fmt.Sprintf("tool %q has no install target for resource %q", tool, resource),
			Hint:     "Give the tool a path or merge_target for this resource type under [tools.<tool>.resources] in agpm.toml.",
		},
		Resource: resource,
	}
}

// NewSkillTooLargeError reports a skill directory exceeding the file-count
// or total-byte-size cap.
func NewSkillTooLargeError(name, reason string) *InstallError {
	return &InstallError{
		Base: Error{
			Category: CategoryPlatform,
			Code:     CodeSkillTooLarge,
			Message:  fmt.Sprintf("skill %q exceeds its size limit: %s", name, reason),
			Hint:     "Skill directories are capped at 1000 files and 100 MB.",
		},
		Resource: name,
	}
}

// NewSkillSymlinkError reports a symlink found inside a skill directory,
// which is rejected rather than followed or copied.
func NewSkillSymlinkError(name, path string) *InstallError {
	return &InstallError{
		Base: Error{
			Category: CategoryPlatform,
			Code:     CodeSkillSymlink,
			Message:  fmt.Sprintf("skill %q contains a symlink at %q", name, path),
			Hint:     "Replace the symlink with a real file or directory in the source.",
		},
		Resource: name,
		Path:     path,
	}
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	return e.Base.Error()
}

// Unwrap returns the underlying error.
func (e *InstallError) Unwrap() error {
	return e.Base.Cause
}

// Is reports whether the target error matches this error by code.
func (e *InstallError) Is(target error) bool {
	t, ok := target.(*InstallError)
	if !ok {
		return false
	}
	return e.Base.Code == t.Base.Code
}

// ChecksumError represents a content checksum mismatch.
type ChecksumError struct {
	Base     Error  `json:"error"`
	Resource string `json:"resource,omitempty"`
	Expected string `json:"expected,omitempty"`
	Got      string `json:"got,omitempty"`
}

// NewChecksumMismatchError reports a checksum verification failure.
func NewChecksumMismatchError(resource, expected, got string) *ChecksumError {
	return &ChecksumError{
		Base: Error{
			Category: CategoryIO,
			Code:     CodeChecksumFailed,
			Message:  fmt.Sprintf("checksum mismatch for %q", resource),
			Hint:     "The source content changed since the lockfile was written; run an update.",
		},
		Resource: resource,
		Expected: expected,
		Got:      got,
	}
}

// Error implements the error interface.
func (e *ChecksumError) Error() string {
	return e.Base.Error()
}

// Unwrap returns the underlying error.
func (e *ChecksumError) Unwrap() error {
	return e.Base.Cause
}
