package agpmerrors

import "fmt"

// NotFoundError represents a missing manifest/lockfile entry, source, or file.
type NotFoundError struct {
	Base Error `json:"error"`

	// Kind describes what was not found ("source", "manifest", "dependency", ...).
	Kind string `json:"kind,omitempty"`

	// Name is the identifier that was looked up.
	Name string `json:"name,omitempty"`
}

// NewSourceNotFoundError reports that a manifest referenced an undeclared source.
func NewSourceNotFoundError(name string) *NotFoundError {
	return &NotFoundError{
		Base: Error{
			Category: CategoryNotFound,
			Code:     CodeSourceNotFound,
			Message:  fmt.Sprintf("source %q is not declared in the manifest", name),
			Hint:     "Add a [sources] entry for it, or fix the typo.",
		},
		Kind: "source",
		Name: name,
	}
}

// NewManifestNotFoundError reports a missing manifest file.
func NewManifestNotFoundError(path string) *NotFoundError {
	return &NotFoundError{
		Base: Error{
			Category: CategoryNotFound,
			Code:     CodeSourceNotFound,
			Message:  fmt.Sprintf("no manifest found at %q", path),
			Hint:     "Create an agpm.toml in the project directory, or pass --dir to point at one.",
		},
		Kind: "manifest",
		Name: path,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return e.Base.Error()
}

// Unwrap returns the underlying error.
func (e *NotFoundError) Unwrap() error {
	return e.Base.Cause
}
