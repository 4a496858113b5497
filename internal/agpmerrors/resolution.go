package agpmerrors

import (
	"fmt"
	"strings"
)

// ResolutionError represents a dependency-graph resolution error.
type ResolutionError struct {
	Base Error `json:"error"`

	// Resource is the dependency reference that has the issue.
	Resource string `json:"resource,omitempty"`

	// Missing lists unresolved dependency names; for an install-path
	// conflict (NewInstallPathConflictError) it lists the conflicting
	// resources instead.
	Missing []string `json:"missing,omitempty"`

	// Cycle lists the nodes in a circular dependency.
	// The first and last elements are the same, showing the cycle point.
	Cycle []string `json:"cycle,omitempty"`
}

// NewCycleError creates a ResolutionError for circular dependencies.
func NewCycleError(cycle []string) *ResolutionError {
	return &ResolutionError{
		Base: Error{
			Category: CategoryResolution,
			Code:     CodeCyclicDependency,
			Message:  "circular dependency detected",
			Hint:     "Remove one of the dependencies to break the cycle: " + strings.Join(cycle, " -> "),
		},
		Cycle: cycle,
	}
}

// NewMissingDependencyError creates a ResolutionError for an unresolved dependency reference.
func NewMissingDependencyError(resource string, missing []string) *ResolutionError {
	hint := fmt.Sprintf("Add the missing resource(s) to your manifest or a source: %s", strings.Join(missing, ", "))
	return &ResolutionError{
		Base: Error{
			Category: CategoryResolution,
			Code:     CodeDependencyNotFound,
			Message:  "unresolved dependency",
			Hint:     hint,
		},
		Resource: resource,
		Missing:  missing,
	}
}

// NewVersionConflictError creates a ResolutionError for incompatible constraint sets.
func NewVersionConflictError(name string, constraints []string) *ResolutionError {
	return &ResolutionError{
		Base: Error{
			Category: CategoryResolution,
			Code:     CodeVersionConflict,
			Message:  fmt.Sprintf("no version of %q satisfies all constraints", name),
			Hint:     "Relax one of the conflicting constraints: " + strings.Join(constraints, ", "),
		},
		Resource: name,
	}
}

// NewInstallPathConflictError creates a ResolutionError for two resources targeting the same installed_at path.
func NewInstallPathConflictError(path string, resources []string) *ResolutionError {
	return &ResolutionError{
		Base: Error{
			Category: CategoryResolution,
			Code:     CodeInstallPathConflict,
			Message:  fmt.Sprintf("multiple resources install to %q", path),
			Hint:     "Rename one of the resources or set an explicit target path.",
		},
		Resource: path,
		Missing:  resources,
	}
}

// IsCycle returns true if this is a circular dependency error.
func (e *ResolutionError) IsCycle() bool {
	return len(e.Cycle) > 0
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return e.Base.Error()
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Base.Cause
}

// Is reports whether the target error matches this error by code.
func (e *ResolutionError) Is(target error) bool {
	t, ok := target.(*ResolutionError)
	if !ok {
		return false
	}
	return e.Base.Code == t.Base.Code
}
