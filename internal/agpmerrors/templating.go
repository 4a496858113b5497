package agpmerrors

import (
	"fmt"
	"strings"
)

// DependencyChainEntry is one link in the dependency chain that led to a
// template error, innermost (the resource being rendered) last.
type DependencyChainEntry struct {
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
}

// TemplateError represents a failure extracting or rendering frontmatter.
type TemplateError struct {
	Base Error `json:"error"`

	// Path is the source file being rendered.
	Path string `json:"path,omitempty"`

	// Variable is the missing/offending template variable, when known.
	Variable string `json:"variable,omitempty"`

	// AvailableVariables lists the top-level context keys that were in
	// scope when Variable failed to resolve.
	AvailableVariables []string `json:"available_variables,omitempty"`

	// Suggestions holds remediation text, e.g. prompting the user to
	// declare a dependency with install: false.
	Suggestions []string `json:"suggestions,omitempty"`

	// Chain is the dependency chain active when the error occurred.
	Chain []DependencyChainEntry `json:"chain,omitempty"`

	// Line is the 1-based line number in the template text, when known.
	Line int `json:"line,omitempty"`
}

// NewFrontmatterParseError wraps a failure locating or parsing frontmatter boundaries.
func NewFrontmatterParseError(path string, cause error) *TemplateError {
	return &TemplateError{
		Base: Error{
			Category: CategoryTemplating,
			Code:     CodeFrontmatterParse,
			Message:  fmt.Sprintf("failed to parse frontmatter in %q", path),
			Cause:    cause,
		},
		Path: path,
	}
}

// NewTemplateRenderError wraps a template execution failure.
func NewTemplateRenderError(path string, cause error) *TemplateError {
	return &TemplateError{
		Base: Error{
			Category: CategoryTemplating,
			Code:     CodeTemplateRender,
			Message:  fmt.Sprintf("failed to render template in %q", path),
			Cause:    cause,
		},
		Path: path,
	}
}

// NewMissingVariableError reports an undeclared template variable reference.
func NewMissingVariableError(path, variable string, available []string, chain []DependencyChainEntry) *TemplateError {
	var suggestions []string
	if strings.HasPrefix(variable, "agpm.deps.") {
		suggestions = append(suggestions, fmt.Sprintf(
			"declare the dependency referenced by %q with install: false so its rendered content is available as a template variable without being written to disk", variable))
	}
	return &TemplateError{
		Base: Error{
			Category: CategoryTemplating,
			Code:     CodeMissingVariable,
			Message:  fmt.Sprintf("undeclared variable %q referenced in %q", variable, path),
			Hint:     "Declare the dependency with install: false to make it available as a template variable only.",
		},
		Path:               path,
		Variable:           variable,
		AvailableVariables: available,
		Suggestions:        suggestions,
		Chain:              chain,
	}
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return e.Base.Error()
}

// Unwrap returns the underlying error.
func (e *TemplateError) Unwrap() error {
	return e.Base.Cause
}

// Is reports whether the target error matches this error by code.
func (e *TemplateError) Is(target error) bool {
	t, ok := target.(*TemplateError)
	if !ok {
		return false
	}
	return e.Base.Code == t.Base.Code
}
