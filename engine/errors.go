package engine

import (
	"errors"
	"fmt"
	"html"
	"net/http"
)

var (
	// ErrInvalidIdentifier is wrapped by VarnameError when a binding name is
	// empty or does not match the identifier grammar.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrReservedName is wrapped by VarnameError when a binding name belongs
	// to one of the reserved sets.
	ErrReservedName = errors.New("reserved identifier")
	// ErrIncludeDepth stops runaway @includes/@base recursion.
	ErrIncludeDepth = errors.New("include depth exceeded")
)

// VarnameError rejects a Render Context key.
type VarnameError struct {
	Name       string
	Convention string // empty for grammar errors
	Reason     string
	Err        error
}

func (e *VarnameError) Error() string {
	return fmt.Sprintf("binding %q: %s", e.Name, e.Reason)
}

func (e *VarnameError) Unwrap() error { return e.Err }

// TemplateNotFoundError is returned when a view has no source file.
type TemplateNotFoundError struct {
	View string
	Path string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %s does not exist (%s)", e.View, e.Path)
}

// MissingBindingError is returned by @print when its binding is absent.
type MissingBindingError struct {
	Name string
}

func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("section %s does not exist", e.Name)
}

// CompileError is returned when a compiled artifact is not a valid template.
type CompileError struct {
	View     string
	Artifact string
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiled view %s (%s): %v", e.View, e.Artifact, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// ArtifactError reports a filesystem failure in the build cache.
type ArtifactError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// InvalidPathError rejects a logical view path.
type InvalidPathError struct {
	View   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid view path %q: %s", e.View, e.Reason)
}

// StatusCode maps a Load error to the HTTP status the response should carry.
func StatusCode(err error) int {
	var notFound *TemplateNotFoundError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

const panelStyle = `font-family: 'Open Sans', sans-serif, arial; font-weight: normal; padding: 20px; width: calc(100% - 20px); border-radius: 5px; background-color: #d00000; color: white; margin: 30px auto; max-width: 1024px`

// errorPanel renders the inline message written into the response for
// failures that halt a render.
func errorPanel(err error) string {
	var (
		notFound *TemplateNotFoundError
		missing  *MissingBindingError
	)
	switch {
	case errors.As(err, &notFound):
		return fmt.Sprintf("<style>:root {background-color: #333333}</style><h3 style=\"%s\">The template <strong style=\"padding: 10px\">%s</strong> does not exist</h3>\n\n",
			panelStyle, html.EscapeString(notFound.Path))
	case errors.As(err, &missing):
		return fmt.Sprintf("<h3 style=\"color: white; background-color: #d00000; padding: 20px; border-radius: 5px; font-weight: normal\">The section <strong style=\"padding: 10px; border-radius: 5px; background-color: #000000a0\">%s</strong> does not exist</h3>",
			html.EscapeString(missing.Name))
	}
	return ""
}
