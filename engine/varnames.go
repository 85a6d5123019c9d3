package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Reserved binding names. The three sets are disjoint.
var (
	superglobalNames = map[string]string{
		"GLOBALS":  "GLOBALS is reserved for access to the global application state and cannot be redefined in a view",
		"_SERVER":  "_SERVER exposes information about the execution environment and cannot be overwritten from the template engine",
		"_GET":     "_GET is reserved for HTTP query parameters and cannot be redefined in the context of a view",
		"_POST":    "_POST carries data submitted by forms and cannot be overwritten in a template",
		"_FILES":   "_FILES is reserved for uploaded files and cannot be redefined from a view",
		"_COOKIE":  "_COOKIE is bound to cookie handling and cannot be overwritten by the template engine",
		"_SESSION": "_SESSION is reserved for session management and cannot be redefined in the context of a view",
		"_REQUEST": "_REQUEST aggregates HTTP input data and cannot be overwritten from a template",
		"_ENV":     "_ENV is reserved for system environment variables and cannot be redefined by the template engine",
	}
	environmentControlNames = map[string]string{
		"argc": "argc is an execution environment (CLI) control variable and cannot be used as a view variable",
		"argv": "argv holds command line arguments of the execution environment and cannot be redefined in a template",
	}
	internalConventionNames = map[string]string{
		"http_response_header": "http_response_header is an internal convention for HTTP response headers and must not be overwritten from a view",
		"php_errormsg":         "php_errormsg is an internal variable used for error reporting and cannot be redefined by the template engine",
	}
)

var reservedSets = []struct {
	convention string
	names      map[string]string
}{
	{"superglobal", superglobalNames},
	{"environment control", environmentControlNames},
	{"internal convention", internalConventionNames},
}

// ValidateVarname checks a Render Context key against the identifier
// grammar and the reserved name sets.
func ValidateVarname(name string) error {
	if strings.TrimSpace(name) == "" {
		return &VarnameError{Name: name, Reason: "identifier cannot be empty", Err: ErrInvalidIdentifier}
	}
	if !identifierRe.MatchString(name) {
		return &VarnameError{Name: name, Reason: "identifier does not match [A-Za-z_][A-Za-z0-9_]*", Err: ErrInvalidIdentifier}
	}
	for _, set := range reservedSets {
		if msg, ok := set.names[name]; ok {
			return &VarnameError{
				Name:       name,
				Convention: set.convention,
				Reason:     fmt.Sprintf("reserved %s name: %s", set.convention, msg),
				Err:        ErrReservedName,
			}
		}
	}
	return nil
}

// Context is the Render Context handed to a compiled artifact.
type Context map[string]any

// NewContext validates every binding and copies them into a fresh Context.
// Keys are checked in sorted order so the reported error is stable.
func NewContext(bindings map[string]any) (Context, error) {
	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx := make(Context, len(bindings))
	for _, k := range keys {
		if err := ValidateVarname(k); err != nil {
			return nil, err
		}
		ctx[k] = bindings[k]
	}
	return ctx, nil
}

// Keys returns the context keys in sorted order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
