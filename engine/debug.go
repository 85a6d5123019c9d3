package engine

import (
	"fmt"
	"io"
	"strings"
)

// DebugTemplate writes every compilation stage of a view to w.
func (e *Engine) DebugTemplate(w io.Writer, view string) error {
	fmt.Fprintf(w, "=== DEBUG TEMPLATE: %s ===\n", view)
	_, err := e.Trace(view, func(stage, out string) {
		fmt.Fprintf(w, "--- %s ---\n%s\n", stage, out)
	})
	return err
}

// ValidateAllTemplates compiles every view and checks that each artifact
// parses. Nothing is written.
func (e *Engine) ValidateAllTemplates() error {
	views, err := e.Views()
	var errs []string
	if err != nil {
		errs = append(errs, fmt.Sprintf("error walking views: %v", err))
	}
	stubs := (&renderer{}).funcMap()
	for _, view := range views {
		compiled, err := e.Template(view)
		if err != nil {
			errs = append(errs, fmt.Sprintf("error compiling %s: %v", view, err))
			continue
		}
		if _, err := parseArtifact(view, compiled, stubs); err != nil {
			errs = append(errs, fmt.Sprintf("invalid artifact for %s: %v", view, err))
		}
		e.logger.Debug("view validated", "view", view)
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "\n"))
	}
	return nil
}

// PreloadTemplates compiles every view, writes artifacts that changed and,
// in source cache mode, fills the in-memory cache.
func (e *Engine) PreloadTemplates() error {
	views, err := e.Views()
	var errs []string
	if err != nil {
		errs = append(errs, fmt.Sprintf("error walking views: %v", err))
	}
	stubs := (&renderer{}).funcMap()
	for _, view := range views {
		art, err := e.Artifact(view)
		if err != nil {
			errs = append(errs, fmt.Sprintf("error resolving %s: %v", view, err))
			continue
		}
		unit, err := e.compileUnit(art)
		if err != nil {
			errs = append(errs, fmt.Sprintf("error compiling %s: %v", view, err))
			continue
		}
		if _, err := e.prepare(art, unit, stubs); err != nil {
			errs = append(errs, fmt.Sprintf("error parsing %s: %v", view, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("preload completed with errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
