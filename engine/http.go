package engine

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
)

// ServeView renders view for an HTTP request. Output is buffered so the
// status can follow the outcome: 404 for a missing view, 500 for any other
// failure, with the partial output and error panel as the body.
func (e *Engine) ServeView(w http.ResponseWriter, r *http.Request, view string, bindings map[string]any) {
	var buf bytes.Buffer
	err := e.WithTokens(RequestTokens{Request: r}).Load(&buf, view, bindings)
	status := StatusCode(err)
	if err != nil {
		e.logger.Error("render failed", "view", view, "path", r.URL.Path, "status", status, "error", err)
		if buf.Len() == 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Handler serves a fixed view; data, if non-nil, supplies the bindings.
func (e *Engine) Handler(view string, data func(*http.Request) map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var bindings map[string]any
		if data != nil {
			bindings = data(r)
		}
		e.ServeView(w, r, view, bindings)
	})
}

// StatsHandler writes the engine statistics as plain text.
func (e *Engine) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := e.Stats()
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, k := range keys {
			fmt.Fprintf(w, "%s: %v\n", k, stats[k])
		}
	}
}
