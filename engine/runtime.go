package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"reflect"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf16"
	"unicode/utf8"
)

// maxIterations bounds an @for counting loop.
const maxIterations = 1_000_000

// renderer executes one artifact. out is the writer currently receiving
// output; section capture swaps it for a buffer.
type renderer struct {
	engine *Engine
	tmpl   *template.Template
	out    io.Writer
	depth  int
}

// funcMap returns the functions artifacts call. A zero renderer is enough
// to parse an artifact.
func (r *renderer) funcMap() template.FuncMap {
	return template.FuncMap{
		"escape":      escapeValue,
		"raw":         rawValue,
		"echo":        echoValue,
		"json":        jsonValue,
		"json_pretty": jsonPretty,
		"includes":    r.includes,
		"required":    r.required,
		"section":     r.section,
		"csrf_field":  r.csrfField,
		"markdown":    r.markdown,
		"iterate":     iterate,
		"neg":         neg,
		"isset":       isset,
		"count":       count,
		"join":        join,
		"upper":       func(v any) string { return strings.ToUpper(echoValue(v)) },
		"lower":       func(v any) string { return strings.ToLower(echoValue(v)) },
		"trim":        func(v any) string { return strings.TrimSpace(echoValue(v)) },
	}
}

// parseArtifact parses an artifact with the runtime function names bound.
func parseArtifact(name, artifact string, funcs template.FuncMap) (*template.Template, error) {
	return template.New(name).
		Delims(LeftDelim, RightDelim).
		Option("missingkey=zero").
		Funcs(funcs).
		Parse(artifact)
}

func (r *renderer) execute(ctx Context) error {
	return r.tmpl.Execute(r.out, ctx)
}

// includes renders another view into the current output with the given
// context.
func (r *renderer) includes(view any, data any) (string, error) {
	name := echoValue(view)
	if err := r.engine.load(r.out, name, bindingsOf(data), r.depth+1); err != nil {
		return "", err
	}
	return "", nil
}

// required prints a binding and halts the render when it is missing.
func (r *renderer) required(name string, data any) (string, error) {
	v, ok := bindingsOf(data)[name]
	if !ok || v == nil {
		return "", &MissingBindingError{Name: name}
	}
	return echoValue(v), nil
}

// section renders a section body and stores it in the context under name.
func (r *renderer) section(tmpl, name string, data any) (string, error) {
	if err := ValidateVarname(name); err != nil {
		return "", err
	}
	ctx, ok := data.(Context)
	if !ok {
		return "", fmt.Errorf("section %s: context is %T", name, data)
	}
	var buf bytes.Buffer
	prev := r.out
	r.out = &buf
	err := r.tmpl.ExecuteTemplate(&buf, tmpl, ctx)
	r.out = prev
	if err != nil {
		return "", err
	}
	ctx[name] = buf.String()
	return "", nil
}

// csrfField prints the hidden input carrying the current request token.
func (r *renderer) csrfField(field string) (string, error) {
	token, err := r.engine.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("csrf token: %w", err)
	}
	field = html.EscapeString(field)
	return fmt.Sprintf(`<input type="hidden" name="%s" id="%s" value="%s" />`, field, field, html.EscapeString(token)), nil
}

func (r *renderer) markdown(v any) (string, error) {
	return r.engine.markdown.RenderMarkdown(echoValue(v))
}

// bindingsOf accepts the context value artifacts pass around.
func bindingsOf(data any) map[string]any {
	switch v := data.(type) {
	case Context:
		return v
	case map[string]any:
		return v
	}
	return map[string]any{}
}

func echoValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}
	return fmt.Sprint(v)
}

func escapeValue(v any) string {
	return template.HTMLEscapeString(echoValue(v))
}

func rawValue(v any) string {
	return strings.TrimSpace(echoValue(v))
}

// jsonValue is the compact @json form: slashes and non-ASCII runes are
// escaped. The pretty form leaves both as they are.
func jsonValue(v any) (string, error) {
	s, err := encodeJSON(v, "")
	if err != nil {
		return "", err
	}
	return escapeJSONText(s), nil
}

// escapeJSONText escapes / and non-ASCII runes in encoded JSON. Both only
// occur inside string literals.
func escapeJSONText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '/':
			b.WriteString(`\/`)
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		default:
			for _, u := range utf16.Encode([]rune{r}) {
				fmt.Fprintf(&b, `\u%04x`, u)
			}
		}
	}
	return b.String()
}

func jsonPretty(v any) (string, error) {
	return encodeJSON(v, "    ")
}

func encodeJSON(v any, indent string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// iterate returns the values a counting loop visits.
func iterate(start any, op string, end any, step any) ([]int, error) {
	from, err := toInt(start)
	if err != nil {
		return nil, err
	}
	to, err := toInt(end)
	if err != nil {
		return nil, err
	}
	by, err := toInt(step)
	if err != nil {
		return nil, err
	}
	if by == 0 {
		return nil, errors.New("iterate: zero step")
	}
	cond := map[string]func(int) bool{
		"<":  func(i int) bool { return i < to },
		"<=": func(i int) bool { return i <= to },
		">":  func(i int) bool { return i > to },
		">=": func(i int) bool { return i >= to },
		"!=": func(i int) bool { return i != to },
	}[op]
	if cond == nil {
		return nil, fmt.Errorf("iterate: unsupported operator %q", op)
	}
	var out []int
	for i := from; cond(i); i += by {
		if len(out) == maxIterations {
			return nil, fmt.Errorf("iterate: more than %d iterations", maxIterations)
		}
		out = append(out, i)
	}
	return out, nil
}

func neg(v any) (int, error) {
	n, err := toInt(v)
	return -n, err
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", x)
		}
		return n, nil
	case nil:
		return 0, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int(rv.Float()), nil
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}

// isset reports whether v is non-nil and, with keys, whether the nested
// map keys all exist.
func isset(v any, keys ...string) bool {
	for _, k := range keys {
		m := bindingsOf(v)
		next, ok := m[k]
		if !ok {
			return false
		}
		v = next
	}
	return v != nil
}

func count(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return rv.Len()
	}
	return 1
}

func join(sep string, v any) string {
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return echoValue(v)
	}
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = echoValue(rv.Index(i).Interface())
	}
	return strings.Join(parts, sep)
}
