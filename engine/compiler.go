package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"dlview/engine/expr"
)

// Artifacts are Go templates with their own delimiters so that output of an
// earlier pass is never matched again by the {{ }} passes.
const (
	LeftDelim  = "{%"
	RightDelim = "%}"
)

const defaultCSRFField = "csrf-token"

// CompilerOptions configures a Compiler.
type CompilerOptions struct {
	Logger             *slog.Logger
	CSRFField          string // field name used by a bare @csrf
	CollapseWhitespace bool
}

// Compiler translates view sources into artifacts. It holds no per-view
// state and is safe for concurrent use.
type Compiler struct {
	logger    *slog.Logger
	csrfField string
	collapse  bool
}

func NewCompiler() *Compiler {
	return NewCompilerWithOptions(CompilerOptions{})
}

func NewCompilerWithOptions(opts CompilerOptions) *Compiler {
	c := &Compiler{
		logger:    opts.Logger,
		csrfField: opts.CSRFField,
		collapse:  opts.CollapseWhitespace,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.csrfField == "" {
		c.csrfField = defaultCSRFField
	}
	return c
}

// unit carries what the passes share while translating one source.
type unit struct {
	locals expr.Locals
	logger *slog.Logger
}

// pipeline translates an expression for use as a whole action body. Input
// the expression parser does not understand is passed through with only
// its $names rewritten.
func (u *unit) pipeline(src string) string {
	src = strings.TrimSpace(src)
	out, err := expr.Translate(src, u.locals)
	if err != nil {
		u.logger.Debug("expression passed through", "expr", src, "error", err)
		return u.rewriteNames(src)
	}
	return out
}

// operand is pipeline for use as a single function argument.
func (u *unit) operand(src string) string {
	src = strings.TrimSpace(src)
	out, err := expr.TranslateOperand(src, u.locals)
	if err != nil {
		u.logger.Debug("expression passed through", "expr", src, "error", err)
		return "(" + u.rewriteNames(src) + ")"
	}
	return out
}

var dollarNameRe = regexp.MustCompile(`\$([A-Za-z_]\w*)`)

func (u *unit) rewriteNames(src string) string {
	return dollarNameRe.ReplaceAllStringFunc(src, func(m string) string {
		if u.locals.IsLocal(m[1:]) {
			return m
		}
		return "$." + m[1:]
	})
}

type pass struct {
	name  string
	apply func(u *unit, content string) string
}

// passes run in this order; each one sees the output of the previous.
func (c *Compiler) passes() []pass {
	return []pass{
		{"comments", c.processComments},
		{"escaped", c.processEscaped},
		{"raw", c.processRaw},
		{"conditionals", c.processConditionals},
		{"loops", c.processLoops},
		{"php", c.processPhp},
		{"json", c.processJSON},
		{"includes", c.processIncludes},
		{"print", c.processPrint},
		{"csrf", c.processCSRF},
		{"markdown", c.processMarkdown},
		{"echo", c.processEcho},
		{"loop-control", c.processLoopControl},
		{"varname", c.processVarname},
	}
}

func (c *Compiler) newUnit(source string) *unit {
	return &unit{locals: collectLocals(source), logger: c.logger}
}

// Build applies the directive passes to source. Sections and @base are not
// handled here; see ResolveDirective and Compile.
func (c *Compiler) Build(source string) string {
	u := c.newUnit(source)
	return c.build(u, source, nil)
}

func (c *Compiler) build(u *unit, content string, trace func(stage, out string)) string {
	for _, p := range c.passes() {
		content = c.runPass(u, p, content)
		if trace != nil {
			trace(p.name, content)
		}
	}
	return content
}

// runPass applies p and returns the input unchanged if p panics.
func (c *Compiler) runPass(u *unit, p pass, content string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("compiler pass failed", "pass", p.name, "panic", r)
			out = content
		}
	}()
	return p.apply(u, content)
}

// Compile turns a view source into its artifact: comments out, sections and
// @base resolved, directive passes applied, local variables declared.
func (c *Compiler) Compile(source string) string {
	return c.compile(source, nil)
}

// Trace is Compile that reports the artifact after every stage.
func (c *Compiler) Trace(source string, fn func(stage, out string)) string {
	return c.compile(source, fn)
}

func (c *Compiler) compile(source string, trace func(stage, out string)) string {
	u := c.newUnit(source)
	if trace == nil {
		trace = func(string, string) {}
	}
	trace("source", source)
	content := c.runPass(u, pass{"comments", c.processComments}, source)
	content = c.resolveDirective(u, content)
	trace("sections", content)
	content = c.build(u, content, trace)
	content = declareLocals(content, u.locals)
	if c.collapse {
		content = collapseWhitespace(content)
	}
	content = strings.TrimSpace(content)
	trace("artifact", content)
	return content
}

var (
	foreachLocalsRe = regexp.MustCompile(`@foreach\s*\([^\n]*?\s+as\s+\$([A-Za-z_]\w*)(?:\s*=>\s*\$([A-Za-z_]\w*))?\s*\)`)
	forLocalsRe     = regexp.MustCompile(`@for\s*\(\s*\$([A-Za-z_]\w*)(?:\s*,\s*\$([A-Za-z_]\w*))?\s*:?=`)
	varnameLocalsRe = regexp.MustCompile(`@varname\s*\(\s*([a-z][A-Za-z0-9_]*)\s*,`)
	phpBlockRe      = regexp.MustCompile(`(?s)@php\b(.*?)@endphp`)
	phpAssignRe     = regexp.MustCompile(`\$([A-Za-z_]\w*)(?:\s*,\s*\$([A-Za-z_]\w*))?\s*:=`)
)

// collectLocals finds the names a view declares itself. They are printed as
// template variables; every other $name is looked up on the context.
func collectLocals(source string) expr.Locals {
	locals := expr.Locals{}
	add := func(matches [][]string) {
		for _, m := range matches {
			for _, name := range m[1:] {
				if name != "" {
					locals.Add(name)
				}
			}
		}
	}
	add(foreachLocalsRe.FindAllStringSubmatch(source, -1))
	add(forLocalsRe.FindAllStringSubmatch(source, -1))
	add(varnameLocalsRe.FindAllStringSubmatch(source, -1))
	for _, block := range phpBlockRe.FindAllStringSubmatch(source, -1) {
		add(phpAssignRe.FindAllStringSubmatch(block[1], -1))
	}
	return locals
}

var defineHeaderRe = regexp.MustCompile(`\{% define "(?:[^"\\]|\\.)*" %\}`)

// declareLocals seeds every local from the context at the top of the artifact
// and of each section body, so a local read before its loop or @varname
// still resolves to the bound value.
func declareLocals(content string, locals expr.Locals) string {
	if len(locals) == 0 {
		return content
	}
	names := make([]string, 0, len(locals))
	for name := range locals {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "{%% $%s := $.%s %%}", name, name)
	}
	preamble := b.String()
	content = defineHeaderRe.ReplaceAllStringFunc(content, func(h string) string {
		return h + preamble
	})
	return preamble + content
}

var blankRunRe = regexp.MustCompile(`[ \t]*\n[ \t\n]*`)

func collapseWhitespace(content string) string {
	return blankRunRe.ReplaceAllString(content, "\n")
}

var (
	bladeCommentRe = regexp.MustCompile(`(?s)\{\{--.*?--\}\}`)
	htmlCommentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// processComments removes {{-- --}} and <!-- --> comments.
func (c *Compiler) processComments(u *unit, content string) string {
	content = bladeCommentRe.ReplaceAllString(content, "")
	return htmlCommentRe.ReplaceAllString(content, "")
}

var escapedEchoRe = regexp.MustCompile(`\{\{\s*(\$.+?)\s*\}\}`)

// processEscaped handles {{ $expr }}.
func (c *Compiler) processEscaped(u *unit, content string) string {
	return escapedEchoRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := escapedEchoRe.FindStringSubmatch(m)
		return "{% escape " + u.operand(sub[1]) + " %}"
	})
}

var rawEchoRe = regexp.MustCompile(`\{!!\s*(.+?)\s*!!\}`)

// processRaw handles {!! expr !!}.
func (c *Compiler) processRaw(u *unit, content string) string {
	return rawEchoRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := rawEchoRe.FindStringSubmatch(m)
		return "{% raw " + u.operand(sub[1]) + " %}"
	})
}

var elseIfSpacedRe = regexp.MustCompile(`@else[ \t]+if\s*\(`)

// processConditionals handles @if, @elseif, @else, @endif and @unless.
func (c *Compiler) processConditionals(u *unit, content string) string {
	content = elseIfSpacedRe.ReplaceAllString(content, "@elseif(")
	action := func(head string) func(d directive) (string, bool) {
		return func(d directive) (string, bool) {
			if strings.TrimSpace(d.args) == "" {
				return "", false
			}
			return "{% " + head + " " + u.pipeline(d.args) + " %}", true
		}
	}
	content = replaceDirective(content, "if", argsRequired, action("if"))
	content = replaceDirective(content, "elseif", argsRequired, action("else if"))
	content = replaceDirective(content, "unless", argsRequired, func(d directive) (string, bool) {
		if strings.TrimSpace(d.args) == "" {
			return "", false
		}
		return "{% if not " + u.operand(d.args) + " %}", true
	})
	content = replaceDirective(content, "else", argsNone, literal("{% else %}"))
	content = replaceDirective(content, "endif", argsNone, literal("{% end %}"))
	return replaceDirective(content, "endunless", argsNone, literal("{% end %}"))
}

func literal(s string) func(directive) (string, bool) {
	return func(directive) (string, bool) { return s, true }
}

var (
	foreachClauseRe = regexp.MustCompile(`(?s)^(.*)\s+as\s+\$([A-Za-z_]\w*)(?:\s*=>\s*\$([A-Za-z_]\w*))?\s*$`)
	cForRe          = regexp.MustCompile(`^\s*\$([A-Za-z_]\w*)\s*=\s*(.+?)\s*;\s*\$([A-Za-z_]\w*)\s*(<=|<|>=|>|!=)\s*(.+?)\s*;\s*\$([A-Za-z_]\w*)\s*(\+\+|--|\+=\s*.+|-=\s*.+)\s*$`)
	goForRe         = regexp.MustCompile(`(?s)^\s*\$([A-Za-z_]\w*)(?:\s*,\s*\$([A-Za-z_]\w*))?\s*:=\s*(.+)$`)
)

// processLoops handles @foreach and @for with their closing directives.
func (c *Compiler) processLoops(u *unit, content string) string {
	content = replaceDirective(content, "foreach", argsRequired, func(d directive) (string, bool) {
		sub := foreachClauseRe.FindStringSubmatch(d.args)
		if sub == nil {
			if strings.TrimSpace(d.args) == "" {
				return "", false
			}
			return "{% range " + u.pipeline(d.args) + " %}", true
		}
		coll := u.pipeline(sub[1])
		if sub[3] != "" {
			return fmt.Sprintf("{%% range $%s, $%s := %s %%}", sub[2], sub[3], coll), true
		}
		return fmt.Sprintf("{%% range $%s := %s %%}", sub[2], coll), true
	})
	content = replaceDirective(content, "for", argsRequired, func(d directive) (string, bool) {
		if clause, ok := u.countingLoop(d.args); ok {
			return clause, true
		}
		if sub := goForRe.FindStringSubmatch(d.args); sub != nil {
			if sub[2] != "" {
				return fmt.Sprintf("{%% range $%s, $%s := %s %%}", sub[1], sub[2], u.pipeline(sub[3])), true
			}
			return fmt.Sprintf("{%% range $%s := %s %%}", sub[1], u.pipeline(sub[3])), true
		}
		if strings.TrimSpace(d.args) == "" {
			return "", false
		}
		return "{% range " + u.pipeline(d.args) + " %}", true
	})
	content = replaceDirective(content, "endforeach", argsNone, literal("{% end %}"))
	return replaceDirective(content, "endfor", argsNone, literal("{% end %}"))
}

// countingLoop translates `$i = A; $i < B; $i++` into a range over iterate.
func (u *unit) countingLoop(args string) (string, bool) {
	sub := cForRe.FindStringSubmatch(args)
	if sub == nil || sub[1] != sub[3] || sub[1] != sub[6] {
		return "", false
	}
	var step string
	switch s := sub[7]; {
	case s == "++":
		step = "1"
	case s == "--":
		step = "-1"
	case strings.HasPrefix(s, "+="):
		step = u.operand(s[2:])
	default:
		amount := strings.TrimSpace(s[2:])
		if _, err := strconv.Atoi(amount); err == nil {
			step = "-" + amount
		} else {
			step = "(neg " + u.operand(amount) + ")"
		}
	}
	return fmt.Sprintf("{%% range $%s := iterate %s %q %s %s %%}",
		sub[1], u.operand(sub[2]), sub[4], u.operand(sub[5]), step), true
}

// processPhp opens and closes a raw action around @php ... @endphp.
func (c *Compiler) processPhp(u *unit, content string) string {
	content = replaceDirective(content, "php", argsNone, literal(LeftDelim))
	return replaceDirective(content, "endphp", argsNone, literal(RightDelim))
}

// processJSON handles @json(expr, 'pretty') and then @json(expr).
func (c *Compiler) processJSON(u *unit, content string) string {
	content = replaceDirective(content, "json", argsRequired, func(d directive) (string, bool) {
		args := splitArgs(d.args)
		if len(args) != 2 || unquote(args[1]) != "pretty" || args[0] == "" {
			return "", false
		}
		return "{% json_pretty " + u.operand(args[0]) + " %}", true
	})
	return replaceDirective(content, "json", argsRequired, func(d directive) (string, bool) {
		args := splitArgs(d.args)
		if args[0] == "" {
			return "", false
		}
		return "{% json " + u.operand(args[0]) + " %}", true
	})
}

// processIncludes handles @includes(view) and its @include alias. The
// included view renders with the current context.
func (c *Compiler) processIncludes(u *unit, content string) string {
	include := func(d directive) (string, bool) {
		if strings.TrimSpace(d.args) == "" {
			return "", false
		}
		return "{% includes " + u.operand(d.args) + " $ %}", true
	}
	content = replaceDirective(content, "includes", argsRequired, include)
	return replaceDirective(content, "include", argsRequired, include)
}

// processPrint handles @print('name'): the named binding must exist.
func (c *Compiler) processPrint(u *unit, content string) string {
	return replaceDirective(content, "print", argsRequired, func(d directive) (string, bool) {
		name := bindingName(d.args)
		if name == "" {
			return "", true
		}
		return "{% required " + strconv.Quote(name) + " $ %}", true
	})
}

// processCSRF handles @csrf("field") before the bare @csrf so the argument
// is never left behind as text.
func (c *Compiler) processCSRF(u *unit, content string) string {
	content = replaceDirective(content, "csrf", argsRequired, func(d directive) (string, bool) {
		field := unquote(d.args)
		if field == "" {
			field = c.csrfField
		}
		return "{% csrf_field " + strconv.Quote(field) + " %}", true
	})
	return replaceDirective(content, "csrf", argsNone, literal("{% csrf_field "+strconv.Quote(c.csrfField)+" %}"))
}

// processMarkdown handles @markdown(expr).
func (c *Compiler) processMarkdown(u *unit, content string) string {
	return replaceDirective(content, "markdown", argsRequired, func(d directive) (string, bool) {
		if strings.TrimSpace(d.args) == "" {
			return "", false
		}
		return "{% markdown " + u.operand(d.args) + " %}", true
	})
}

var echoRe = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// processEcho handles whatever {{ expr }} is left; empty ones disappear.
func (c *Compiler) processEcho(u *unit, content string) string {
	return echoRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := echoRe.FindStringSubmatch(m)
		if sub[1] == "" {
			return ""
		}
		return "{% echo " + u.operand(sub[1]) + " %}"
	})
}

// processLoopControl handles @break and @continue, optionally conditional.
func (c *Compiler) processLoopControl(u *unit, content string) string {
	for _, kw := range []string{"break", "continue"} {
		content = replaceDirective(content, kw, argsOptional, func(d directive) (string, bool) {
			if !d.hasArgs || strings.TrimSpace(d.args) == "" {
				return "{% " + kw + " %}", true
			}
			return "{% if " + u.pipeline(d.args) + " %}{% " + kw + " %}{% end %}", true
		})
	}
	return content
}

var varnameRe = regexp.MustCompile(`^[a-z][A-Za-z0-9_]*$`)

// processVarname handles @varname(name, value).
func (c *Compiler) processVarname(u *unit, content string) string {
	return replaceDirective(content, "varname", argsRequired, func(d directive) (string, bool) {
		args := splitArgs(d.args)
		if len(args) != 2 || !varnameRe.MatchString(args[0]) || args[1] == "" {
			return "", false
		}
		op := "="
		if !u.locals.IsLocal(args[0]) {
			op = ":="
		}
		return fmt.Sprintf("{%% $%s %s %s %%}", args[0], op, u.pipeline(args[1])), true
	})
}
