package engine

import (
	"strings"
)

type argMode int

const (
	argsNone argMode = iota
	argsOptional
	argsRequired
)

// directive is one occurrence of @name in a template.
type directive struct {
	start   int
	end     int
	args    string
	hasArgs bool
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// standalone directives must not be glued to a preceding word.
var standalone = map[string]bool{"break": true, "continue": true, "varname": true}

// findDirective returns the next @name at or after from. The marker must
// not follow another @ nor continue into a longer name (@for vs @foreach);
// standalone directives also reject a preceding word byte. When args are
// wanted, a balanced parenthesized group after optional blanks is captured.
func findDirective(s, name string, from int, mode argMode) (directive, bool) {
	marker := "@" + name
	glueable := !standalone[name]
	for from <= len(s) {
		i := strings.Index(s[from:], marker)
		if i < 0 {
			return directive{}, false
		}
		start := from + i
		end := start + len(marker)
		from = end
		if start > 0 && (s[start-1] == '@' || !glueable && isWordByte(s[start-1])) {
			continue
		}
		if end < len(s) && isWordByte(s[end]) {
			continue
		}
		d := directive{start: start, end: end}
		if mode == argsNone {
			return d, true
		}
		j := end
		for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
			j++
		}
		if j < len(s) && s[j] == '(' {
			if closeIdx := matchParen(s, j); closeIdx >= 0 {
				d.args = s[j+1 : closeIdx]
				d.hasArgs = true
				d.end = closeIdx + 1
			}
		}
		return d, true
	}
	return directive{}, false
}

// matchParen returns the index of the parenthesis closing the one at open,
// skipping quoted strings, or -1.
func matchParen(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// replaceDirective rewrites every @name occurrence through fn. Occurrences
// fn declines (ok == false) are left untouched.
func replaceDirective(s, name string, mode argMode, fn func(d directive) (string, bool)) string {
	var b strings.Builder
	pos := 0
	for {
		d, found := findDirective(s, name, pos, mode)
		if !found {
			break
		}
		if mode == argsRequired && !d.hasArgs {
			b.WriteString(s[pos:d.end])
			pos = d.end
			continue
		}
		repl, ok := fn(d)
		if !ok {
			b.WriteString(s[pos:d.end])
			pos = d.end
			continue
		}
		b.WriteString(s[pos:d.start])
		b.WriteString(repl)
		pos = d.end
	}
	if pos == 0 {
		return s
	}
	b.WriteString(s[pos:])
	return b.String()
}

// splitArgs splits a directive argument list on top-level commas.
func splitArgs(args string) []string {
	var (
		parts []string
		depth int
		quote byte
		last  int
	)
	for i := 0; i < len(args); i++ {
		c := args[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(args[last:i]))
				last = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(args[last:]))
	return parts
}

// unquote trims blanks and one pair of surrounding quotes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if q := s[0]; (q == '\'' || q == '"') && s[len(s)-1] == q {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// bindingName turns the argument of @print/@section into a context key.
func bindingName(arg string) string {
	name := strings.TrimPrefix(unquote(strings.Trim(strings.TrimSpace(arg), `'"`)), "$")
	return strings.Join(strings.Fields(name), "_")
}
