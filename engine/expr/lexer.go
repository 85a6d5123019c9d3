package expr

import (
	"strings"
	"unicode"
)

type TokenType int

const (
	TokEOF TokenType = iota
	TokIdent
	TokDollarIdent
	TokDot
	TokDotSpaced
	TokLBracket
	TokRBracket
	TokString
	TokNumber
	TokLParen
	TokRParen
	TokPipe
	TokComma
	TokOp
	TokNot
	TokOther
)

// Token is a lexeme. Space reports whether whitespace preceded it, which
// separates `fn(a)` (argument list) from `fn (a)` (one parenthesized argument).
type Token struct {
	Typ   TokenType
	Val   string
	Space bool
}

type Lexer struct {
	input []rune
	pos   int
}

func NewLexer(s string) *Lexer {
	return &Lexer{input: []rune(s), pos: 0}
}

func (l *Lexer) next() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r := l.input[l.pos]
	l.pos++
	return r
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.input) {
		return 0
	}
	return l.input[l.pos+off]
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func (l *Lexer) NextToken() Token {
	hadSpace := false
	emit := func(typ TokenType, val string) Token {
		return Token{Typ: typ, Val: val, Space: hadSpace}
	}
	for {
		ch := l.peek()
		if ch == 0 {
			return emit(TokEOF, "")
		}
		if unicode.IsSpace(ch) {
			hadSpace = true
			l.next()
			continue
		}
		switch ch {
		case '|':
			l.next()
			if l.peek() == '|' {
				l.next()
				return emit(TokOp, "||")
			}
			return emit(TokPipe, "|")
		case '&':
			l.next()
			if l.peek() == '&' {
				l.next()
				return emit(TokOp, "&&")
			}
			return emit(TokOther, "&")
		case '?':
			l.next()
			if l.peek() == '?' {
				l.next()
				return emit(TokOp, "??")
			}
			return emit(TokOther, "?")
		case '(':
			l.next()
			return emit(TokLParen, "(")
		case ')':
			l.next()
			return emit(TokRParen, ")")
		case '.':
			l.next()
			if hadSpace {
				return emit(TokDotSpaced, ".")
			}
			return emit(TokDot, ".")
		case '[':
			l.next()
			return emit(TokLBracket, "[")
		case ']':
			l.next()
			return emit(TokRBracket, "]")
		case ',':
			l.next()
			return emit(TokComma, ",")
		case '$':
			l.next()
			var buf []rune
			for isIdentRune(l.peek()) {
				buf = append(buf, l.next())
			}
			return emit(TokDollarIdent, string(buf))
		case '"', '\'':
			q := l.next()
			var sb strings.Builder
			for {
				r := l.next()
				if r == 0 || r == q {
					break
				}
				if r == '\\' {
					switch nxt := l.next(); nxt {
					case 'n':
						sb.WriteRune('\n')
					case 't':
						sb.WriteRune('\t')
					case 0:
					default:
						sb.WriteRune(nxt)
					}
					continue
				}
				sb.WriteRune(r)
			}
			return emit(TokString, sb.String())
		case '-':
			// object access written as $user->name
			if l.peekAt(1) == '>' {
				l.next()
				l.next()
				return emit(TokDot, ".")
			}
		case '!':
			l.next()
			if l.peek() == '=' {
				l.next()
				return emit(TokOp, "!=")
			}
			return emit(TokNot, "!")
		case '=', '<', '>':
			l.next()
			if l.peek() == '=' {
				l.next()
				if ch == '=' && l.peek() == '=' {
					// === behaves like ==
					l.next()
				}
				return emit(TokOp, string(ch)+"=")
			}
			if ch == '=' {
				return emit(TokOther, "=")
			}
			return emit(TokOp, string(ch))
		}
		if unicode.IsDigit(ch) || (ch == '-' && unicode.IsDigit(l.peekAt(1))) {
			var buf []rune
			buf = append(buf, l.next())
			for unicode.IsDigit(l.peek()) || l.peek() == '.' {
				buf = append(buf, l.next())
			}
			return emit(TokNumber, string(buf))
		}
		if unicode.IsLetter(ch) || ch == '_' {
			var buf []rune
			for isIdentRune(l.peek()) || l.peek() == '.' {
				buf = append(buf, l.next())
			}
			return emit(TokIdent, string(buf))
		}
		if strings.ContainsRune("+-*/%", ch) {
			l.next()
			return emit(TokOp, string(ch))
		}
		l.next()
		return emit(TokOther, string(ch))
	}
}
