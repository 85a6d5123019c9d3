package expr

import (
	"fmt"
	"slices"
	"strings"
)

type Parser struct {
	lex *Lexer
	cur Token
}

func NewParser(input string) *Parser {
	l := NewLexer(input)
	p := &Parser{lex: l}
	p.cur = p.lex.NextToken()
	return p
}

func (p *Parser) next() Token {
	t := p.cur
	p.cur = p.lex.NextToken()
	return t
}

func (p *Parser) expect(typ TokenType) (Token, error) {
	if p.cur.Typ == typ {
		return p.next(), nil
	}
	return Token{}, fmt.Errorf("expected token %v, got %v", typ, p.cur)
}

// Parse parses the whole input; trailing tokens are an error.
func (p *Parser) Parse() (Expr, error) {
	e, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	if p.cur.Typ != TokEOF {
		return nil, fmt.Errorf("unexpected token %q after expression", p.cur.Val)
	}
	return e, nil
}

// Translate parses src and prints it as a Go template pipeline.
func Translate(src string, scope Scope) (string, error) {
	e, err := NewParser(src).Parse()
	if err != nil {
		return "", err
	}
	return ToTemplate(e, scope)
}

// TranslateOperand is Translate with the result safe to use as an argument.
func TranslateOperand(src string, scope Scope) (string, error) {
	e, err := NewParser(src).Parse()
	if err != nil {
		return "", err
	}
	return Operand(e, scope)
}

func (p *Parser) parsePipe() (Expr, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == TokPipe {
		p.next()
		right, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		left = &PipeExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseOr() (Expr, error) {
	return p.parseBinary(p.parseAnd, "||", "??")
}

func (p *Parser) parseAnd() (Expr, error) {
	return p.parseBinary(p.parseCompare, "&&")
}

func (p *Parser) parseBinary(operand func() (Expr, error), ops ...string) (Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == TokOp && slices.Contains(ops, p.cur.Val) {
		op := p.next().Val
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseCompare() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.cur.Typ == TokOp {
		switch op := p.cur.Val; op {
		case "==", "!=", "<", "<=", ">", ">=":
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &BinaryExpr{Op: op, Left: left, Right: right}, nil
		}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.cur.Typ == TokNot {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{X: x}, nil
	}
	return p.parseOperand(true)
}

func startsOperand(t Token) bool {
	switch t.Typ {
	case TokDollarIdent, TokIdent, TokString, TokNumber, TokLParen, TokDot, TokDotSpaced, TokNot:
		return true
	}
	return false
}

// parseOperand parses a single term. With allowCall, a function name or
// method followed by further terms becomes a Go-template style call.
func (p *Parser) parseOperand(allowCall bool) (Expr, error) {
	var base Expr
	switch p.cur.Typ {
	case TokDollarIdent:
		t := p.next()
		base = &DollarIdent{Name: t.Val}
	case TokIdent:
		t := p.next()
		base = &Ident{Name: t.Val}
	case TokDot, TokDotSpaced:
		p.next()
		base = &Current{}
		if p.cur.Typ == TokIdent && !p.cur.Space {
			fld := p.next().Val
			base = &DotAccess{Base: base, Field: fld}
		}
	case TokString:
		t := p.next()
		return &StringLit{Val: t.Val}, nil
	case TokNumber:
		t := p.next()
		return &NumberLit{Val: t.Val}, nil
	case TokNot:
		p.next()
		x, err := p.parseOperand(false)
		if err != nil {
			return nil, err
		}
		return &NotExpr{X: x}, nil
	case TokLParen:
		p.next()
		e, err := p.parsePipe()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("unexpected token %q", p.cur.Val)
	}

	base, err := p.parseFieldIndexChain(base)
	if err != nil {
		return nil, err
	}

	if _, isCall := base.(*CallExpr); isCall || !allowCall {
		return base, nil
	}
	switch base.(type) {
	case *Ident, *DotAccess:
	default:
		return base, nil
	}
	if !startsOperand(p.cur) {
		return base, nil
	}
	var args []Expr
	for startsOperand(p.cur) {
		arg, err := p.parseOperand(false)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return &CallExpr{Fn: base, Args: args}, nil
}

// parseArgList parses `(a, b, ...)` directly following a callee.
func (p *Parser) parseArgList() ([]Expr, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	var args []Expr
	for p.cur.Typ != TokRParen {
		if p.cur.Typ == TokEOF {
			return nil, fmt.Errorf("unterminated argument list")
		}
		arg, err := p.parsePipe()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur.Typ == TokComma {
			p.next()
		}
	}
	p.next()
	return args, nil
}

func (p *Parser) parseFieldIndexChain(base Expr) (Expr, error) {
	for {
		switch {
		case p.cur.Typ == TokDot:
			p.next()
			if p.cur.Typ != TokIdent {
				return nil, fmt.Errorf("expected ident after dot, got %v", p.cur)
			}
			fld := strings.TrimSuffix(p.next().Val, ".")
			base = &DotAccess{Base: base, Field: fld}
		case p.cur.Typ == TokLBracket:
			p.next()
			var key Expr
			switch p.cur.Typ {
			case TokString:
				key = &StringLit{Val: p.next().Val}
			case TokNumber:
				key = &NumberLit{Val: p.next().Val}
			case TokDollarIdent:
				key = &DollarIdent{Name: p.next().Val}
			case TokIdent:
				key = &Ident{Name: p.next().Val}
			default:
				return nil, fmt.Errorf("unexpected token in index: %v", p.cur)
			}
			if _, err := p.expect(TokRBracket); err != nil {
				return nil, err
			}
			base = &IndexAccess{Base: base, Key: key}
		case p.cur.Typ == TokLParen && !p.cur.Space:
			switch base.(type) {
			case *Ident, *DotAccess:
			default:
				return base, nil
			}
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			base = &CallExpr{Fn: base, Args: args}
		default:
			return base, nil
		}
	}
}
