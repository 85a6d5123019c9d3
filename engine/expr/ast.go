package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Minimal AST node types for expressions we care about
type Expr interface{}

type Ident struct{ Name string }
type DollarIdent struct{ Name string }
type StringLit struct{ Val string }
type NumberLit struct{ Val string }

type DotAccess struct {
	Base  Expr
	Field string
}
type IndexAccess struct {
	Base Expr
	Key  Expr
}
type CallExpr struct {
	Fn   Expr
	Args []Expr
}
type PipeExpr struct {
	Left  Expr
	Right Expr
}

// BinaryExpr is a comparison or boolean operator, printed in prefix form.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

type NotExpr struct{ X Expr }

// Current represents the '.' root context in templates
type Current struct{}

// Scope tells the printer which $names are template-local variables. Every
// other $name is printed as a lookup on the root context.
type Scope interface {
	IsLocal(name string) bool
}

// Locals is a set-backed Scope.
type Locals map[string]struct{}

func (l Locals) IsLocal(name string) bool {
	_, ok := l[name]
	return ok
}

func (l Locals) Add(name string) { l[name] = struct{}{} }

var operators = map[string]string{
	"==": "eq",
	"!=": "ne",
	"<":  "lt",
	"<=": "le",
	">":  "gt",
	">=": "ge",
	"&&": "and",
	"||": "or",
	"??": "or",
}

// Helper to check for simple dollar-based variable like $name or $user.Name
func IsSimpleDollarVariable(e Expr) bool {
	cur := e
	for {
		switch v := cur.(type) {
		case *DollarIdent:
			return true
		case *DotAccess:
			cur = v.Base
			continue
		case *IndexAccess:
			cur = v.Base
			continue
		default:
			return false
		}
	}
}

// ToTemplate converts an AST Expr into a Go template pipeline. Dollar
// identifiers not declared in scope become root lookups ($x -> $.x).
func ToTemplate(e Expr, scope Scope) (string, error) {
	switch v := e.(type) {
	case *DollarIdent:
		if v.Name == "" {
			return "$", nil
		}
		if scope != nil && scope.IsLocal(v.Name) {
			return "$" + v.Name, nil
		}
		return "$." + v.Name, nil
	case *Current:
		return ".", nil
	case *Ident:
		return v.Name, nil
	case *StringLit:
		return strconv.Quote(v.Val), nil
	case *NumberLit:
		return v.Val, nil
	case *DotAccess:
		if _, ok := v.Base.(*Current); ok {
			return "." + v.Field, nil
		}
		baseS, err := Operand(v.Base, scope)
		if err != nil {
			return "", err
		}
		return baseS + "." + v.Field, nil
	case *IndexAccess:
		baseS, err := Operand(v.Base, scope)
		if err != nil {
			return "", err
		}
		keyS, err := Operand(v.Key, scope)
		if err != nil {
			return "", err
		}
		return "(index " + baseS + " " + keyS + ")", nil
	case *CallExpr:
		fnS, err := ToTemplate(v.Fn, scope)
		if err != nil {
			return "", err
		}
		parts := []string{fnS}
		for _, a := range v.Args {
			as, err := Operand(a, scope)
			if err != nil {
				return "", err
			}
			parts = append(parts, as)
		}
		return strings.Join(parts, " "), nil
	case *PipeExpr:
		leftS, err := ToTemplate(v.Left, scope)
		if err != nil {
			return "", err
		}
		rightS, err := ToTemplate(v.Right, scope)
		if err != nil {
			return "", err
		}
		return leftS + " | " + rightS, nil
	case *BinaryExpr:
		fn, ok := operators[v.Op]
		if !ok {
			return "", fmt.Errorf("unsupported operator %q", v.Op)
		}
		leftS, err := Operand(v.Left, scope)
		if err != nil {
			return "", err
		}
		rightS, err := Operand(v.Right, scope)
		if err != nil {
			return "", err
		}
		return fn + " " + leftS + " " + rightS, nil
	case *NotExpr:
		xs, err := Operand(v.X, scope)
		if err != nil {
			return "", err
		}
		return "not " + xs, nil
	default:
		return "", fmt.Errorf("unsupported expr type %T", e)
	}
}

// Operand is ToTemplate with parentheses around anything that is not a
// single term, so the result can be used as a function argument.
func Operand(e Expr, scope Scope) (string, error) {
	s, err := ToTemplate(e, scope)
	if err != nil {
		return "", err
	}
	switch e.(type) {
	case *CallExpr, *PipeExpr, *BinaryExpr, *NotExpr:
		return "(" + s + ")", nil
	}
	return s, nil
}
