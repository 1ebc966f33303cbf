package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a sealed interface for per-element update expressions.
// Only Num, Ref, Unary, Binary and Call implement it.
type Expr interface {
	expr()
	String() string
}

// Num is a numeric literal.
type Num struct {
	Value float64
}

// Ref names a variable.
type Ref struct {
	Name string
}

// Unary applies "-" (negation) or "!" (logical not) to X.
type Unary struct {
	Op string
	X  Expr
}

// Binary applies an arithmetic, comparison or logical operator.
type Binary struct {
	Op string
	X  Expr
	Y  Expr
}

// Call invokes a support-library function by name.
type Call struct {
	Func string
	Args []Expr
}

func (Num) expr()    {}
func (Ref) expr()    {}
func (Unary) expr()  {}
func (Binary) expr() {}
func (Call) expr()   {}

// BinaryOps lists the binary operators accepted in expressions.
var BinaryOps = []string{"+", "-", "*", "/", "<", "<=", ">", ">=", "==", "!=", "&&", "||"}

// AssignOps lists the assignment operators accepted in statements.
var AssignOps = []string{"=", "+=", "-=", "*=", "/="}

func (n Num) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (r Ref) String() string {
	return r.Name
}

func (u Unary) String() string {
	return u.Op + "(" + u.X.String() + ")"
}

func (b Binary) String() string {
	return "(" + b.X.String() + " " + b.Op + " " + b.Y.String() + ")"
}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Func + "(" + strings.Join(args, ", ") + ")"
}

// Statement assigns an expression to a target variable, element by element.
type Statement struct {
	Target string
	Op     string
	Expr   Expr
}

func (s Statement) String() string {
	return s.Target + " " + s.Op + " " + s.Expr.String()
}

// Expand rewrites compound assignment (+=, -=, *=, /=) into plain "=".
func (s Statement) Expand() (Statement, error) {
	switch s.Op {
	case "=":
		return s, nil
	case "+=", "-=", "*=", "/=":
		return Statement{
			Target: s.Target,
			Op:     "=",
			Expr:   Binary{Op: s.Op[:1], X: Ref{Name: s.Target}, Y: s.Expr},
		}, nil
	}
	return Statement{}, fmt.Errorf("unknown assignment operator %q", s.Op)
}

// Refs returns every variable name referenced by the statements, including
// targets, in first-seen order.
func Refs(stmts []Statement) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case Ref:
			add(e.Name)
		case Unary:
			walk(e.X)
		case Binary:
			walk(e.X)
			walk(e.Y)
		case Call:
			for _, a := range e.Args {
				walk(a)
			}
		}
	}
	for _, s := range stmts {
		add(s.Target)
		walk(s.Expr)
	}
	return names
}
