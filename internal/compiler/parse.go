package compiler

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strconv"

	"github.com/roach88/stepc/internal/ir"
)

// ParseError reports a malformed statement or expression.
type ParseError struct {
	Source  string
	Col     int // 1-based; 0 if unknown
	Message string
}

func (e *ParseError) Error() string {
	if e.Col > 0 {
		return fmt.Sprintf("%q col %d: %s", e.Source, e.Col, e.Message)
	}
	return fmt.Sprintf("%q: %s", e.Source, e.Message)
}

// Statements are Go assignment statements over identifiers, so the Go
// parser does the tokenizing. The wrapper puts src alone on line 3.
const (
	wrapPrefix = "package p\nfunc _() {\n"
	wrapLine   = 3
)

// ParseStatement parses "target op expr" where op is one of =, +=, -=, *=,
// /=. Expressions use Go syntax: numeric literals, identifiers, the
// operators + - * / < <= > >= == != && || ! and unary -, parentheses, and
// calls to support-library functions. true and false are 1 and 0.
func ParseStatement(src string) (ir.Statement, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", wrapPrefix+src+"\n}\n", 0)
	if err != nil {
		return ir.Statement{}, wrapParseError(src, err)
	}
	if len(f.Decls) != 1 {
		return ir.Statement{}, &ParseError{Source: src, Message: "expected exactly one statement"}
	}
	body := f.Decls[0].(*ast.FuncDecl).Body.List
	if len(body) != 1 {
		return ir.Statement{}, &ParseError{Source: src, Message: "expected exactly one statement"}
	}
	as, ok := body[0].(*ast.AssignStmt)
	if !ok {
		return ir.Statement{}, &ParseError{Source: src, Message: "expected an assignment"}
	}
	if len(as.Lhs) != 1 || len(as.Rhs) != 1 {
		return ir.Statement{}, &ParseError{Source: src, Col: col(fset, as.Pos()), Message: "multiple assignment is not supported"}
	}
	target, ok := as.Lhs[0].(*ast.Ident)
	if !ok {
		return ir.Statement{}, &ParseError{Source: src, Col: col(fset, as.Lhs[0].Pos()), Message: "assignment target must be a variable name"}
	}

	var op string
	switch as.Tok {
	case token.ASSIGN:
		op = "="
	case token.ADD_ASSIGN, token.SUB_ASSIGN, token.MUL_ASSIGN, token.QUO_ASSIGN:
		op = as.Tok.String()
	default:
		return ir.Statement{}, &ParseError{Source: src, Col: col(fset, as.TokPos), Message: fmt.Sprintf("unsupported assignment operator %s", as.Tok)}
	}

	p := &exprParser{src: src, fset: fset}
	expr, err := p.convert(as.Rhs[0])
	if err != nil {
		return ir.Statement{}, err
	}
	return ir.Statement{Target: target.Name, Op: op, Expr: expr}, nil
}

// ParseStatements parses each line of srcs in order.
func ParseStatements(srcs []string) ([]ir.Statement, error) {
	stmts := make([]ir.Statement, 0, len(srcs))
	for i, src := range srcs {
		s, err := ParseStatement(src)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

// ParseExpr parses a single expression.
func ParseExpr(src string) (ir.Expr, error) {
	fset := token.NewFileSet()
	e, err := parser.ParseExprFrom(fset, "", src, 0)
	if err != nil {
		return nil, wrapParseError(src, err)
	}
	p := &exprParser{src: src, fset: fset, exprOnly: true}
	return p.convert(e)
}

type exprParser struct {
	src      string
	fset     *token.FileSet
	exprOnly bool
}

func (p *exprParser) errorf(pos token.Pos, format string, args ...any) error {
	c := p.fset.Position(pos).Column
	if !p.exprOnly {
		c = col(p.fset, pos)
	}
	return &ParseError{Source: p.src, Col: c, Message: fmt.Sprintf(format, args...)}
}

var binaryTokens = map[token.Token]string{
	token.ADD:  "+",
	token.SUB:  "-",
	token.MUL:  "*",
	token.QUO:  "/",
	token.LSS:  "<",
	token.LEQ:  "<=",
	token.GTR:  ">",
	token.GEQ:  ">=",
	token.EQL:  "==",
	token.NEQ:  "!=",
	token.LAND: "&&",
	token.LOR:  "||",
}

func (p *exprParser) convert(e ast.Expr) (ir.Expr, error) {
	switch e := e.(type) {
	case *ast.BasicLit:
		return p.literal(e)

	case *ast.Ident:
		switch e.Name {
		case "true":
			return ir.Num{Value: 1}, nil
		case "false":
			return ir.Num{Value: 0}, nil
		}
		return ir.Ref{Name: e.Name}, nil

	case *ast.ParenExpr:
		return p.convert(e.X)

	case *ast.UnaryExpr:
		x, err := p.convert(e.X)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return ir.Unary{Op: "-", X: x}, nil
		case token.NOT:
			return ir.Unary{Op: "!", X: x}, nil
		}
		return nil, p.errorf(e.OpPos, "unsupported unary operator %s", e.Op)

	case *ast.BinaryExpr:
		op, ok := binaryTokens[e.Op]
		if !ok {
			return nil, p.errorf(e.OpPos, "unsupported operator %s", e.Op)
		}
		x, err := p.convert(e.X)
		if err != nil {
			return nil, err
		}
		y, err := p.convert(e.Y)
		if err != nil {
			return nil, err
		}
		return ir.Binary{Op: op, X: x, Y: y}, nil

	case *ast.CallExpr:
		fn, ok := e.Fun.(*ast.Ident)
		if !ok {
			return nil, p.errorf(e.Fun.Pos(), "function must be a plain name")
		}
		if e.Ellipsis.IsValid() {
			return nil, p.errorf(e.Ellipsis, "variadic calls are not supported")
		}
		args := make([]ir.Expr, len(e.Args))
		for i, a := range e.Args {
			x, err := p.convert(a)
			if err != nil {
				return nil, err
			}
			args[i] = x
		}
		return ir.Call{Func: fn.Name, Args: args}, nil
	}
	return nil, p.errorf(e.Pos(), "unsupported expression")
}

func (p *exprParser) literal(lit *ast.BasicLit) (ir.Expr, error) {
	switch lit.Kind {
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, p.errorf(lit.Pos(), "bad integer literal %s", lit.Value)
		}
		return ir.Num{Value: float64(n)}, nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, p.errorf(lit.Pos(), "bad float literal %s", lit.Value)
		}
		return ir.Num{Value: f}, nil
	}
	return nil, p.errorf(lit.Pos(), "unsupported literal %s", lit.Value)
}

// col maps a position in the wrapped source back to a column in src.
func col(fset *token.FileSet, pos token.Pos) int {
	if !pos.IsValid() {
		return 0
	}
	if p := fset.Position(pos); p.Line == wrapLine {
		return p.Column
	}
	return 0
}

func wrapParseError(src string, err error) error {
	if list, ok := err.(scanner.ErrorList); ok && len(list) > 0 {
		first := list[0]
		c := first.Pos.Column
		if first.Pos.Line != 1 && first.Pos.Line != wrapLine {
			c = 0
		}
		return &ParseError{Source: src, Col: c, Message: first.Msg}
	}
	return &ParseError{Source: src, Message: err.Error()}
}
