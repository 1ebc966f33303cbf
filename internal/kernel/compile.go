package kernel

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/stepc/internal/ir"
)

// Compile lowers stmts, checked against schema, into a Program.
//
// Every referenced name must be in the schema, every assignment target must
// be a non-constant variable, and every call must name a support-library
// function with the right arity. Failures are COMPILATION_FAILURE errors.
// Schema entries the statements never mention are kept: they are part of
// the execution contract.
func Compile(stmts []ir.Statement, schema ir.Schema) (*Program, error) {
	if err := schema.Validate(); err != nil {
		return nil, ir.WrapError(ir.ErrCodeCompilationFailure, "", "invalid schema", err)
	}
	if len(stmts) == 0 {
		return nil, ir.Errorf(ir.ErrCodeCompilationFailure, "", "no statements")
	}

	vars := make(map[string]ir.Variable, len(schema))
	for _, v := range schema {
		vars[v.Name] = v
	}

	p := &Program{Kernel: KernelVersion, Schema: schema.Sorted()}
	b := newBuilder(vars, &p.Stats)
	for i, s := range stmts {
		if err := check(s, vars); err != nil {
			return nil, ir.WrapError(ir.ErrCodeCompilationFailure, s.Target,
				fmt.Sprintf("statement %d", i), err)
		}
		expanded, err := s.Expand()
		if err != nil {
			return nil, ir.WrapError(ir.ErrCodeCompilationFailure, s.Target,
				fmt.Sprintf("statement %d", i), err)
		}
		p.Source = append(p.Source, s.String())
		b.statement(expanded.Target, simplify(expanded.Expr, &p.Stats))
	}
	b.finish(p)
	return p, nil
}

// check validates names, operators and calls before any rewriting, so that
// an error is reported even inside a sub-expression that simplifies away.
func check(s ir.Statement, vars map[string]ir.Variable) error {
	t, ok := vars[s.Target]
	if !ok {
		return fmt.Errorf("unknown variable %q", s.Target)
	}
	if t.Constant {
		return fmt.Errorf("cannot assign to constant %q", s.Target)
	}
	if !slices.Contains(ir.AssignOps, s.Op) {
		return fmt.Errorf("unknown assignment operator %q", s.Op)
	}
	if s.Expr == nil {
		return fmt.Errorf("missing expression")
	}
	var walk func(ir.Expr) error
	walk = func(e ir.Expr) error {
		switch e := e.(type) {
		case ir.Num:
			return nil
		case ir.Ref:
			if _, ok := vars[e.Name]; !ok {
				return fmt.Errorf("unknown variable %q", e.Name)
			}
			return nil
		case ir.Unary:
			if _, ok := unaryOpcodes[e.Op]; !ok {
				return fmt.Errorf("unknown unary operator %q", e.Op)
			}
			return walk(e.X)
		case ir.Binary:
			if _, ok := binaryOpcodes[e.Op]; !ok {
				return fmt.Errorf("unknown operator %q", e.Op)
			}
			if err := walk(e.X); err != nil {
				return err
			}
			return walk(e.Y)
		case ir.Call:
			f, ok := LookupFunc(e.Func)
			if !ok {
				return fmt.Errorf("unknown function %q", e.Func)
			}
			if len(e.Args) != f.Arity {
				return fmt.Errorf("%s takes %d arguments, got %d", e.Func, f.Arity, len(e.Args))
			}
			for _, a := range e.Args {
				if err := walk(a); err != nil {
					return err
				}
			}
			return nil
		}
		return fmt.Errorf("unsupported expression %T", e)
	}
	return walk(s.Expr)
}

func isNum(e ir.Expr, v float64) bool {
	n, ok := e.(ir.Num)
	return ok && n.Value == v
}

// finite wraps a folded value, refusing results that cannot be written as
// a literal.
func finite(v float64) (ir.Expr, bool) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, false
	}
	return ir.Num{Value: v}, true
}

// simplify folds literal sub-expressions and applies algebraic identities,
// bottom up.
func simplify(e ir.Expr, st *Stats) ir.Expr {
	switch e := e.(type) {
	case ir.Unary:
		x := simplify(e.X, st)
		if n, ok := x.(ir.Num); ok {
			if r, ok := finite(scalarUnary[unaryOpcodes[e.Op]](n.Value)); ok {
				st.Folded++
				return r
			}
		}
		if inner, ok := x.(ir.Unary); ok && e.Op == "-" && inner.Op == "-" {
			st.Simplified++
			return inner.X
		}
		return ir.Unary{Op: e.Op, X: x}

	case ir.Binary:
		x, y := simplify(e.X, st), simplify(e.Y, st)
		nx, xok := x.(ir.Num)
		ny, yok := y.(ir.Num)
		if xok && yok {
			if r, ok := finite(scalarBinary[binaryOpcodes[e.Op]](nx.Value, ny.Value)); ok {
				st.Folded++
				return r
			}
		}
		switch e.Op {
		case "*":
			if isNum(x, 0) || isNum(y, 0) {
				st.Simplified++
				return ir.Num{Value: 0}
			}
			if isNum(x, 1) {
				st.Simplified++
				return y
			}
			if isNum(y, 1) {
				st.Simplified++
				return x
			}
		case "+":
			if isNum(x, 0) {
				st.Simplified++
				return y
			}
			if isNum(y, 0) {
				st.Simplified++
				return x
			}
		case "-":
			if isNum(y, 0) {
				st.Simplified++
				return x
			}
		case "/":
			if isNum(y, 1) {
				st.Simplified++
				return x
			}
			if isNum(x, 0) {
				st.Simplified++
				return ir.Num{Value: 0}
			}
		}
		return ir.Binary{Op: e.Op, X: x, Y: y}

	case ir.Call:
		args := make([]ir.Expr, len(e.Args))
		vals := make([]float64, len(e.Args))
		literal := true
		for i, a := range e.Args {
			args[i] = simplify(a, st)
			if n, ok := args[i].(ir.Num); ok {
				vals[i] = n.Value
			} else {
				literal = false
			}
		}
		if f, ok := LookupFunc(e.Func); ok && literal {
			if r, ok := finite(f.Eval(vals...)); ok {
				st.Folded++
				return r
			}
		}
		return ir.Call{Func: e.Func, Args: args}
	}
	return e
}

// operand is a lowered value: a scalar register (loop-invariant) or a
// vector register.
type operand struct {
	scalar bool
	reg    int
}

// builder lowers simplified statements into SSA registers. Vector register
// numbers are virtual until finish allocates physical registers.
type builder struct {
	vars  map[string]ir.Variable
	stats *Stats

	scalars []Instr
	splats  []Instr
	body    []Instr
	nextS   int
	nextV   int

	scalarCSE map[string]int
	vectorCSE map[string]int
	splatOf   map[int]int    // scalar reg -> splat vector reg
	current   map[string]int // variable -> vector reg holding its current value
}

func newBuilder(vars map[string]ir.Variable, st *Stats) *builder {
	return &builder{
		vars:      vars,
		stats:     st,
		scalarCSE: make(map[string]int),
		vectorCSE: make(map[string]int),
		splatOf:   make(map[int]int),
		current:   make(map[string]int),
	}
}

func cseKey(in Instr) string {
	var b strings.Builder
	b.WriteString(in.Op)
	switch in.Op {
	case OpConst:
		b.WriteString(" " + strconv.FormatFloat(in.Value, 'x', -1, 64))
	case OpParam:
		b.WriteString(" " + in.Var)
	case OpCall:
		b.WriteString(" " + in.Func)
	}
	for _, a := range in.Args {
		b.WriteString(" " + strconv.Itoa(a))
	}
	return b.String()
}

func (b *builder) scalar(in Instr) int {
	key := cseKey(in)
	if r, ok := b.scalarCSE[key]; ok {
		if in.Op != OpConst && in.Op != OpParam {
			b.stats.Reused++
		}
		return r
	}
	in.Dst = b.nextS
	b.nextS++
	if in.Op != OpConst && in.Op != OpParam {
		b.stats.Hoisted++
	}
	b.scalars = append(b.scalars, in)
	b.scalarCSE[key] = in.Dst
	return in.Dst
}

func (b *builder) vector(in Instr) int {
	key := cseKey(in)
	if r, ok := b.vectorCSE[key]; ok {
		b.stats.Reused++
		return r
	}
	in.Dst = b.nextV
	b.nextV++
	b.body = append(b.body, in)
	b.vectorCSE[key] = in.Dst
	return in.Dst
}

func (b *builder) splat(sreg int) int {
	if r, ok := b.splatOf[sreg]; ok {
		return r
	}
	r := b.nextV
	b.nextV++
	b.splats = append(b.splats, Instr{Op: OpSplat, Dst: r, Args: []int{sreg}})
	b.splatOf[sreg] = r
	return r
}

func (b *builder) load(name string) int {
	if r, ok := b.current[name]; ok {
		return r
	}
	r := b.nextV
	b.nextV++
	b.body = append(b.body, Instr{Op: OpLoad, Dst: r, Var: name})
	b.current[name] = r
	return r
}

func (b *builder) expr(e ir.Expr) operand {
	switch e := e.(type) {
	case ir.Num:
		return operand{scalar: true, reg: b.scalar(Instr{Op: OpConst, Value: e.Value})}
	case ir.Ref:
		if b.vars[e.Name].Constant {
			return operand{scalar: true, reg: b.scalar(Instr{Op: OpParam, Var: e.Name})}
		}
		return operand{reg: b.load(e.Name)}
	case ir.Unary:
		return b.apply(Instr{Op: unaryOpcodes[e.Op]}, e.X)
	case ir.Binary:
		return b.apply(Instr{Op: binaryOpcodes[e.Op]}, e.X, e.Y)
	case ir.Call:
		return b.apply(Instr{Op: OpCall, Func: e.Func}, e.Args...)
	}
	panic(fmt.Sprintf("kernel: unchecked expression %T", e))
}

// apply lowers an operation. If every operand is loop-invariant the
// operation is hoisted into the prologue.
func (b *builder) apply(in Instr, args ...ir.Expr) operand {
	ops := make([]operand, len(args))
	invariant := true
	for i, a := range args {
		ops[i] = b.expr(a)
		invariant = invariant && ops[i].scalar
	}
	in.Args = make([]int, len(ops))
	if invariant {
		for i, o := range ops {
			in.Args[i] = o.reg
		}
		return operand{scalar: true, reg: b.scalar(in)}
	}
	for i, o := range ops {
		if o.scalar {
			in.Args[i] = b.splat(o.reg)
		} else {
			in.Args[i] = o.reg
		}
	}
	return operand{reg: b.vector(in)}
}

func (b *builder) statement(target string, e ir.Expr) {
	val := b.expr(e)
	reg := val.reg
	if val.scalar {
		reg = b.splat(reg)
	}
	b.body = append(b.body, Instr{Op: OpStore, Dst: -1, Var: target, Args: []int{reg}})

	// A float64 store round-trips exactly, so later reads can use the
	// register. Other types convert on store and must be reloaded.
	if b.vars[target].Type == ir.Float64 {
		b.current[target] = reg
	} else {
		delete(b.current, target)
	}
}

// finish assigns physical vector registers and fills p. Splat registers
// come first and live for the whole body; body registers are reused as
// soon as their last reader has run.
func (b *builder) finish(p *Program) {
	phys := make(map[int]int, b.nextV)
	pinned := make(map[int]bool, len(b.splats))
	for i, in := range b.splats {
		phys[in.Dst] = i
		pinned[in.Dst] = true
	}

	last := make(map[int]int)
	for i, in := range b.body {
		for _, a := range in.Args {
			last[a] = i
		}
	}

	var free []int
	next := len(b.splats)
	take := func() int {
		if len(free) > 0 {
			r := free[0]
			free = free[1:]
			return r
		}
		r := next
		next++
		return r
	}
	release := func(r int) {
		i, _ := slices.BinarySearch(free, r)
		free = slices.Insert(free, i, r)
	}

	body := make([]Instr, len(b.body))
	for i, in := range b.body {
		out := in
		if len(in.Args) > 0 {
			out.Args = make([]int, len(in.Args))
			for j, a := range in.Args {
				out.Args[j] = phys[a]
			}
		}
		for j, a := range in.Args {
			if pinned[a] || last[a] != i || slices.Contains(in.Args[:j], a) {
				continue
			}
			release(phys[a])
		}
		if in.Op != OpStore {
			out.Dst = take()
			phys[in.Dst] = out.Dst
		}
		body[i] = out
	}

	splats := make([]Instr, len(b.splats))
	for i, in := range b.splats {
		splats[i] = Instr{Op: OpSplat, Dst: i, Args: in.Args}
	}

	p.Scalars = b.scalars
	p.Splats = splats
	p.Body = body
	p.ScalarRegs = b.nextS
	p.VectorRegs = next
}
