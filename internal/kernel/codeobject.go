package kernel

import (
	"math"
	"strconv"
	"sync"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/vartable"
)

// scratch is per-goroutine execution state: register files plus the
// addresses and constant values resolved from one address map.
type scratch struct {
	s     []float64
	v     [][]float64
	addrs []unsafe.Pointer
	vals  []float64
}

type scalarOp func(sc *scratch)

type vectorOp func(sc *scratch, off, n int)

// CodeObject is a linked, executable Program. It is immutable and may be
// executed from several goroutines at once against disjoint buffers.
type CodeObject struct {
	prog    *Program
	workers int

	scalars []scalarOp
	splats  [][2]int // {vector dst, scalar src}
	body    []vectorOp

	pool sync.Pool
}

// LinkOption configures a CodeObject.
type LinkOption func(*CodeObject)

// WithWorkers lets Execute split loop bounds of at least ParallelThreshold
// across k goroutines. Splitting is sound because distinct variables never
// share memory.
func WithWorkers(k int) LinkOption {
	return func(co *CodeObject) {
		if k > 0 {
			co.workers = k
		}
	}
}

// Link binds p's instructions to typed loops and support-library functions.
func Link(p *Program, opts ...LinkOption) (*CodeObject, error) {
	if p == nil {
		return nil, ir.Errorf(ir.ErrCodeCompilationFailure, "", "link: nil program")
	}
	if err := p.Validate(); err != nil {
		return nil, ir.WrapError(ir.ErrCodeCompilationFailure, "", "link", err)
	}
	co := &CodeObject{prog: p, workers: 1}
	for _, opt := range opts {
		opt(co)
	}

	slot := make(map[string]int, len(p.Schema))
	for i, v := range p.Schema {
		slot[v.Name] = i
	}

	for _, in := range p.Scalars {
		co.scalars = append(co.scalars, linkScalar(in, slot))
	}
	for _, in := range p.Splats {
		co.splats = append(co.splats, [2]int{in.Dst, in.Args[0]})
	}
	for _, in := range p.Body {
		co.body = append(co.body, linkVector(in, slot, p.Schema))
	}

	co.pool.New = func() any {
		sc := &scratch{
			s:     make([]float64, p.ScalarRegs),
			v:     make([][]float64, p.VectorRegs),
			addrs: make([]unsafe.Pointer, len(p.Schema)),
			vals:  make([]float64, len(p.Schema)),
		}
		for i := range sc.v {
			sc.v[i] = make([]float64, BlockSize)
		}
		return sc
	}
	return co, nil
}

func linkScalar(in Instr, slot map[string]int) scalarOp {
	dst := in.Dst
	switch in.Op {
	case OpConst:
		v := in.Value
		return func(sc *scratch) { sc.s[dst] = v }
	case OpParam:
		i := slot[in.Var]
		return func(sc *scratch) { sc.s[dst] = sc.vals[i] }
	case OpNeg, OpNot:
		f, a := scalarUnary[in.Op], in.Args[0]
		return func(sc *scratch) { sc.s[dst] = f(sc.s[a]) }
	case OpCall:
		f, _ := LookupFunc(in.Func)
		args := in.Args
		return func(sc *scratch) { sc.s[dst] = f.evalRegs(sc.s, args) }
	default:
		f, a, b := scalarBinary[in.Op], in.Args[0], in.Args[1]
		return func(sc *scratch) { sc.s[dst] = f(sc.s[a], sc.s[b]) }
	}
}

func linkVector(in Instr, slot map[string]int, schema ir.Schema) vectorOp {
	dst := in.Dst
	switch in.Op {
	case OpLoad:
		i := slot[in.Var]
		load := loaderFor(schema[i].Type)
		return func(sc *scratch, off, n int) { load(sc.v[dst][:n], sc.addrs[i], off) }
	case OpStore:
		i, src := slot[in.Var], in.Args[0]
		store := storerFor(schema[i].Type)
		return func(sc *scratch, off, n int) { store(sc.addrs[i], off, sc.v[src][:n]) }
	case OpNeg, OpNot:
		k, a := vectorUnary[in.Op], in.Args[0]
		return func(sc *scratch, _, n int) { k(sc.v[dst][:n], sc.v[a]) }
	case OpCall:
		f, _ := LookupFunc(in.Func)
		args := in.Args
		return func(sc *scratch, _, n int) {
			var buf [3][]float64
			for j, r := range args {
				buf[j] = sc.v[r]
			}
			f.vector(sc.v[dst][:n], buf[:len(args)])
		}
	default:
		k, a, b := vectorBinary[in.Op], in.Args[0], in.Args[1]
		return func(sc *scratch, _, n int) { k(sc.v[dst][:n], sc.v[a], sc.v[b]) }
	}
}

// Program returns the program the code object was linked from.
func (co *CodeObject) Program() *Program { return co.prog }

// Schema returns the variables the code object was compiled against,
// sorted by name.
func (co *CodeObject) Schema() ir.Schema { return co.prog.Schema }

// Bound returns the largest loop bound am admits: the shortest buffer among
// the schema's non-constant variables.
func (co *CodeObject) Bound(am *vartable.AddressMap) (int, error) {
	if err := am.Validate(); err != nil {
		return 0, err
	}
	return co.check(am)
}

// check verifies am against the schema and returns the shortest buffer.
func (co *CodeObject) check(am *vartable.AddressMap) (int, error) {
	shortest := math.MaxInt
	for _, v := range co.prog.Schema {
		s, ok := am.Get(v.Name)
		if !ok {
			return 0, ir.Errorf(ir.ErrCodeSchemaMismatch, v.Name, "variable %q missing from address map", v.Name)
		}
		if s.Type != v.Type {
			return 0, ir.Errorf(ir.ErrCodeSchemaMismatch, v.Name,
				"variable %q is %s, compiled for %s", v.Name, s.Type, v.Type)
		}
		if s.Constant != v.Constant {
			return 0, ir.Errorf(ir.ErrCodeSchemaMismatch, v.Name,
				"variable %q constness changed since compilation", v.Name)
		}
		if !v.Constant && s.Len < shortest {
			shortest = s.Len
		}
	}
	if shortest == math.MaxInt {
		shortest = 0
	}
	return shortest, nil
}

// Execute applies the compiled update to indices [0, n) of the buffers in
// am. am must come from the most recent Refresh of its table.
func (co *CodeObject) Execute(am *vartable.AddressMap, n int) error {
	if err := am.Validate(); err != nil {
		return err
	}
	shortest, err := co.check(am)
	if err != nil {
		return err
	}
	if n < 0 || n > shortest {
		return &ir.Error{
			Code:    ir.ErrCodeSchemaMismatch,
			Message: "loop bound exceeds the shortest buffer",
			Details: map[string]string{
				"bound":    strconv.Itoa(n),
				"shortest": strconv.Itoa(shortest),
			},
		}
	}
	if n == 0 {
		return nil
	}

	if co.workers <= 1 || n < ParallelThreshold {
		sc := co.acquire(am)
		co.run(sc, 0, n)
		co.release(sc)
		return nil
	}

	chunk := (n + co.workers - 1) / co.workers
	chunk = (chunk + BlockSize - 1) / BlockSize * BlockSize
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			sc := co.acquire(am)
			co.run(sc, lo, hi)
			co.release(sc)
			return nil
		})
	}
	return g.Wait()
}

// acquire takes a scratch from the pool and runs the prologue against am.
func (co *CodeObject) acquire(am *vartable.AddressMap) *scratch {
	sc := co.pool.Get().(*scratch)
	for i, v := range co.prog.Schema {
		s, _ := am.Get(v.Name)
		sc.addrs[i] = s.Addr
		sc.vals[i] = s.Value
	}
	for _, op := range co.scalars {
		op(sc)
	}
	for _, sp := range co.splats {
		x, d := sc.s[sp[1]], sc.v[sp[0]]
		for i := range d {
			d[i] = x
		}
	}
	return sc
}

func (co *CodeObject) release(sc *scratch) {
	clear(sc.addrs)
	co.pool.Put(sc)
}

func (co *CodeObject) run(sc *scratch, lo, hi int) {
	for off := lo; off < hi; off += BlockSize {
		n := min(BlockSize, hi-off)
		for _, op := range co.body {
			op(sc, off, n)
		}
	}
}
