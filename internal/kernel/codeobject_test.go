package kernel

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepc/internal/buffer"
	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/vartable"
)

type fixture struct {
	table *vartable.Table
	v, I  *buffer.Buffer
	v0    []float64
}

// newLeaky binds v (growable) and I (fixed) of length n with random
// contents, plus dt = 0.1 and tau = 10.
func newLeaky(t *testing.T, n int) *fixture {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))

	v, err := buffer.New(ir.Float64, n)
	require.NoError(t, err)
	I, err := buffer.New(ir.Float64, n, buffer.WithFixedSize())
	require.NoError(t, err)
	vs, is := buffer.MustView[float64](v), buffer.MustView[float64](I)
	for i := range vs {
		vs[i] = rng.Float64() * 2
		is[i] = rng.Float64() * 5
	}

	tbl := vartable.New()
	require.NoError(t, tbl.BindBuffer("v", v))
	require.NoError(t, tbl.BindBuffer("I", I))
	require.NoError(t, tbl.BindConstant("dt", ir.Float64, 0.1))
	require.NoError(t, tbl.BindConstant("tau", ir.Float64, 10))
	return &fixture{table: tbl, v: v, I: I, v0: append([]float64(nil), vs...)}
}

func link(t *testing.T, stmts []ir.Statement, schema ir.Schema, opts ...LinkOption) *CodeObject {
	t.Helper()
	p, err := Compile(stmts, schema)
	require.NoError(t, err)
	co, err := Link(p, opts...)
	require.NoError(t, err)
	return co
}

func TestExecute_LeakyIntegrator(t *testing.T) {
	f := newLeaky(t, 100)
	co := link(t, []ir.Statement{leakyStatement()}, leakySchema())

	am := f.table.Refresh()
	require.NoError(t, co.Execute(am, 100))

	vs, is := buffer.MustView[float64](f.v), buffer.MustView[float64](f.I)
	for i := range vs {
		want := f.v0[i] + 0.1*(is[i]-f.v0[i])/10
		assert.InDelta(t, want, vs[i], 1e-12, "index %d", i)
	}
}

func TestExecute_PartialBoundLeavesTailUntouched(t *testing.T) {
	f := newLeaky(t, 1000)
	co := link(t, []ir.Statement{assign("v", num(-1))}, leakySchema())

	require.NoError(t, co.Execute(f.table.Refresh(), 700))

	vs := buffer.MustView[float64](f.v)
	for i := 0; i < 700; i++ {
		require.Equal(t, -1.0, vs[i])
	}
	assert.Equal(t, f.v0[700:], vs[700:])
}

func TestExecute_StatementsSeeEarlierAssignments(t *testing.T) {
	f := newLeaky(t, 300)
	stmts := []ir.Statement{
		{Target: "v", Op: "+=", Expr: num(1)},
		assign("I", bin("*", ref("v"), num(2))),
	}
	co := link(t, stmts, leakySchema())
	require.NoError(t, co.Execute(f.table.Refresh(), 300))

	vs, is := buffer.MustView[float64](f.v), buffer.MustView[float64](f.I)
	for i := range vs {
		assert.Equal(t, f.v0[i]+1, vs[i])
		assert.Equal(t, (f.v0[i]+1)*2, is[i])
	}
}

func TestExecute_ConvertsElementTypes(t *testing.T) {
	n, err := buffer.New(ir.Int32, 0)
	require.NoError(t, err)
	require.NoError(t, buffer.Append[int32](n, 1, -3, 10))
	x, err := buffer.New(ir.Float64, 3)
	require.NoError(t, err)
	flag, err := buffer.New(ir.Bool, 3)
	require.NoError(t, err)

	tbl := vartable.New()
	require.NoError(t, tbl.BindBuffer("n", n))
	require.NoError(t, tbl.BindBuffer("x", x))
	require.NoError(t, tbl.BindBuffer("flag", flag))

	schema, err := tbl.Schema()
	require.NoError(t, err)
	co := link(t, []ir.Statement{
		assign("n", bin("+", ref("n"), num(1.7))),
		assign("x", ref("n")),
		assign("flag", bin(">", ref("n"), num(0))),
	}, schema)
	require.NoError(t, co.Execute(tbl.Refresh(), 3))

	assert.Equal(t, []int32{2, -1, 11}, buffer.MustView[int32](n))
	assert.Equal(t, []float64{2, -1, 11}, buffer.MustView[float64](x))
	assert.Equal(t, []bool{true, false, true}, buffer.MustView[bool](flag))
}

func TestExecute_SupportLibrary(t *testing.T) {
	f := newLeaky(t, 50)
	stmts := []ir.Statement{
		assign("I", bin("+",
			call("clip", bin("*", call("exp", ref("v")), call("sqrt", ref("v"))), num(0), num(10)),
			call("where", bin("<", ref("v"), num(1)), call("pow", ref("v"), num(2)), call("tanh", ref("dt"))))),
	}
	co := link(t, stmts, leakySchema())
	require.NoError(t, co.Execute(f.table.Refresh(), 50))

	is := buffer.MustView[float64](f.I)
	for i, v := range f.v0 {
		want := math.Min(math.Max(math.Exp(v)*math.Sqrt(v), 0), 10)
		if v < 1 {
			want += math.Pow(v, 2)
		} else {
			want += math.Tanh(0.1)
		}
		assert.InDelta(t, want, is[i], 1e-12)
	}
}

func TestExecute_ReadsConstantsAtExecution(t *testing.T) {
	f := newLeaky(t, 10)
	co := link(t, []ir.Statement{assign("v", bin("*", ref("dt"), ref("tau")))}, leakySchema())

	require.NoError(t, f.table.SetConstant("dt", 0.5))
	require.NoError(t, co.Execute(f.table.Refresh(), 10))
	assert.Equal(t, 5.0, buffer.MustView[float64](f.v)[0])
}

func TestExecute_RejectsStaleAddressMap(t *testing.T) {
	f := newLeaky(t, 100)
	co := link(t, []ir.Statement{leakyStatement()}, leakySchema())

	am := f.table.Refresh()
	require.NoError(t, buffer.Append(f.v, make([]float64, 50)...))

	err := co.Execute(am, 100)
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.ErrCodeStaleAddressMap))

	// The refreshed map is accepted; the bound is still capped by I.
	am = f.table.Refresh()
	bound, err := co.Bound(am)
	require.NoError(t, err)
	assert.Equal(t, 100, bound)
	assert.NoError(t, co.Execute(am, bound))
}

func TestExecute_SchemaMismatch(t *testing.T) {
	co := link(t, []ir.Statement{leakyStatement()}, leakySchema())

	tests := []struct {
		name  string
		bound int
		mut   func(t *testing.T, tbl *vartable.Table)
	}{
		{name: "bound above shortest buffer", bound: 101},
		{name: "negative bound", bound: -1},
		{name: "missing variable", bound: 10, mut: func(t *testing.T, tbl *vartable.Table) {
			require.NoError(t, tbl.Unbind("tau"))
		}},
		{name: "type changed", bound: 10, mut: func(t *testing.T, tbl *vartable.Table) {
			require.NoError(t, tbl.Unbind("I"))
			i32, err := buffer.New(ir.Int32, 100)
			require.NoError(t, err)
			require.NoError(t, tbl.BindBuffer("I", i32))
		}},
		{name: "constness changed", bound: 10, mut: func(t *testing.T, tbl *vartable.Table) {
			require.NoError(t, tbl.Unbind("dt"))
			dt, err := buffer.New(ir.Float64, 100)
			require.NoError(t, err)
			require.NoError(t, tbl.BindBuffer("dt", dt))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLeaky(t, 100)
			if tt.mut != nil {
				tt.mut(t, f.table)
			}
			err := co.Execute(f.table.Refresh(), tt.bound)
			require.Error(t, err)
			assert.True(t, ir.IsCode(err, ir.ErrCodeSchemaMismatch), "got %v", err)
			assert.Equal(t, f.v0, buffer.MustView[float64](f.v), "nothing is written")
		})
	}
}

func TestExecute_ZeroBound(t *testing.T) {
	v, err := buffer.New(ir.Float64, 0)
	require.NoError(t, err)
	tbl := vartable.New()
	require.NoError(t, tbl.BindBuffer("v", v))

	co := link(t, []ir.Statement{assign("v", num(1))}, ir.Schema{{Name: "v", Type: ir.Float64, Volatile: true}})
	assert.NoError(t, co.Execute(tbl.Refresh(), 0))
}

func TestExecute_ParallelMatchesSequential(t *testing.T) {
	n := 3*ParallelThreshold + 17
	seq, par := newLeaky(t, n), newLeaky(t, n)

	stmts := []ir.Statement{leakyStatement(), assign("I", call("abs", bin("-", ref("I"), ref("v"))))}
	coSeq := link(t, stmts, leakySchema())
	coPar := link(t, stmts, leakySchema(), WithWorkers(4))

	require.NoError(t, coSeq.Execute(seq.table.Refresh(), n))
	require.NoError(t, coPar.Execute(par.table.Refresh(), n))

	assert.Equal(t, buffer.MustView[float64](seq.v), buffer.MustView[float64](par.v))
	assert.Equal(t, buffer.MustView[float64](seq.I), buffer.MustView[float64](par.I))
}

func TestExecute_ConcurrentCallers(t *testing.T) {
	co := link(t, []ir.Statement{leakyStatement()}, leakySchema())

	fixtures := make([]*fixture, 8)
	for i := range fixtures {
		fixtures[i] = newLeaky(t, 2000)
	}
	done := make(chan error, len(fixtures))
	for _, f := range fixtures {
		go func() { done <- co.Execute(f.table.Refresh(), 2000) }()
	}
	for range fixtures {
		require.NoError(t, <-done)
	}
	for _, f := range fixtures {
		vs, is := buffer.MustView[float64](f.v), buffer.MustView[float64](f.I)
		for i := range vs {
			require.InDelta(t, f.v0[i]+0.1*(is[i]-f.v0[i])/10, vs[i], 1e-12)
		}
	}
}

func TestLink_RejectsInvalidProgram(t *testing.T) {
	_, err := Link(nil)
	assert.True(t, ir.IsCode(err, ir.ErrCodeCompilationFailure))

	_, err = Link(&Program{Kernel: "99"})
	assert.True(t, ir.IsCode(err, ir.ErrCodeCompilationFailure))
}

func TestToolchainID(t *testing.T) {
	id := ToolchainID()
	assert.Contains(t, id, "stepc-kernel/"+KernelVersion+"/")
}
