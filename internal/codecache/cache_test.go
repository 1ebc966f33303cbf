package codecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/kernel"
	"github.com/roach88/stepc/internal/store"
)

var schema = ir.Schema{
	{Name: "v", Type: ir.Float64, Volatile: true},
	{Name: "dt", Type: ir.Float64, Constant: true},
}

// scale returns v = v * (dt + k).
func scale(k float64) []ir.Statement {
	return []ir.Statement{{
		Target: "v",
		Op:     "=",
		Expr:   ir.Binary{Op: "*", X: ir.Ref{Name: "v"}, Y: ir.Binary{Op: "+", X: ir.Ref{Name: "dt"}, Y: ir.Num{Value: k}}},
	}}
}

func keyOf(stmts []ir.Statement) ir.Key {
	return ir.MustFingerprint(stmts, schema, kernel.ToolchainID())
}

// counting returns a CompileFunc for stmts that counts its calls.
func counting(stmts []ir.Statement, calls *atomic.Int32) CompileFunc {
	return func(context.Context) (*kernel.Program, error) {
		calls.Add(1)
		return kernel.Compile(stmts, schema)
	}
}

func TestGetOrCompile_HitAfterMiss(t *testing.T) {
	ctx := context.Background()
	c := New()
	stmts := scale(1)
	key := keyOf(stmts)

	var calls atomic.Int32
	co1, err := c.GetOrCompile(ctx, key, counting(stmts, &calls))
	require.NoError(t, err)
	co2, err := c.GetOrCompile(ctx, key, counting(stmts, &calls))
	require.NoError(t, err)

	assert.Same(t, co1, co2)
	assert.True(t, c.IsCached(key))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Compiles: 1}, c.Stats())
}

func TestGetOrCompile_ConcurrentSameKeyCompilesOnce(t *testing.T) {
	ctx := context.Background()
	c := New()
	stmts := scale(2)
	key := keyOf(stmts)

	var calls atomic.Int32
	compile := func(ctx context.Context) (*kernel.Program, error) {
		time.Sleep(20 * time.Millisecond)
		return counting(stmts, &calls)(ctx)
	}

	const n = 32
	results := make([]*kernel.CodeObject, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			co, err := c.GetOrCompile(ctx, key, compile)
			assert.NoError(t, err)
			results[i] = co
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i], "caller %d got a different code object", i)
	}
	s := c.Stats()
	assert.Equal(t, int64(n), s.Hits+s.Misses)
	assert.Equal(t, int64(1), s.Compiles)
}

func TestGetOrCompile_DistinctKeysDoNotBlock(t *testing.T) {
	ctx := context.Background()
	c := New()

	slowStarted := make(chan struct{})
	release := make(chan struct{})
	slow := scale(1)
	go func() {
		_, _ = c.GetOrCompile(ctx, keyOf(slow), func(context.Context) (*kernel.Program, error) {
			close(slowStarted)
			<-release
			return kernel.Compile(slow, schema)
		})
	}()
	<-slowStarted

	var calls atomic.Int32
	fast := scale(2)
	_, err := c.GetOrCompile(ctx, keyOf(fast), counting(fast, &calls))
	require.NoError(t, err)
	assert.True(t, c.IsCached(keyOf(fast)))
	assert.False(t, c.IsCached(keyOf(slow)))

	close(release)
	require.Eventually(t, func() bool { return c.IsCached(keyOf(slow)) }, time.Second, time.Millisecond)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrCompile_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := New()
	stmts := scale(3)
	key := keyOf(stmts)
	boom := errors.New("boom")

	_, err := c.GetOrCompile(ctx, key, func(context.Context) (*kernel.Program, error) {
		return nil, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsCompilationFailure(err))
	assert.False(t, c.IsCached(key))
	assert.Equal(t, 0, c.Len())

	// A later call compiles again and succeeds.
	var calls atomic.Int32
	co, err := c.GetOrCompile(ctx, key, counting(stmts, &calls))
	require.NoError(t, err)
	assert.NotNil(t, co)
	assert.Equal(t, int32(1), calls.Load())

	s := c.Stats()
	assert.Equal(t, int64(1), s.Failures)
	assert.Equal(t, int64(2), s.Compiles)
}

func TestGetOrCompile_FailureReachesEveryWaiter(t *testing.T) {
	ctx := context.Background()
	c := New()
	key := keyOf(scale(4))

	var calls atomic.Int32
	compile := func(context.Context) (*kernel.Program, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return nil, errors.New("boom")
	}

	const n = 16
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrCompile(ctx, key, compile)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.True(t, IsCompilationFailure(err), "got %v", err)
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.LessOrEqual(t, calls.Load(), int32(n))
	assert.False(t, c.IsCached(key))
}

func TestGetOrCompile_KeepsCompilerErrorCode(t *testing.T) {
	bad := []ir.Statement{{Target: "v", Op: "=", Expr: ir.Ref{Name: "nope"}}}
	c := New()
	_, err := c.GetOrCompile(context.Background(), keyOf(bad), func(context.Context) (*kernel.Program, error) {
		return kernel.Compile(bad, schema)
	})
	require.Error(t, err)
	assert.Equal(t, ir.ErrCodeCompilationFailure, ir.CodeOf(err))
}

func TestGetOrCompile_NilCompileFunc(t *testing.T) {
	c := New()
	_, err := c.GetOrCompile(context.Background(), keyOf(scale(5)), nil)
	assert.True(t, IsCompilationFailure(err))
}

func TestGetOrCompile_DistinctStatementsDistinctEntries(t *testing.T) {
	ctx := context.Background()
	c := New()

	var calls atomic.Int32
	a, b := scale(1), scale(2)
	coA, err := c.GetOrCompile(ctx, keyOf(a), counting(a, &calls))
	require.NoError(t, err)
	coB, err := c.GetOrCompile(ctx, keyOf(b), counting(b, &calls))
	require.NoError(t, err)

	assert.NotEqual(t, keyOf(a), keyOf(b))
	assert.NotSame(t, coA, coB)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int32(2), calls.Load())
}

func TestMaxEntries_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := New(WithMaxEntries(2))

	var calls atomic.Int32
	var held *kernel.CodeObject
	for i, k := range []float64{1, 2, 3} {
		co, err := c.GetOrCompile(ctx, keyOf(scale(k)), counting(scale(k), &calls))
		require.NoError(t, err)
		if i == 0 {
			held = co
		}
	}

	assert.Equal(t, 2, c.Len())
	assert.False(t, c.IsCached(keyOf(scale(1))))
	assert.True(t, c.IsCached(keyOf(scale(3))))
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.NotNil(t, held.Program(), "evicted entry must stay usable by its holder")

	// Asking again recompiles.
	_, err := c.GetOrCompile(ctx, keyOf(scale(1)), counting(scale(1), &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestWithStore_SecondCacheLoadsFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	stmts := scale(6)
	key := keyOf(stmts)

	s1, err := store.Open(dir)
	require.NoError(t, err)
	defer s1.Close()
	s2, err := store.Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	var calls atomic.Int32
	first := New(WithStore(s1))
	_, err = first.GetOrCompile(ctx, key, counting(stmts, &calls))
	require.NoError(t, err)
	assert.Equal(t, Stats{Misses: 1, Compiles: 1}, first.Stats())

	second := New(WithStore(s2))
	co, err := second.GetOrCompile(ctx, key, counting(stmts, &calls))
	require.NoError(t, err)
	assert.Equal(t, Stats{Misses: 1, DiskLoads: 1}, second.Stats())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"v = (v * (dt + 6))"}, co.Program().Source)
}
