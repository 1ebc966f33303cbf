package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable(t *testing.T) {
	tbl := NewTable(t,
		Buffer("v", 1, 2, 3),
		FixedBuffer("w", 4),
		Zeros("z", 5),
		Constant("k", 2.5),
	)

	v := MustBuffer(t, tbl, "v")
	assert.Equal(t, []float64{1, 2, 3}, v.Float64s())
	assert.False(t, v.Fixed())

	w := MustBuffer(t, tbl, "w")
	assert.True(t, w.Fixed())
	assert.Equal(t, []float64{4}, w.Float64s())

	assert.Equal(t, make([]float64, 5), MustBuffer(t, tbl, "z").Float64s())

	k, err := tbl.Constant("k")
	require.NoError(t, err)
	assert.Equal(t, 2.5, k)
}

func TestFloat64Buffer_Empty(t *testing.T) {
	buf := Float64Buffer(t, false)
	assert.Equal(t, 0, buf.Len())
	require.NoError(t, buf.AppendFloat64s(1))
	assert.Equal(t, 1, buf.Len())
}

func TestWriteModel(t *testing.T) {
	dir := WriteModel(t, t.TempDir(), "leaky", "package leaky\n")
	assert.Equal(t, "leaky", filepath.Base(dir))

	data, err := os.ReadFile(filepath.Join(dir, "model.cue"))
	require.NoError(t, err)
	assert.Equal(t, "package leaky\n", string(data))
}

func TestStaticRunID(t *testing.T) {
	assert.Equal(t, DefaultRunID, NewStaticRunID("").Generate())

	gen := NewStaticRunID("run-7")
	var wg sync.WaitGroup
	ids := make([]string, 50)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = gen.Generate()
		}()
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, "run-7", id)
	}
}
