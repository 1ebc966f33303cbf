package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stepc/internal/buffer"
	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/vartable"
)

// Binding is one variable for NewTable.
type Binding struct {
	name     string
	constant bool
	value    float64
	values   []float64
	fixed    bool
}

// Buffer binds a growable float64 buffer holding values.
func Buffer(name string, values ...float64) Binding {
	return Binding{name: name, values: values}
}

// FixedBuffer binds a fixed-size float64 buffer holding values.
func FixedBuffer(name string, values ...float64) Binding {
	return Binding{name: name, values: values, fixed: true}
}

// Zeros binds a growable float64 buffer of n zeros.
func Zeros(name string, n int) Binding {
	return Binding{name: name, values: make([]float64, n)}
}

// Constant binds a float64 constant.
func Constant(name string, value float64) Binding {
	return Binding{name: name, constant: true, value: value}
}

// NewTable returns a table with bindings bound in order. It fails the test
// on any binding error.
func NewTable(t testing.TB, bindings ...Binding) *vartable.Table {
	t.Helper()
	tbl := vartable.New()
	for _, b := range bindings {
		if b.constant {
			require.NoError(t, tbl.BindConstant(b.name, ir.Float64, b.value), "bind %s", b.name)
			continue
		}
		require.NoError(t, tbl.BindBuffer(b.name, Float64Buffer(t, b.fixed, b.values...)), "bind %s", b.name)
	}
	return tbl
}

// Float64Buffer returns a float64 buffer holding values.
func Float64Buffer(t testing.TB, fixed bool, values ...float64) *buffer.Buffer {
	t.Helper()
	var opts []buffer.Option
	if fixed {
		opts = append(opts, buffer.WithFixedSize())
	}
	buf, err := buffer.New(ir.Float64, len(values), opts...)
	require.NoError(t, err)
	for i, x := range values {
		require.NoError(t, buf.SetAt(i, x))
	}
	return buf
}

// MustBuffer returns the buffer bound to name.
func MustBuffer(t testing.TB, tbl *vartable.Table, name string) *buffer.Buffer {
	t.Helper()
	buf, err := tbl.Buffer(name)
	require.NoError(t, err)
	return buf
}
