package buffer

import (
	"fmt"
	"unsafe"

	"github.com/roach88/stepc/internal/ir"
)

// Element is the set of Go types a Buffer can hold.
type Element interface {
	float64 | float32 | int32 | int64 | bool
}

// DTypeOf returns the element type for T.
func DTypeOf[T Element]() ir.DType {
	var zero T
	switch any(zero).(type) {
	case float64:
		return ir.Float64
	case float32:
		return ir.Float32
	case int32:
		return ir.Int32
	case int64:
		return ir.Int64
	case bool:
		return ir.Bool
	}
	return ""
}

func checkType[T Element](b *Buffer) error {
	if want := DTypeOf[T](); want != b.typ {
		return ir.Errorf(ir.ErrCodeSchemaMismatch, "", "buffer holds %s, not %s", b.typ, want)
	}
	return nil
}

// Append appends vals, growing to ceil((len+n) * growth) when capacity is
// exceeded. Any previously taken RawAddress is invalid afterwards.
func Append[T Element](b *Buffer, vals ...T) error {
	if err := checkType[T](b); err != nil {
		return err
	}
	if len(vals) == 0 {
		return nil
	}
	start := b.length
	if err := b.reserve(start + len(vals)); err != nil {
		return err
	}
	dst := unsafe.Slice((*T)(b.RawAddress()), b.capacity)
	copy(dst[start:], vals)
	b.length = start + len(vals)
	b.version++
	return nil
}

// View returns the first Len elements as a typed slice aliasing the buffer.
// Like RawAddress, it must not be retained across a reallocation.
func View[T Element](b *Buffer) ([]T, error) {
	if err := checkType[T](b); err != nil {
		return nil, err
	}
	if b.length == 0 {
		return nil, nil
	}
	return unsafe.Slice((*T)(b.RawAddress()), b.length), nil
}

// MustView is like View but panics on a type mismatch.
func MustView[T Element](b *Buffer) []T {
	v, err := View[T](b)
	if err != nil {
		panic(err)
	}
	return v
}

// Fill sets every element to v.
func Fill[T Element](b *Buffer, v T) error {
	view, err := View[T](b)
	if err != nil {
		return err
	}
	for i := range view {
		view[i] = v
	}
	b.version++
	return nil
}

// At reads element i of any type as float64. Booleans read as 0 or 1.
func (b *Buffer) At(i int) (float64, error) {
	if i < 0 || i >= b.length {
		return 0, fmt.Errorf("buffer: index %d out of range [0,%d)", i, b.length)
	}
	p := unsafe.Add(b.RawAddress(), i*b.size)
	switch b.typ {
	case ir.Float64:
		return *(*float64)(p), nil
	case ir.Float32:
		return float64(*(*float32)(p)), nil
	case ir.Int32:
		return float64(*(*int32)(p)), nil
	case ir.Int64:
		return float64(*(*int64)(p)), nil
	case ir.Bool:
		if *(*bool)(p) {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("buffer: unknown type %q", b.typ)
}

// SetAt writes element i from a float64, converting to the element type
// (integers truncate toward zero, bool is v != 0).
func (b *Buffer) SetAt(i int, v float64) error {
	if i < 0 || i >= b.length {
		return fmt.Errorf("buffer: index %d out of range [0,%d)", i, b.length)
	}
	p := unsafe.Add(b.RawAddress(), i*b.size)
	switch b.typ {
	case ir.Float64:
		*(*float64)(p) = v
	case ir.Float32:
		*(*float32)(p) = float32(v)
	case ir.Int32:
		*(*int32)(p) = int32(v)
	case ir.Int64:
		*(*int64)(p) = int64(v)
	case ir.Bool:
		*(*bool)(p) = v != 0
	}
	b.version++
	return nil
}

// AppendFloat64s appends values of any element type from float64, using
// SetAt's conversion rules. Used by model loaders that only see float64.
func (b *Buffer) AppendFloat64s(vals ...float64) error {
	start := b.length
	if err := b.AppendZero(len(vals)); err != nil {
		return err
	}
	for i, v := range vals {
		if err := b.SetAt(start+i, v); err != nil {
			return err
		}
	}
	return nil
}

// Float64s returns a copy of the contents converted to float64.
func (b *Buffer) Float64s() []float64 {
	out := make([]float64, b.length)
	for i := range out {
		out[i], _ = b.At(i)
	}
	return out
}
