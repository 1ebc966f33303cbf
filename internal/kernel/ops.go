package kernel

import (
	"unsafe"

	"github.com/roach88/stepc/internal/ir"
)

// Opcodes.
const (
	OpConst = "const"
	OpParam = "param"
	OpLoad  = "load"
	OpStore = "store"
	OpSplat = "splat"
	OpCall  = "call"

	OpNeg = "neg"
	OpNot = "not"

	OpAdd = "add"
	OpSub = "sub"
	OpMul = "mul"
	OpDiv = "div"
	OpLt  = "lt"
	OpLe  = "le"
	OpGt  = "gt"
	OpGe  = "ge"
	OpEq  = "eq"
	OpNe  = "ne"
	OpAnd = "and"
	OpOr  = "or"
)

var unaryOpcodes = map[string]string{
	"-": OpNeg,
	"!": OpNot,
}

var binaryOpcodes = map[string]string{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"/":  OpDiv,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
	"==": OpEq,
	"!=": OpNe,
	"&&": OpAnd,
	"||": OpOr,
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var scalarUnary = map[string]func(float64) float64{
	OpNeg: func(x float64) float64 { return -x },
	OpNot: func(x float64) float64 { return boolf(x == 0) },
}

var scalarBinary = map[string]func(a, b float64) float64{
	OpAdd: func(a, b float64) float64 { return a + b },
	OpSub: func(a, b float64) float64 { return a - b },
	OpMul: func(a, b float64) float64 { return a * b },
	OpDiv: func(a, b float64) float64 { return a / b },
	OpLt:  func(a, b float64) float64 { return boolf(a < b) },
	OpLe:  func(a, b float64) float64 { return boolf(a <= b) },
	OpGt:  func(a, b float64) float64 { return boolf(a > b) },
	OpGe:  func(a, b float64) float64 { return boolf(a >= b) },
	OpEq:  func(a, b float64) float64 { return boolf(a == b) },
	OpNe:  func(a, b float64) float64 { return boolf(a != b) },
	OpAnd: func(a, b float64) float64 { return boolf(a != 0 && b != 0) },
	OpOr:  func(a, b float64) float64 { return boolf(a != 0 || b != 0) },
}

type unaryKernel func(d, a []float64)
type binaryKernel func(d, a, b []float64)

var vectorUnary = map[string]unaryKernel{
	OpNeg: func(d, a []float64) {
		a = a[:len(d)]
		for i := range d {
			d[i] = -a[i]
		}
	},
	OpNot: mapUnary(scalarUnary[OpNot]),
}

var vectorBinary = map[string]binaryKernel{
	OpAdd: func(d, a, b []float64) {
		a, b = a[:len(d)], b[:len(d)]
		for i := range d {
			d[i] = a[i] + b[i]
		}
	},
	OpSub: func(d, a, b []float64) {
		a, b = a[:len(d)], b[:len(d)]
		for i := range d {
			d[i] = a[i] - b[i]
		}
	},
	OpMul: func(d, a, b []float64) {
		a, b = a[:len(d)], b[:len(d)]
		for i := range d {
			d[i] = a[i] * b[i]
		}
	},
	OpDiv: func(d, a, b []float64) {
		a, b = a[:len(d)], b[:len(d)]
		for i := range d {
			d[i] = a[i] / b[i]
		}
	},
}

func init() {
	for op, f := range scalarBinary {
		if _, ok := vectorBinary[op]; !ok {
			vectorBinary[op] = mapBinary(f)
		}
	}
}

func mapUnary(f func(float64) float64) unaryKernel {
	return func(d, a []float64) {
		a = a[:len(d)]
		for i := range d {
			d[i] = f(a[i])
		}
	}
}

func mapBinary(f func(a, b float64) float64) binaryKernel {
	return func(d, a, b []float64) {
		a, b = a[:len(d)], b[:len(d)]
		for i := range d {
			d[i] = f(a[i], b[i])
		}
	}
}

// loadFunc fills dst with len(dst) elements starting at element off.
type loadFunc func(dst []float64, base unsafe.Pointer, off int)

// storeFunc writes src to len(src) elements starting at element off.
type storeFunc func(base unsafe.Pointer, off int, src []float64)

func loaderFor(t ir.DType) loadFunc {
	switch t {
	case ir.Float64:
		return func(dst []float64, base unsafe.Pointer, off int) {
			copy(dst, unsafe.Slice((*float64)(unsafe.Add(base, off*8)), len(dst)))
		}
	case ir.Float32:
		return func(dst []float64, base unsafe.Pointer, off int) {
			src := unsafe.Slice((*float32)(unsafe.Add(base, off*4)), len(dst))
			for i, x := range src {
				dst[i] = float64(x)
			}
		}
	case ir.Int32:
		return func(dst []float64, base unsafe.Pointer, off int) {
			src := unsafe.Slice((*int32)(unsafe.Add(base, off*4)), len(dst))
			for i, x := range src {
				dst[i] = float64(x)
			}
		}
	case ir.Int64:
		return func(dst []float64, base unsafe.Pointer, off int) {
			src := unsafe.Slice((*int64)(unsafe.Add(base, off*8)), len(dst))
			for i, x := range src {
				dst[i] = float64(x)
			}
		}
	case ir.Bool:
		return func(dst []float64, base unsafe.Pointer, off int) {
			src := unsafe.Slice((*bool)(unsafe.Add(base, off)), len(dst))
			for i, x := range src {
				dst[i] = boolf(x)
			}
		}
	}
	return nil
}

func storerFor(t ir.DType) storeFunc {
	switch t {
	case ir.Float64:
		return func(base unsafe.Pointer, off int, src []float64) {
			copy(unsafe.Slice((*float64)(unsafe.Add(base, off*8)), len(src)), src)
		}
	case ir.Float32:
		return func(base unsafe.Pointer, off int, src []float64) {
			dst := unsafe.Slice((*float32)(unsafe.Add(base, off*4)), len(src))
			for i, x := range src {
				dst[i] = float32(x)
			}
		}
	case ir.Int32:
		return func(base unsafe.Pointer, off int, src []float64) {
			dst := unsafe.Slice((*int32)(unsafe.Add(base, off*4)), len(src))
			for i, x := range src {
				dst[i] = int32(x)
			}
		}
	case ir.Int64:
		return func(base unsafe.Pointer, off int, src []float64) {
			dst := unsafe.Slice((*int64)(unsafe.Add(base, off*8)), len(src))
			for i, x := range src {
				dst[i] = int64(x)
			}
		}
	case ir.Bool:
		return func(base unsafe.Pointer, off int, src []float64) {
			dst := unsafe.Slice((*bool)(unsafe.Add(base, off)), len(src))
			for i, x := range src {
				dst[i] = x != 0
			}
		}
	}
	return nil
}
