package kernel

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Func is a support-library function callable from statements.
type Func struct {
	Name  string
	Arity int

	f1 func(float64) float64
	f2 func(float64, float64) float64
	f3 func(float64, float64, float64) float64
}

// Eval applies f to scalar arguments.
func (f *Func) Eval(args ...float64) float64 {
	switch f.Arity {
	case 1:
		return f.f1(args[0])
	case 2:
		return f.f2(args[0], args[1])
	default:
		return f.f3(args[0], args[1], args[2])
	}
}

func (f *Func) evalRegs(s []float64, regs []int) float64 {
	switch f.Arity {
	case 1:
		return f.f1(s[regs[0]])
	case 2:
		return f.f2(s[regs[0]], s[regs[1]])
	default:
		return f.f3(s[regs[0]], s[regs[1]], s[regs[2]])
	}
}

// vector applies f elementwise over len(d) elements.
func (f *Func) vector(d []float64, args [][]float64) {
	switch f.Arity {
	case 1:
		a := args[0][:len(d)]
		for i := range d {
			d[i] = f.f1(a[i])
		}
	case 2:
		a, b := args[0][:len(d)], args[1][:len(d)]
		for i := range d {
			d[i] = f.f2(a[i], b[i])
		}
	default:
		a, b, c := args[0][:len(d)], args[1][:len(d)], args[2][:len(d)]
		for i := range d {
			d[i] = f.f3(a[i], b[i], c[i])
		}
	}
}

var library = map[string]*Func{}

func register(f *Func) {
	if _, dup := library[f.Name]; dup {
		panic(fmt.Sprintf("kernel: function %q registered twice", f.Name))
	}
	library[f.Name] = f
}

func unary(name string, f func(float64) float64) {
	register(&Func{Name: name, Arity: 1, f1: f})
}

func binary(name string, f func(float64, float64) float64) {
	register(&Func{Name: name, Arity: 2, f2: f})
}

func ternary(name string, f func(float64, float64, float64) float64) {
	register(&Func{Name: name, Arity: 3, f3: f})
}

func init() {
	unary("exp", math.Exp)
	unary("log", math.Log)
	unary("sqrt", math.Sqrt)
	unary("abs", math.Abs)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tanh", math.Tanh)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)

	binary("pow", math.Pow)
	binary("min", math.Min)
	binary("max", math.Max)

	ternary("clip", func(x, lo, hi float64) float64 {
		return math.Min(math.Max(x, lo), hi)
	})
	ternary("where", func(c, a, b float64) float64 {
		if c != 0 {
			return a
		}
		return b
	})
}

// LookupFunc returns the support-library function with the given name.
func LookupFunc(name string) (*Func, bool) {
	f, ok := library[name]
	return f, ok
}

// Functions returns the names of all support-library functions, sorted.
func Functions() []string {
	return slices.Sorted(maps.Keys(library))
}
