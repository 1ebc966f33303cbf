package kernel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/stepc/internal/ir"
)

// Instr is one register instruction.
//
// Prologue instructions write scalar registers ("s"), except splats, which
// broadcast a scalar register into a vector register ("v"). Body
// instructions read and write vector registers. A store has no destination
// and uses Dst = -1.
type Instr struct {
	Op    string  `json:"op"`
	Dst   int     `json:"dst"`
	Args  []int   `json:"args,omitempty"`
	Var   string  `json:"var,omitempty"`
	Func  string  `json:"func,omitempty"`
	Value float64 `json:"value"`
}

// Stats counts what the optimizer did.
type Stats struct {
	Folded     int `json:"folded"`
	Simplified int `json:"simplified"`
	Hoisted    int `json:"hoisted"`
	Reused     int `json:"reused"`
}

// Program is the compiled, serializable form of a code object.
type Program struct {
	Kernel     string    `json:"kernel"`
	Schema     ir.Schema `json:"schema"`
	Source     []string  `json:"source"`
	ScalarRegs int       `json:"scalar_regs"`
	VectorRegs int       `json:"vector_regs"`
	Scalars    []Instr   `json:"scalars"`
	Splats     []Instr   `json:"splats"`
	Body       []Instr   `json:"body"`
	Stats      Stats     `json:"stats"`
}

// Encode serializes p as an artifact.
func Encode(p *Program) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode program: %w", err)
	}
	return data, nil
}

// Decode parses and validates an artifact produced by Encode.
func Decode(data []byte) (*Program, error) {
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	return &p, nil
}

// Validate checks that every register, variable and function reference in
// p is in range and well-kinded. Link calls it; artifacts read from disk
// are untrusted.
func (p *Program) Validate() error {
	if p.Kernel != KernelVersion {
		return fmt.Errorf("program built for kernel %q, this is kernel %q", p.Kernel, KernelVersion)
	}
	if err := p.Schema.Validate(); err != nil {
		return err
	}
	vars := make(map[string]ir.Variable, len(p.Schema))
	for _, v := range p.Schema {
		vars[v.Name] = v
	}

	sreg := func(r int) error {
		if r < 0 || r >= p.ScalarRegs {
			return fmt.Errorf("scalar register s%d out of range", r)
		}
		return nil
	}
	vreg := func(r int) error {
		if r < 0 || r >= p.VectorRegs {
			return fmt.Errorf("vector register v%d out of range", r)
		}
		return nil
	}
	checkVar := func(in Instr, constant bool) error {
		v, ok := vars[in.Var]
		if !ok {
			return fmt.Errorf("%s: variable %q not in schema", in.Op, in.Var)
		}
		if v.Constant != constant {
			return fmt.Errorf("%s: variable %q has wrong constness", in.Op, in.Var)
		}
		return nil
	}
	checkOp := func(in Instr, reg func(int) error) error {
		for _, a := range in.Args {
			if err := reg(a); err != nil {
				return err
			}
		}
		switch in.Op {
		case OpNeg, OpNot:
			if _, ok := scalarUnary[in.Op]; !ok || len(in.Args) != 1 {
				return fmt.Errorf("%s: want 1 operand, got %d", in.Op, len(in.Args))
			}
		case OpCall:
			f, ok := LookupFunc(in.Func)
			if !ok {
				return fmt.Errorf("call: unknown function %q", in.Func)
			}
			if len(in.Args) != f.Arity {
				return fmt.Errorf("call %s: want %d operands, got %d", in.Func, f.Arity, len(in.Args))
			}
		default:
			if _, ok := scalarBinary[in.Op]; !ok {
				return fmt.Errorf("unknown opcode %q", in.Op)
			}
			if len(in.Args) != 2 {
				return fmt.Errorf("%s: want 2 operands, got %d", in.Op, len(in.Args))
			}
		}
		return nil
	}

	for i, in := range p.Scalars {
		var err error
		switch in.Op {
		case OpConst:
			err = sreg(in.Dst)
		case OpParam:
			if err = sreg(in.Dst); err == nil {
				err = checkVar(in, true)
			}
		default:
			if err = sreg(in.Dst); err == nil {
				err = checkOp(in, sreg)
			}
		}
		if err != nil {
			return fmt.Errorf("scalars[%d]: %w", i, err)
		}
	}
	for i, in := range p.Splats {
		if in.Op != OpSplat || len(in.Args) != 1 {
			return fmt.Errorf("splats[%d]: malformed splat", i)
		}
		if err := vreg(in.Dst); err != nil {
			return fmt.Errorf("splats[%d]: %w", i, err)
		}
		if err := sreg(in.Args[0]); err != nil {
			return fmt.Errorf("splats[%d]: %w", i, err)
		}
	}
	for i, in := range p.Body {
		var err error
		switch in.Op {
		case OpLoad:
			if err = vreg(in.Dst); err == nil {
				err = checkVar(in, false)
			}
		case OpStore:
			if len(in.Args) != 1 {
				err = fmt.Errorf("store: want 1 operand, got %d", len(in.Args))
			} else if err = vreg(in.Args[0]); err == nil {
				err = checkVar(in, false)
			}
		default:
			if err = vreg(in.Dst); err == nil {
				err = checkOp(in, vreg)
			}
		}
		if err != nil {
			return fmt.Errorf("body[%d]: %w", i, err)
		}
	}
	return nil
}

// Listing renders a human-readable disassembly of p.
func (p *Program) Listing() string {
	var b strings.Builder
	b.WriteString("; schema\n")
	for _, v := range p.Schema.Sorted() {
		fmt.Fprintf(&b, ";   %s %s", v.Name, v.Type)
		if v.Constant {
			b.WriteString(" const")
		}
		if v.Volatile {
			b.WriteString(" volatile")
		}
		b.WriteByte('\n')
	}
	b.WriteString("; source\n")
	for _, s := range p.Source {
		fmt.Fprintf(&b, ";   %s\n", s)
	}
	b.WriteString("prologue:\n")
	for _, in := range p.Scalars {
		writeInstr(&b, in, "s", "s")
	}
	for _, in := range p.Splats {
		writeInstr(&b, in, "v", "s")
	}
	b.WriteString("body:\n")
	for _, in := range p.Body {
		writeInstr(&b, in, "v", "v")
	}
	return b.String()
}

func writeInstr(b *strings.Builder, in Instr, dst, src string) {
	b.WriteString("  ")
	if in.Op == OpStore {
		fmt.Fprintf(b, "store %s %s%d\n", in.Var, src, in.Args[0])
		return
	}
	fmt.Fprintf(b, "%s%d = %s", dst, in.Dst, in.Op)
	switch in.Op {
	case OpConst:
		b.WriteString(" " + strconv.FormatFloat(in.Value, 'g', -1, 64))
	case OpParam, OpLoad:
		b.WriteString(" " + in.Var)
	case OpCall:
		b.WriteString(" " + in.Func)
	}
	for _, a := range in.Args {
		fmt.Fprintf(b, " %s%d", src, a)
	}
	b.WriteByte('\n')
}
