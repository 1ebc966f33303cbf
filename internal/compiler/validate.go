package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/kernel"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidType      = "E101" // unknown element type
	ErrSizeConflict     = "E102" // size disagrees with values
	ErrUndeclaredVar    = "E103" // statement references an undeclared variable
	ErrAssignConstant   = "E104" // statement assigns to a constant
	ErrUnknownFunction  = "E105" // call to a function not in the support library
	ErrBadSizeVar       = "E106" // size variable missing or not a buffer
	ErrUnknownCode      = "E107" // schedule references an undeclared code object
	ErrBadClock         = "E108" // clock variable is not a float64 constant, or dt missing
	ErrEmptySchedule    = "E109" // nothing to run
	ErrConstantHasShape = "E110" // init on a constant
	ErrNameNotNFC       = "E111" // name not in Unicode NFC form
)

// ValidationError represents a model validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ModelResult is a compiled model plus its validation errors.
type ModelResult struct {
	Model  *ir.Model
	Errors []ValidationError
	Files  int
}

// Validate checks a compiled model for reference and shape errors.
// Returns all errors found (does not fail-fast).
func Validate(m *ir.Model) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	for _, v := range m.Variables {
		field := "variables." + v.Name
		if err := ir.CheckName(v.Name); err != nil {
			add(field, ErrNameNotNFC, "%v", err)
		}
		if !v.Type.Valid() {
			add(field+".type", ErrInvalidType, "invalid element type %q", v.Type)
		}
		if v.Size > 0 && len(v.Values) > 0 && v.Size != len(v.Values) {
			add(field+".size", ErrSizeConflict, "size %d but %d values", v.Size, len(v.Values))
		}
		if v.IsConstant() && v.Init != 0 {
			add(field+".init", ErrConstantHasShape, "init applies to buffers; use value for a constant")
		}
	}

	codeIDs := make(map[string]bool, len(m.Code))
	for _, c := range m.Code {
		codeIDs[c.ID] = true
		field := "code." + c.ID
		for i, s := range c.Statements {
			validateStatement(m, s, fmt.Sprintf("%s.statements[%d]", field, i), add)
		}
		if c.SizeVar != "" {
			if v, ok := m.Variable(c.SizeVar); !ok || v.IsConstant() {
				add(field+".size", ErrBadSizeVar, "size variable %q must be a declared buffer", c.SizeVar)
			}
		}
	}

	if len(m.Schedule) == 0 {
		add("schedule", ErrEmptySchedule, "schedule is empty")
	}
	for i, id := range m.Schedule {
		if !codeIDs[id] {
			add(fmt.Sprintf("schedule[%d]", i), ErrUnknownCode, "unknown code object %q", id)
		}
	}

	if m.Clock != "" {
		if v, ok := m.Variable(m.Clock); ok && (!v.IsConstant() || v.Type != ir.Float64) {
			add("clock", ErrBadClock, "clock variable %q must be a float64 constant", m.Clock)
		}
		if m.DT <= 0 {
			add("dt", ErrBadClock, "a clock needs dt > 0")
		}
	}
	return errs
}

func validateStatement(m *ir.Model, s ir.Statement, field string, add func(field, code, format string, args ...any)) {
	declared := func(name string) (ir.VariableSpec, bool) {
		if v, ok := m.Variable(name); ok {
			return v, true
		}
		if name == m.Clock && name != "" {
			return ir.VariableSpec{Name: name, Type: ir.Float64}, true
		}
		return ir.VariableSpec{}, false
	}

	if v, ok := declared(s.Target); !ok {
		add(field, ErrUndeclaredVar, "assignment to undeclared variable %q", s.Target)
	} else if v.IsConstant() {
		add(field, ErrAssignConstant, "cannot assign to constant %q", s.Target)
	}

	var missing []string
	var walk func(ir.Expr)
	walk = func(e ir.Expr) {
		switch e := e.(type) {
		case ir.Ref:
			if _, ok := declared(e.Name); !ok && !slices.Contains(missing, e.Name) {
				missing = append(missing, e.Name)
			}
		case ir.Unary:
			walk(e.X)
		case ir.Binary:
			walk(e.X)
			walk(e.Y)
		case ir.Call:
			if f, ok := kernel.LookupFunc(e.Func); !ok {
				add(field, ErrUnknownFunction, "unknown function %q", e.Func)
			} else if f.Arity != len(e.Args) {
				add(field, ErrUnknownFunction, "%s takes %d arguments, got %d", e.Func, f.Arity, len(e.Args))
			}
			for _, a := range e.Args {
				walk(a)
			}
		}
	}
	walk(s.Expr)
	for _, n := range missing {
		add(field, ErrUndeclaredVar, "undeclared variable %q", n)
	}
}
