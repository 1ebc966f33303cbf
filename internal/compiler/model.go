package compiler

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/stepc/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// CompileError represents a model error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// CompileModel turns a CUE model value into an ir.Model. The value is
// unified with the #Model definition first, so unknown fields, bad types
// and negative sizes fail here with positions.
//
// The value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	m, err := CompileModel(v.LookupPath(cue.ParsePath("model")))
//
// Statement sources are parsed; the model is not otherwise validated (see
// Validate).
func CompileModel(v cue.Value) (*ir.Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := v.Context().CompileString(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Model"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("model schema: %w", err)
	}
	user := v
	v = def.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	m := &ir.Model{}
	if name := v.LookupPath(cue.ParsePath("name")); name.Exists() {
		s, err := name.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m.Name = s
	}

	var err error
	if m.Variables, err = parseVariables(v.LookupPath(cue.ParsePath("variables"))); err != nil {
		return nil, err
	}
	if m.Code, err = parseCode(v.LookupPath(cue.ParsePath("code")), user.LookupPath(cue.ParsePath("code"))); err != nil {
		return nil, err
	}

	if sched := v.LookupPath(cue.ParsePath("schedule")); sched.Exists() {
		if err := sched.Decode(&m.Schedule); err != nil {
			return nil, formatCUEError(err)
		}
	} else {
		// Default: every code object, in declaration order.
		for _, c := range m.Code {
			m.Schedule = append(m.Schedule, c.ID)
		}
	}

	if clock := v.LookupPath(cue.ParsePath("clock")); clock.Exists() {
		if m.Clock, err = clock.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if dt := v.LookupPath(cue.ParsePath("dt")); dt.Exists() {
		if m.DT, err = dt.Float64(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return m, nil
}

func parseVariables(v cue.Value) ([]ir.VariableSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var vars []ir.VariableSpec
	for iter.Next() {
		fv := iter.Value()
		spec := ir.VariableSpec{Name: iter.Label()}

		typ, err := fv.LookupPath(cue.ParsePath("type")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Type = ir.DType(typ)

		if f := fv.LookupPath(cue.ParsePath("size")); f.Exists() {
			n, err := f.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			spec.Size = int(n)
		}
		if f := fv.LookupPath(cue.ParsePath("volatile")); f.Exists() {
			if spec.Volatile, err = f.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if f := fv.LookupPath(cue.ParsePath("init")); f.Exists() {
			if spec.Init, err = f.Float64(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if f := fv.LookupPath(cue.ParsePath("value")); f.Exists() {
			if spec.Value, err = f.Float64(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if f := fv.LookupPath(cue.ParsePath("values")); f.Exists() {
			list, err := f.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for list.Next() {
				x, err := list.Value().Float64()
				if err != nil {
					return nil, formatCUEError(err)
				}
				spec.Values = append(spec.Values, x)
			}
		}
		vars = append(vars, spec)
	}
	return vars, nil
}

// parseCode reads code objects from the unified value v. Errors point into
// user, the value as written.
func parseCode(v, user cue.Value) ([]ir.CodeSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var code []ir.CodeSpec
	for iter.Next() {
		fv := iter.Value()
		spec := ir.CodeSpec{ID: iter.Label()}

		if err := fv.LookupPath(cue.ParsePath("statements")).Decode(&spec.Source); err != nil {
			return nil, formatCUEError(err)
		}
		if f := fv.LookupPath(cue.ParsePath("size")); f.Exists() {
			if spec.SizeVar, err = f.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		spec.Statements, err = ParseStatements(spec.Source)
		if err != nil {
			return nil, &CompileError{
				Field:   "code." + spec.ID,
				Message: err.Error(),
				Pos:     user.LookupPath(cue.MakePath(cue.Str(spec.ID))).Pos(),
			}
		}
		code = append(code, spec)
	}
	return code, nil
}

// SchemaFor returns the schema code c is compiled against: every variable
// its statements reference, in first-reference order.
func SchemaFor(m *ir.Model, c ir.CodeSpec) (ir.Schema, error) {
	names := ir.Refs(c.Statements)
	schema := make(ir.Schema, 0, len(names))
	for _, n := range names {
		spec, ok := m.Variable(n)
		if !ok {
			if n == m.Clock {
				schema = append(schema, ir.Variable{Name: n, Type: ir.Float64, Constant: true})
				continue
			}
			return nil, ir.Errorf(ir.ErrCodeUnknownName, n, "code %q references undeclared variable %q", c.ID, n)
		}
		schema = append(schema, ir.Variable{
			Name:     n,
			Type:     spec.Type,
			Constant: spec.IsConstant(),
			Volatile: spec.Volatile,
		})
	}
	return schema, nil
}
