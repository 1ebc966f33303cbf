package ir

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DType is the element type of a buffer or constant.
type DType string

const (
	Float64 DType = "float64"
	Float32 DType = "float32"
	Int32   DType = "int32"
	Int64   DType = "int64"
	Bool    DType = "bool"
)

// AllDTypes lists the supported element types in a stable order.
var AllDTypes = []DType{Float64, Float32, Int32, Int64, Bool}

// Size returns the element size in bytes, or 0 for an unknown type.
func (t DType) Size() int {
	switch t {
	case Float64, Int64:
		return 8
	case Float32, Int32:
		return 4
	case Bool:
		return 1
	default:
		return 0
	}
}

// Valid reports whether t is one of the supported element types.
func (t DType) Valid() bool {
	return t.Size() > 0
}

// ParseDType parses an element type name. Accepts "float" and "int" as
// aliases for float64 and int32.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float64", "float", "double":
		return Float64, nil
	case "float32", "single":
		return Float32, nil
	case "int32", "int":
		return Int32, nil
	case "int64":
		return Int64, nil
	case "bool", "boolean":
		return Bool, nil
	}
	return "", fmt.Errorf("unknown element type %q", s)
}

// Variable describes one named variable a code object touches.
//
// Constant variables are step-constant scalars: their value may change
// between steps but never varies with the element index. Volatile variables
// are backed by buffers that may be reallocated between executions.
type Variable struct {
	Name     string `json:"name"`
	Type     DType  `json:"type"`
	Constant bool   `json:"constant,omitempty"`
	Volatile bool   `json:"volatile,omitempty"`
}

// Schema is the set of variables a code object is compiled against.
type Schema []Variable

// Sorted returns a copy of the schema ordered by variable name.
func (s Schema) Sorted() Schema {
	out := slices.Clone(s)
	slices.SortFunc(out, func(a, b Variable) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Lookup finds a variable by name.
func (s Schema) Lookup(name string) (Variable, bool) {
	for _, v := range s {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// Names returns the variable names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, v := range s {
		names[i] = v.Name
	}
	return names
}

// CheckName rejects names that are empty or not in Unicode NFC form.
// Canonical encoding normalizes strings to NFC, so two names that differ
// only in normalization would otherwise share a fingerprint.
func CheckName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if !norm.NFC.IsNormalString(name) {
		return fmt.Errorf("name %q is not in Unicode NFC form (want %q)", name, norm.NFC.String(name))
	}
	return nil
}

// Validate checks for invalid names, unknown types and duplicates.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, v := range s {
		if err := CheckName(v.Name); err != nil {
			return fmt.Errorf("schema[%d]: %w", i, err)
		}
		if !v.Type.Valid() {
			return fmt.Errorf("schema[%d] %s: invalid type %q", i, v.Name, v.Type)
		}
		if v.Constant && v.Volatile {
			return fmt.Errorf("schema[%d] %s: a constant cannot be volatile", i, v.Name)
		}
		if seen[v.Name] {
			return fmt.Errorf("schema: duplicate variable %q", v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}
