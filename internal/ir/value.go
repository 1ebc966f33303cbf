package ir

import (
	"slices"
	"strconv"
	"unicode/utf16"
)

// IRValue is a sealed interface for the value tree that fingerprints are
// computed over. Only IRString, IRInt, IRBool, IRArray and IRObject implement it.
// There is no float type: float literals are encoded with HexFloat.
type IRValue interface {
	irValue()
}

// IRString represents a string value.
type IRString string

// IRInt represents an integer value.
type IRInt int64

// IRBool represents a boolean value.
type IRBool bool

// IRArray represents an ordered list of values.
type IRArray []IRValue

// IRObject represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRString) irValue() {}
func (IRInt) irValue()    {}
func (IRBool) irValue()   {}
func (IRArray) irValue()  {}
func (IRObject) irValue() {}

// HexFloat encodes a float64 exactly, e.g. 0.1 -> "0x1.999999999999ap-04".
// Shortest-decimal formatting is also exact for float64, but hex makes the
// encoding independent of any decimal formatting rules.
func HexFloat(f float64) IRString {
	return IRString(strconv.FormatFloat(f, 'x', -1, 64))
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
// Go's string comparison uses UTF-8 bytes, which orders astral-plane
// characters differently.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// ExprValue converts an expression to its value-tree form.
func ExprValue(e Expr) IRValue {
	switch e := e.(type) {
	case Num:
		return IRObject{"num": HexFloat(e.Value)}
	case Ref:
		return IRObject{"ref": IRString(e.Name)}
	case Unary:
		return IRObject{"op": IRString(e.Op), "x": ExprValue(e.X)}
	case Binary:
		return IRObject{"op": IRString(e.Op), "x": ExprValue(e.X), "y": ExprValue(e.Y)}
	case Call:
		args := make(IRArray, len(e.Args))
		for i, a := range e.Args {
			args[i] = ExprValue(a)
		}
		return IRObject{"call": IRString(e.Func), "args": args}
	}
	return IRObject{}
}

// StatementsValue converts a statement sequence to its value-tree form.
// Order is preserved.
func StatementsValue(stmts []Statement) IRArray {
	arr := make(IRArray, len(stmts))
	for i, s := range stmts {
		arr[i] = IRObject{
			"target": IRString(s.Target),
			"op":     IRString(s.Op),
			"expr":   ExprValue(s.Expr),
		}
	}
	return arr
}

// SchemaValue converts a schema to its value-tree form, sorted by name.
func SchemaValue(s Schema) IRArray {
	sorted := s.Sorted()
	arr := make(IRArray, len(sorted))
	for i, v := range sorted {
		arr[i] = IRObject{
			"name":     IRString(v.Name),
			"type":     IRString(string(v.Type)),
			"constant": IRBool(v.Constant),
			"volatile": IRBool(v.Volatile),
		}
	}
	return arr
}
