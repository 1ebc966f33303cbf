package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementExpand(t *testing.T) {
	s := Statement{Target: "v", Op: "+=", Expr: Num{Value: 2}}
	got, err := s.Expand()
	require.NoError(t, err)
	assert.Equal(t, "v = (v + 2)", got.String())

	plain := Statement{Target: "v", Op: "=", Expr: Ref{Name: "I"}}
	got, err = plain.Expand()
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	_, err = Statement{Target: "v", Op: "%=", Expr: Num{Value: 2}}.Expand()
	assert.Error(t, err)
}

func TestRefs(t *testing.T) {
	stmts := []Statement{
		{Target: "v", Op: "=", Expr: Binary{Op: "+", X: Ref{Name: "v"}, Y: Call{Func: "exp", Args: []Expr{Ref{Name: "w"}}}}},
		{Target: "w", Op: "=", Expr: Unary{Op: "-", X: Ref{Name: "k"}}},
	}
	assert.Equal(t, []string{"v", "w", "k"}, Refs(stmts))
}

func TestDTypeParse(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want DType
	}{
		{"float", Float64}, {"float64", Float64}, {"float32", Float32},
		{"int", Int32}, {"int64", Int64}, {"Bool", Bool},
	} {
		got, err := ParseDType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseDType("complex")
	assert.Error(t, err)

	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, 1, Bool.Size())
	assert.False(t, DType("x").Valid())
}

func TestSchemaValidate(t *testing.T) {
	assert.NoError(t, Schema{{Name: "v", Type: Float64}}.Validate())
	assert.Error(t, Schema{{Name: "", Type: Float64}}.Validate())
	assert.Error(t, Schema{{Name: "c", Type: Float64, Constant: true, Volatile: true}}.Validate())
}

func TestErrorCodes(t *testing.T) {
	err := Errorf(ErrCodeUnknownName, "v", "variable %q is not bound", "v")
	wrapped := WrapError(ErrCodeSchemaMismatch, "obj", "refresh bug", err)

	assert.True(t, IsCode(err, ErrCodeUnknownName))
	assert.True(t, IsCode(wrapped, ErrCodeSchemaMismatch))
	assert.Equal(t, ErrCodeSchemaMismatch, CodeOf(wrapped))
	assert.False(t, IsCode(nil, ErrCodeUnknownName))
	assert.Contains(t, wrapped.Error(), "UNKNOWN_NAME")
}
