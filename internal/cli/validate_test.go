package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepc/internal/compiler"
)

const undeclaredModel = `package bad

model: {
	name: "bad"
	variables: v: {size: 2}
	code: step: statements: ["v = v + gain"]
}
`

func TestValidate_Valid(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Model leaky is valid (4 variable(s), 1 code object(s))")
}

func TestValidate_ValidJSON(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	out, err := execute(t, "--format", "json", "validate", dir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "leaky", resp.Data.Model)
	assert.Equal(t, 4, resp.Data.Variables)
	assert.Equal(t, 1, resp.Data.Code)
}

func TestValidate_Invalid(t *testing.T) {
	dir := writeModel(t, t.TempDir(), undeclaredModel)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "✗ Model bad is invalid")
	assert.Contains(t, out, compiler.ErrUndeclaredVar)
	assert.Contains(t, out, "gain")
}

func TestValidate_InvalidJSON(t *testing.T) {
	dir := writeModel(t, t.TempDir(), undeclaredModel)

	out, err := execute(t, "--format", "json", "validate", dir)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrUndeclaredVar, resp.Error.Code)
}

func TestValidate_LoadErrors(t *testing.T) {
	empty := t.TempDir()
	badSize := writeModel(t, t.TempDir(), "package leaky\n\nmodel: {\n\tvariables: v: size: -1\n\tcode: {}\n}\n")
	noModel := writeModel(t, t.TempDir(), "package leaky\n\nother: 1\n")

	tests := []struct {
		name  string
		dir   string
		codes []string
	}{
		{"missing directory", filepath.Join(empty, "nope"), []string{ErrCodeNotFound}},
		{"no cue files", empty, []string{ErrCodeNoFiles}},
		{"schema violation", badSize, []string{ErrCodeSchema, ErrCodeLoadFailed}},
		{"no model field", noModel, []string{ErrCodeNoModel}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadModel(tt.dir)
			require.Error(t, err)
			assert.Contains(t, tt.codes, ErrorCode(err))

			out, err := execute(t, "validate", tt.dir)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [")
		})
	}
}

func TestValidate_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "model.cue")
	require.NoError(t, os.WriteFile(file, []byte(leakyModel), 0o644))

	_, err := LoadModel(file)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
	assert.Contains(t, loadErr.Message, "not a directory")
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.cue"), nil, 0o644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.cue")}, files)
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeSchema, MapFieldToErrorCode("cue"))
	assert.Equal(t, ErrCodeNoModel, MapFieldToErrorCode("model"))
	assert.Equal(t, ErrCodeParse, MapFieldToErrorCode("code.integrate"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("other"))
}
