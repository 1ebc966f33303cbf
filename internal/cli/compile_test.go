package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepc/internal/compiler"
	"github.com/roach88/stepc/internal/kernel"
)

// compileJSON runs compile in JSON mode and decodes the result.
func compileJSON(t *testing.T, args ...string) CompilationResult {
	t.Helper()
	out, err := execute(t, append([]string{"--format", "json"}, args...)...)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestCompile_Text(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	out, err := execute(t, "compile", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 1 code object(s) for model leaky")
	assert.Contains(t, out, "integrate: ")
}

func TestCompile_JSON(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	res := compileJSON(t, "compile", "--listing", dir)
	assert.Equal(t, "leaky", res.Model)
	assert.Equal(t, kernel.ToolchainID(), res.Toolchain)
	require.Len(t, res.Code, 1)
	c := res.Code[0]
	assert.Equal(t, "integrate", c.ID)
	assert.Equal(t, []string{"v = v + dt*(I-v)/tau"}, c.Source)
	assert.NotEmpty(t, c.Key)
	assert.Positive(t, c.Instructions)
	assert.NotEmpty(t, c.Listing)
	assert.Equal(t, int64(1), res.Cache.Compiles)
}

func TestCompile_SameModelSameKey(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	first := compileJSON(t, "compile", dir)
	second := compileJSON(t, "compile", dir)
	assert.Equal(t, first.Code[0].Key, second.Code[0].Key)
}

func TestCompile_CacheDirLoadsSecondTime(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)
	cacheDir := t.TempDir()

	first := compileJSON(t, "--cache-dir", cacheDir, "compile", dir)
	assert.Equal(t, int64(1), first.Cache.Compiles)
	assert.Zero(t, first.Cache.DiskLoads)

	second := compileJSON(t, "--cache-dir", cacheDir, "compile", dir)
	assert.Zero(t, second.Cache.Compiles)
	assert.Equal(t, int64(1), second.Cache.DiskLoads)

	out, err := execute(t, "--cache-dir", cacheDir, "compile", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 1 from the cache directory, compiled 0")
}

func TestCompile_OutputFile(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)
	outFile := filepath.Join(t.TempDir(), "programs.json")

	out, err := execute(t, "compile", "-o", outFile, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote programs to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var programs map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &programs))
	assert.Contains(t, programs, "integrate")
}

func TestCompile_OutputFileUnwritable(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)
	outFile := filepath.Join(t.TempDir(), "missing", "programs.json")

	out, err := execute(t, "compile", "-o", outFile, dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeWriteFailed+"]")
}

func TestCompile_InvalidModel(t *testing.T) {
	dir := writeModel(t, t.TempDir(), undeclaredModel)

	out, err := execute(t, "compile", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, compiler.ErrUndeclaredVar)
}

func TestCompile_MissingDirectory(t *testing.T) {
	out, err := execute(t, "compile", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}
