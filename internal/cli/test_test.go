package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: leaky_two
description: "two steps of the leaky integrator"
model: leaky
steps: 2
run_id: run-two
assertions:
  - variable: v
    all: 0.75
  - variable: v
    sum: 3
`

const failingScenario = `name: leaky_wrong
description: "expects the wrong value"
model: leaky
steps: 2
assertions:
  - variable: v
    all: 1
`

const goldenScenario = `name: leaky_golden
description: "needs a golden file"
model: leaky
steps: 1
golden: true
assertions:
  - variable: v
    length: 4
`

// scenariosDir returns a directory holding the leaky model and the given
// scenario files.
func scenariosDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	writeModel(t, dir, leakyModel)
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func testJSON(t *testing.T, out string) TestResult {
	t.Helper()
	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.Data
}

func TestTest_Pass(t *testing.T) {
	dir := scenariosDir(t, map[string]string{"two.yaml": passingScenario})

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ leaky_two")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_FailingAssertion(t *testing.T) {
	dir := scenariosDir(t, map[string]string{
		"two.yaml":   passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	res := testJSON(t, out)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 1, res.Failed)
	for _, s := range res.Scenarios {
		if s.Name == "leaky_wrong" {
			assert.False(t, s.Pass)
			require.NotEmpty(t, s.Errors)
			assert.Contains(t, s.Errors[0], "all")
		}
	}
}

func TestTest_SharedCache(t *testing.T) {
	dir := scenariosDir(t, map[string]string{
		"two.yaml":   passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, _ := execute(t, "--format", "json", "test", dir)
	res := testJSON(t, out)
	assert.Equal(t, int64(1), res.Cache.Compiles)
	assert.Equal(t, int64(1), res.Cache.Hits)
}

func TestTest_Filter(t *testing.T) {
	dir := scenariosDir(t, map[string]string{
		"two.yaml":   passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, "test", "--filter", "tw*", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, err = execute(t, "test", "--filter", "nothing*", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_GoldenRequired(t *testing.T) {
	dir := scenariosDir(t, map[string]string{"golden.yaml": goldenScenario})

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "golden file missing")

	out, err = execute(t, "test", "--update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ leaky_golden (golden updated)")
	assert.FileExists(t, filepath.Join(dir, "golden", "leaky_golden.golden"))

	_, err = execute(t, "test", dir)
	require.NoError(t, err)
}

func TestTest_GoldenMismatch(t *testing.T) {
	dir := scenariosDir(t, map[string]string{"two.yaml": passingScenario})
	goldenDir := t.TempDir()

	_, err := execute(t, "test", "--update", "--golden-dir", goldenDir, dir)
	require.NoError(t, err)
	path := filepath.Join(goldenDir, "leaky_two.golden")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"run-two"`)

	require.NoError(t, os.WriteFile(path, []byte(`{"scenario":"leaky_two"}`), 0o644))
	out, err := execute(t, "test", "--golden-dir", goldenDir, dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_BadScenario(t *testing.T) {
	dir := scenariosDir(t, map[string]string{"bad.yaml": "name: x\nsteps: 0\n"})

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed to load scenario")
}

func TestTest_MissingDirectory(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_EmptyJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", t.TempDir())
	require.NoError(t, err)
	res := testJSON(t, out)
	assert.Empty(t, res.Scenarios)
	assert.Zero(t, res.Total)
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}
