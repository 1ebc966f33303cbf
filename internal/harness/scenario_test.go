package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/test.yaml next to an empty model
// directory named model.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "model"), 0o755))
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: grow
description: "Growth between steps"
model: model
steps: 2
actions:
  - before_step: 2
    append: {variable: v, count: 3, value: 1.5}
  - before_step: 2
    after: integrate
    compact: {variable: v}
assertions:
  - variable: v
    length: 7
  - variable: v
    index: 6
    approx: 1.5
    tolerance: 0.01
`)

	sc, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "grow", sc.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "model"), sc.Model, "model resolves against the scenario file")
	assert.Equal(t, 2, sc.Steps)
	require.Len(t, sc.Actions, 2)
	assert.Equal(t, "append", sc.Actions[0].Kind())
	assert.Equal(t, &AppendAction{Variable: "v", Count: 3, Value: 1.5}, sc.Actions[0].Append)
	assert.Equal(t, "compact", sc.Actions[1].Kind())
	assert.Equal(t, "integrate", sc.Actions[1].After)
	require.Len(t, sc.Assertions, 2)
	assert.Equal(t, 7, *sc.Assertions[0].Length)
	assert.Equal(t, 6, *sc.Assertions[1].Index)
	assert.Equal(t, 0.01, sc.Assertions[1].Tolerance)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "Misspelled field"
model: model
steps: 1
assertion:
  - variable: v
    length: 1
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nmodel: model\nsteps: 1\nassertions: [{variable: v, length: 1}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing model dir",
			content: "name: n\ndescription: d\nmodel: nope\nsteps: 1\nassertions: [{variable: v, length: 1}]\n",
			wantErr: "model not found",
		},
		{
			name:    "zero steps",
			content: "name: n\ndescription: d\nmodel: model\nsteps: 0\nassertions: [{variable: v, length: 1}]\n",
			wantErr: "steps must be at least 1",
		},
		{
			name:    "no assertions",
			content: "name: n\ndescription: d\nmodel: model\nsteps: 1\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "action out of range",
			content: "name: n\ndescription: d\nmodel: model\nsteps: 1\nactions: [{before_step: 2, compact: {variable: v}}]\nassertions: [{variable: v, length: 1}]\n",
			wantErr: "before_step must be in [1, 1]",
		},
		{
			name:    "two mutations in one action",
			content: "name: n\ndescription: d\nmodel: model\nsteps: 1\nactions: [{before_step: 1, compact: {variable: v}, set: {variable: k, value: 1}}]\nassertions: [{variable: v, length: 1}]\n",
			wantErr: "exactly one of",
		},
		{
			name:    "action without variable",
			content: "name: n\ndescription: d\nmodel: model\nsteps: 1\nactions: [{before_step: 1, resize: {length: 3}}]\nassertions: [{variable: v, length: 1}]\n",
			wantErr: "resize variable is required",
		},
		{
			name:    "index without approx",
			content: "name: n\ndescription: d\nmodel: model\nsteps: 1\nassertions: [{variable: v, index: 0}]\n",
			wantErr: "index and approx must be given together",
		},
		{
			name:    "assertion checks nothing",
			content: "name: n\ndescription: d\nmodel: model\nsteps: 1\nassertions: [{variable: v}]\n",
			wantErr: "one of length, index, all, sum",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			_, err := LoadScenario(f)
			assert.NoError(t, err)
		})
	}
}
