package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepc/internal/engine"
	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/testutil"
)

func TestRun_Text(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	out, err := execute(t, "run", "--steps", "2", "--run-id", "run-1", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Ran 2 step(s) of model leaky (run run-1)")
	assert.Contains(t, out, "v: len 4, sum 3, min 0.75, max 0.75")
	assert.Contains(t, out, "Cache: 0 hit(s), 1 miss(es), 1 compile(s), 0 disk load(s)")
}

func TestRun_JSON(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	out, err := execute(t, "--format", "json", "run", "-n", "3", "--run-id", "run-2", dir)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		RunID  string    `json:"run_id"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-2", resp.RunID)
	assert.Equal(t, 3, resp.Data.Completed)
	require.Len(t, resp.Data.Steps, 3)
	for i, s := range resp.Data.Steps {
		assert.Equal(t, int64(i+1), s.Seq)
		assert.Equal(t, []string{"integrate"}, s.Items)
	}
	assert.InDelta(t, 1.0, resp.Data.Steps[2].Time, 1e-12)
	assert.InDelta(t, 0.875, resp.Data.Final["v"].First, 1e-12)
}

func TestRun_GeneratedRunID(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	root := &RootOptions{Format: "text", Workers: 1}
	opts := &RunOptions{RootOptions: root, Steps: 1, RunIDGenerator: testutil.NewStaticRunID("fixed-run")}
	cmd := NewRunCommand(root)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, runModel(opts, dir, cmd))
	assert.Contains(t, out.String(), "(run fixed-run)")
}

func TestRun_WorkersSameResult(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	one, err := execute(t, "run", "-n", "5", "--run-id", "r", dir)
	require.NoError(t, err)
	four, err := execute(t, "--workers", "4", "run", "-n", "5", "--run-id", "r", dir)
	require.NoError(t, err)
	assert.Equal(t, one, four)
}

func TestRun_InvalidSteps(t *testing.T) {
	dir := writeModel(t, t.TempDir(), leakyModel)

	_, err := execute(t, "run", "--steps", "0", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_InvalidModel(t *testing.T) {
	dir := writeModel(t, t.TempDir(), undeclaredModel)

	_, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestOutputRunFailure(t *testing.T) {
	cause := &engine.StepError{
		Seq:    2,
		Index:  0,
		StepID: "integrate",
		Err:    ir.Errorf(ir.ErrCodeCapacityOverflow, "v", "buffer is fixed-size"),
	}
	result := RunResult{Model: "leaky", RunID: "run-3", Completed: 1}

	buf := &bytes.Buffer{}
	err := outputRunFailure(&OutputFormatter{Format: "json", Writer: buf}, result, cause)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "run-3", resp.RunID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(ir.ErrCodeCapacityOverflow), resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integrate", details["step"])
	assert.EqualValues(t, 2, details["seq"])

	buf.Reset()
	err = outputRunFailure(&OutputFormatter{Format: "text", Writer: buf}, result, cause)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "✗ Run run-3 failed after 1 step(s)")
	assert.Contains(t, buf.String(), "Error [CAPACITY_OVERFLOW]")
}

func TestOutputRunFailure_StaleAddressMap(t *testing.T) {
	cause := &engine.StepError{
		Seq:    1,
		StepID: "integrate",
		Err:    ir.Errorf(ir.ErrCodeStaleAddressMap, "v", "buffer changed since refresh"),
	}

	buf := &bytes.Buffer{}
	err := outputRunFailure(&OutputFormatter{Format: "json", Writer: buf}, RunResult{RunID: "run-4"}, cause)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(ir.ErrCodeStaleAddressMap), resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "hint")
}
