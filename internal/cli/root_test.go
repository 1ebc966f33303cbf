package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepc/internal/testutil"
)

const leakyModel = `package leaky

model: {
	name: "leaky"
	variables: {
		v:   {size: 4, volatile: true}
		I:   {value: 1}
		tau: {value: 1}
		dt:  {value: 0.5}
	}
	code: integrate: {statements: ["v = v + dt*(I-v)/tau"], size: "v"}
	clock: "t"
	dt:    0.5
}
`

// writeModel writes src as the model directory dir/leaky.
func writeModel(t *testing.T, dir, src string) string {
	t.Helper()
	return testutil.WriteModel(t, dir, "leaky", src)
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "stepc", cmd.Use)
	assert.Contains(t, cmd.Long, "cached code objects")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"compile"}, {"validate"}, {"run"}, {"test"}, {"cache", "list"}, {"cache", "show"}} {
		t.Run(path[len(path)-1], func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	flags := cmd.PersistentFlags()

	tests := []struct{ name, shorthand, def string }{
		{"verbose", "v", "false"},
		{"format", "", "text"},
		{"cache-dir", "", ""},
		{"workers", "", "1"},
		{"max-entries", "", "0"},
	}
	for _, tt := range tests {
		f := flags.Lookup(tt.name)
		require.NotNil(t, f, tt.name)
		assert.Equal(t, tt.shorthand, f.Shorthand, tt.name)
		assert.Equal(t, tt.def, f.DefValue, tt.name)
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	find := func(name string) *cobra.Command {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		return sub
	}

	assert.Equal(t, "o", find("compile").Flags().Lookup("output").Shorthand)
	assert.NotNil(t, find("compile").Flags().Lookup("listing"))
	assert.Equal(t, "1", find("run").Flags().Lookup("steps").DefValue)
	assert.NotNil(t, find("run").Flags().Lookup("run-id"))
	assert.Equal(t, "false", find("test").Flags().Lookup("update").DefValue)
	assert.NotNil(t, find("test").Flags().Lookup("filter"))
	assert.NotNil(t, find("test").Flags().Lookup("golden-dir"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "invalid", "validate", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestWorkersValidation(t *testing.T) {
	_, err := execute(t, "--workers", "0", "validate", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid workers")
}
