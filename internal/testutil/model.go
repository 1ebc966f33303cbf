package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteModel writes src as dir/name/model.cue and returns dir/name.
func WriteModel(t testing.TB, dir, name, src string) string {
	t.Helper()
	modelDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "model.cue"), []byte(src), 0o644))
	return modelDir
}
