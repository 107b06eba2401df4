package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func writeTrain(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "grid")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "%d,%d,%d\n", i, i%5, i%3)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.csv"), []byte(sb.String()), 0o600))
	return dir
}

func TestVersion(t *testing.T) {
	out := run(t, "version")
	assert.Contains(t, out, "redis-hnsw dev")
	assert.Contains(t, out, "CPU:")
}

func TestConfigOutput(t *testing.T) {
	t.Setenv("HNSW_INDEX_DIM", "64")
	out := run(t, "config")
	assert.Contains(t, out, "dim = 64")
	assert.Contains(t, out, "storage = ")
	assert.Contains(t, out, "pebble")
}

func TestLoadSnapshotRoundTrip(t *testing.T) {
	t.Setenv("HNSW_SEED", "4")
	t.Setenv("HNSW_DATA_DIR", filepath.Join(t.TempDir(), "a"))
	dir := writeTrain(t)

	out := run(t, "load", dir, "--m", "4", "--ef", "32")
	assert.Contains(t, out, "Index grid holds 40 vectors (3 dimensions, euclidean)")

	out = run(t, "indices")
	assert.Contains(t, out, "grid\t40 nodes\tdim=3\tm=4\tef=32")

	file := filepath.Join(t.TempDir(), "grid.snap")
	out = run(t, "snapshot", "export", file)
	assert.Contains(t, out, "Exported 1 indices (41 keys)")

	t.Setenv("HNSW_DATA_DIR", filepath.Join(t.TempDir(), "b"))
	out = run(t, "snapshot", "import", file)
	assert.Contains(t, out, "Imported 1 indices (41 keys)")
	out = run(t, "indices")
	assert.Contains(t, out, "grid\t40 nodes")
}
