package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrikhermansson/redis-hnsw/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 512, cfg.Index.Dimension)
	assert.Equal(t, 5, cfg.Index.M)
	assert.Equal(t, 200, cfg.Index.EfConstruction)
	assert.Equal(t, "euclidean", cfg.Index.Metric)
	assert.Equal(t, config.StoragePebble, cfg.Storage)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hnsw.toml")
	content := `
addr = "0.0.0.0:7000"
storage = "memory"
rate_limit = 50.0

[index]
dim = 128
metric = "cosine"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("HNSW_INDEX_M", "16")
	t.Setenv("HNSW_SYNC", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Addr)
	assert.Equal(t, config.StorageMemory, cfg.Storage)
	assert.Equal(t, 50.0, cfg.RateLimit)
	assert.Equal(t, 128, cfg.Index.Dimension)
	assert.Equal(t, "cosine", cfg.Index.Metric)
	assert.Equal(t, 16, cfg.Index.M)
	assert.Equal(t, 200, cfg.Index.EfConstruction, "unset keys keep defaults")
	assert.True(t, cfg.Sync)
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("addr = ["), 0o600))
	_, err = config.Load(path)
	assert.Error(t, err)

	t.Setenv("HNSW_RATE_BURST", "many")
	_, err = config.Load("")
	assert.ErrorContains(t, err, "HNSW_RATE_BURST")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = "tape"
	cfg.Index.M = 1
	cfg.Index.Metric = "hamming"
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"tape", "index.m", "hamming", "loud"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg = config.Default()
	cfg.Storage = config.StorageMemory
	cfg.DataDir = ""
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HNSW_ADDR":       "127.0.0.1:1",
		"HNSW_CACHE_SIZE": "1024",
		"HNSW_RATE_LIMIT": "2.5",
	}
	cfg := config.Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, "127.0.0.1:1", cfg.Addr)
	assert.Equal(t, int64(1024), cfg.CacheSize)
	assert.Equal(t, 2.5, cfg.RateLimit)
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Dimension = 3
	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))
	assert.Contains(t, buf.String(), "ef_construction = 200")

	path := filepath.Join(t.TempDir(), "out.toml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
