// Package config loads server settings from defaults, an optional TOML file
// and HNSW_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/patrikhermansson/redis-hnsw/core"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "HNSW_"

// Storage backends.
const (
	StoragePebble = "pebble"
	StorageMemory = "memory"
)

// IndexConfig holds the defaults for indices created without explicit parameters.
type IndexConfig struct {
	Dimension      int    `toml:"dim"`
	M              int    `toml:"m"`
	EfConstruction int    `toml:"ef_construction"`
	Metric         string `toml:"metric"`
}

// Config is the full server configuration.
type Config struct {
	Addr        string      `toml:"addr"`
	MetricsAddr string      `toml:"metrics_addr"` // empty disables the metrics endpoint
	Storage     string      `toml:"storage"`
	DataDir     string      `toml:"data_dir"`
	Sync        bool        `toml:"sync"`
	CacheSize   int64       `toml:"cache_size"`
	RateLimit   float64     `toml:"rate_limit"` // commands per second, 0 disables limiting
	RateBurst   int         `toml:"rate_burst"`
	LogLevel    string      `toml:"log_level"` // empty follows DEBUG_HNSW
	Index       IndexConfig `toml:"index"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:        "127.0.0.1:6379",
		MetricsAddr: "127.0.0.1:9121",
		Storage:     StoragePebble,
		DataDir:     "data",
		CacheSize:   64 << 20,
		RateBurst:   100,
		Index: IndexConfig{
			Dimension:      512,
			M:              5,
			EfConstruction: 200,
			Metric:         core.DefaultDistance,
		},
	}
}

// Load builds a configuration from defaults, the TOML file at path (skipped
// when path is empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from HNSW_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":         &c.Addr,
		"METRICS_ADDR": &c.MetricsAddr,
		"STORAGE":      &c.Storage,
		"DATA_DIR":     &c.DataDir,
		"LOG_LEVEL":    &c.LogLevel,
		"INDEX_METRIC": &c.Index.Metric,
	}
	for key, target := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*target = strings.TrimSpace(v)
		}
	}
	ints := map[string]*int{
		"RATE_BURST":            &c.RateBurst,
		"INDEX_DIM":             &c.Index.Dimension,
		"INDEX_M":               &c.Index.M,
		"INDEX_EF_CONSTRUCTION": &c.Index.EfConstruction,
	}
	for key, target := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
			}
			*target = n
		}
	}
	if v, ok := lookup(EnvPrefix + "CACHE_SIZE"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sCACHE_SIZE: %w", EnvPrefix, err)
		}
		c.CacheSize = n
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %sRATE_LIMIT: %w", EnvPrefix, err)
		}
		c.RateLimit = f
	}
	if v, ok := lookup(EnvPrefix + "SYNC"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %sSYNC: %w", EnvPrefix, err)
		}
		c.Sync = b
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePebble:
		if c.DataDir == "" {
			errs = append(errs, errors.New("data_dir is required for pebble storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	if c.CacheSize < 0 {
		errs = append(errs, errors.New("cache_size must not be negative"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, errors.New("rate_burst must be positive when rate_limit is set"))
	}
	if _, err := core.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Index.Dimension <= 0 {
		errs = append(errs, errors.New("index.dim must be positive"))
	}
	if c.Index.M < 2 {
		errs = append(errs, errors.New("index.m must be at least 2"))
	}
	if c.Index.EfConstruction < 1 {
		errs = append(errs, errors.New("index.ef_construction must be positive"))
	}
	if _, ok := core.LookupDistance(c.Index.Metric); !ok {
		errs = append(errs, fmt.Errorf("unknown index.metric %q", c.Index.Metric))
	}
	return errors.Join(errs...)
}

// Write encodes c as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
