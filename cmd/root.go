// Package cmd implements the redis-hnsw command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/patrikhermansson/redis-hnsw/core"
	"github.com/patrikhermansson/redis-hnsw/internal/config"
	"github.com/patrikhermansson/redis-hnsw/internal/registry"
	"github.com/patrikhermansson/redis-hnsw/store"
)

var (
	// configPath is the optional TOML configuration file
	configPath string
	// logLevel overrides the configured log level
	logLevel string
	// cfg is the effective configuration, loaded before any command runs
	cfg config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "redis-hnsw",
	Short: "HNSW vector index served over the Redis protocol",
	Long: `redis-hnsw keeps HNSW approximate nearest neighbour indices in memory,
persists them to a key-value store and serves the hnsw.* command set over RESP.

Examples:
  # Start the server with an on-disk store
  redis-hnsw serve --data-dir ./data

  # Load an ANN-benchmarks dataset into a running server
  redis-hnsw load ./datasets/fashion-mnist --index fashion --remote 127.0.0.1:6379

  # Measure recall against the same server
  redis-hnsw bench ./datasets/fashion-mnist --index fashion --remote 127.0.0.1:6379 --skip-load`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and runs it.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, off); defaults to $DEBUG_HNSW")
}

// setup loads the configuration and configures logging.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := core.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}

// openStore opens the configured keyspace.
func openStore(c config.Config) (store.Store, error) {
	switch c.Storage {
	case config.StorageMemory:
		log.Warn().Msg("Using in-memory storage; indices are lost on exit")
		return store.NewMemoryStore(), nil
	default:
		if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
			return nil, err
		}
		return store.OpenPebble(c.DataDir, store.PebbleOptions{
			Sync:      c.Sync,
			CacheSize: c.CacheSize,
		})
	}
}

// indexParams converts the configured index defaults.
func indexParams(c config.IndexConfig) registry.Params {
	return registry.Params{
		Dimension:      c.Dimension,
		M:              c.M,
		EfConstruction: c.EfConstruction,
		Metric:         c.Metric,
	}
}

// openRegistry opens the configured store and wraps it in a registry.
func openRegistry() (*registry.Registry, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	return registry.NewWithDefaults(s, indexParams(cfg.Index)), nil
}
