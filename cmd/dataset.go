package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/patrikhermansson/redis-hnsw/client"
	"github.com/patrikhermansson/redis-hnsw/dataset"
)

// datasetFlags are shared by load and bench.
type datasetFlags struct {
	index     string
	remote    string
	m         int
	ef        int
	metric    string
	batchSize int
}

func (f *datasetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.index, "index", "", "Index name (defaults to the dataset directory name)")
	cmd.Flags().StringVar(&f.remote, "remote", "", "Server address; empty uses the configured store directly")
	cmd.Flags().IntVar(&f.m, "m", 0, "Neighbors per node (0 uses the configured default)")
	cmd.Flags().IntVar(&f.ef, "ef", 0, "ef_construction (0 uses the configured default)")
	cmd.Flags().StringVar(&f.metric, "metric", "", "Distance metric (empty uses the configured default)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 1000, "Vectors per insert batch")
}

// options builds dataset options for dir. Dimension is left to the data.
func (f *datasetFlags) options(dir string) dataset.Options {
	index := f.index
	if index == "" {
		index = filepath.Base(filepath.Clean(dir))
	}
	params := indexParams(cfg.Index)
	params.Dimension = 0
	if f.m > 0 {
		params.M = f.m
	}
	if f.ef > 0 {
		params.EfConstruction = f.ef
	}
	if f.metric != "" {
		params.Metric = f.metric
	}
	return dataset.Options{
		Index:     index,
		Dir:       dir,
		Params:    params,
		BatchSize: f.batchSize,
	}
}

// target opens the local registry or connects to a server. The returned
// function releases it.
func (f *datasetFlags) target(ctx context.Context) (dataset.Target, func() error, error) {
	if f.remote != "" {
		opts := client.DefaultOptions()
		opts.Addr = f.remote
		c, err := client.Dial(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		return dataset.RemoteTarget{Client: c}, c.Close, nil
	}
	reg, err := openRegistry()
	if err != nil {
		return nil, nil, err
	}
	return dataset.LocalTarget{Registry: reg}, reg.Close, nil
}
