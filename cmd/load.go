package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patrikhermansson/redis-hnsw/dataset"
)

var loadFlags datasetFlags

var loadCmd = &cobra.Command{
	Use:   "load <dataset-dir>",
	Short: "Create an index and load train.csv from a dataset directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := loadFlags.options(args[0])
		opts.Out = cmd.OutOrStdout()
		vectors, err := dataset.LoadTrainingVectors(opts.Dir)
		if err != nil {
			return err
		}
		target, release, err := loadFlags.target(cmd.Context())
		if err != nil {
			return err
		}
		defer release()
		if err := dataset.Load(cmd.Context(), target, opts, vectors); err != nil {
			return err
		}
		info, err := target.Info(cmd.Context(), opts.Index)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nIndex %s holds %d vectors (%d dimensions, %s)\n",
			info.Name, info.NodeCount, info.Dimension, info.Metric)
		return nil
	},
}

func init() {
	loadFlags.register(loadCmd)
	rootCmd.AddCommand(loadCmd)
}
