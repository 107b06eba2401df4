package cmd

import (
	"github.com/spf13/cobra"

	"github.com/patrikhermansson/redis-hnsw/dataset"
)

var (
	benchFlags      datasetFlags
	benchK          int
	benchQueries    int
	benchMaxResults int
	benchThreads    int
	benchSkipLoad   bool
)

var benchCmd = &cobra.Command{
	Use:   "bench <dataset-dir>",
	Short: "Load a dataset and measure Recall@k and query latency",
	Long: `bench loads train.csv into a new index (unless --skip-load is given) and
runs the queries in test.csv, comparing results with neighbors.csv.

A negative --queries runs every test query and only prints the summary.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := benchFlags.options(args[0])
		opts.K = benchK
		opts.NumQueries = benchQueries
		opts.MaxResults = benchMaxResults
		opts.Threads = benchThreads
		opts.SkipLoad = benchSkipLoad
		opts.Out = cmd.OutOrStdout()

		target, release, err := benchFlags.target(cmd.Context())
		if err != nil {
			return err
		}
		defer release()
		_, err = dataset.RunDataset(cmd.Context(), target, opts)
		return err
	},
}

func init() {
	benchFlags.register(benchCmd)
	benchCmd.Flags().IntVarP(&benchK, "k", "k", 10, "Neighbors per query")
	benchCmd.Flags().IntVar(&benchQueries, "queries", 10, "Queries to run; negative runs all")
	benchCmd.Flags().IntVar(&benchMaxResults, "max-results", 5, "Results printed per query")
	benchCmd.Flags().IntVar(&benchThreads, "threads", 0, "Query workers (0 reads $"+dataset.ThreadsEnv+")")
	benchCmd.Flags().BoolVar(&benchSkipLoad, "skip-load", false, "Query an index that is already loaded")
	rootCmd.AddCommand(benchCmd)
}
