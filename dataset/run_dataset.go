package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/patrikhermansson/redis-hnsw/internal/registry"
)

// ThreadsEnv sets the number of query workers when Options.Threads is zero.
const ThreadsEnv = "HNSW_BENCH_NTRD"

// Options configures RunDataset.
type Options struct {
	Index      string          // index to create and load
	Dir        string          // dataset directory
	Params     registry.Params // index parameters; a zero Dimension is taken from the data
	K          int             // neighbors per query
	NumQueries int             // negative or too large runs every query in benchmark mode
	MaxResults int             // results printed per query
	Threads    int             // query workers
	BatchSize  int             // vectors per AddBatch call
	SkipLoad   bool            // query an index that is already loaded
	Out        io.Writer       // report destination, os.Stdout when nil
}

// QueryResult holds the results for a single query.
type QueryResult struct {
	Recall      float64
	Duration    time.Duration
	Predicted   string
	GroundTruth string
}

// Report summarizes a run.
type Report struct {
	Indexed         int
	Dimension       int
	Metric          string
	Queries         int
	AvgRecall       float64
	AvgResponseTime time.Duration
	LoadTime        time.Duration
	Overall         time.Duration
	Results         []QueryResult
}

func threadsFromEnv() int {
	if env := os.Getenv(ThreadsEnv); env != "" {
		if t, err := strconv.Atoi(env); err == nil && t > 0 {
			return t
		}
	}
	return 1
}

// Load creates the index on target and adds the training vectors in batches.
func Load(ctx context.Context, target Target, opts Options, vectors map[string][]float32) error {
	params := opts.Params
	if params.Dimension == 0 {
		for _, v := range vectors {
			params.Dimension = len(v)
			break
		}
	}
	if err := target.CreateIndex(ctx, opts.Index, params); err != nil {
		return fmt.Errorf("failed to create index %s: %w", opts.Index, err)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	rows := make([]int, 0, len(vectors))
	for name := range vectors {
		row, err := strconv.Atoi(name)
		if err != nil {
			return fmt.Errorf("unexpected node name %q", name)
		}
		rows = append(rows, row)
	}
	sort.Ints(rows)

	bar := progressbar.NewOptions64(int64(len(rows)),
		progressbar.OptionSetWriter(writerOr(opts.Out)),
		progressbar.OptionSetDescription("loading "+opts.Index),
		progressbar.OptionShowCount(),
	)
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := make(map[string][]float32, end-start)
		for _, row := range rows[start:end] {
			name := NodeName(row)
			batch[name] = vectors[name]
		}
		if err := target.AddBatch(ctx, opts.Index, batch); err != nil {
			return fmt.Errorf("failed to add rows %d-%d: %w", start, end-1, err)
		}
		_ = bar.Add(end - start)
	}
	_ = bar.Finish()
	return nil
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

// RunDataset loads the dataset in opts.Dir into target and runs kNN queries
// on a subset of the test queries, computing Recall@k and response times.
// If NumQueries is negative or exceeds the number of test vectors, all test
// vectors are used and a progress bar replaces the per-query output.
func RunDataset(ctx context.Context, target Target, opts Options) (*Report, error) {
	out := writerOr(opts.Out)
	fmt.Fprintf(out, "Loading dataset: %s\n", opts.Dir)
	overallStart := time.Now()
	report := &Report{}

	if !opts.SkipLoad {
		trainingVectors, err := LoadTrainingVectors(opts.Dir)
		if err != nil {
			return nil, err
		}
		if err := Load(ctx, target, opts, trainingVectors); err != nil {
			return nil, err
		}
	}
	report.LoadTime = time.Since(overallStart)

	ts, err := LoadTestDataset(opts.Dir)
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("Loaded %d test vectors", len(ts.Vectors))

	info, err := target.Info(ctx, opts.Index)
	if err != nil {
		return nil, err
	}
	report.Indexed, report.Dimension, report.Metric = info.NodeCount, info.Dimension, info.Metric
	fmt.Fprintf(out, "Indexed %d vectors (%d dimensions) in %.2fs; distance: %s\n",
		info.NodeCount, info.Dimension, report.LoadTime.Seconds(), info.Metric)

	numQueries := opts.NumQueries
	benchmarkMode := false
	if numQueries < 0 || numQueries > len(ts.Vectors) {
		numQueries = len(ts.Vectors)
		benchmarkMode = true
	}
	if numQueries == 0 {
		return nil, fmt.Errorf("dataset %s has no test queries", filepath.Base(opts.Dir))
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = threadsFromEnv()
	}
	fmt.Fprintf(out, "Running kNN queries (k=%d) on %d test vectors using %d threads\n", opts.K, numQueries, threads)

	results := make([]QueryResult, numQueries)
	var bar *progressbar.ProgressBar
	if benchmarkMode {
		bar = progressbar.NewOptions64(int64(numQueries),
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("querying"),
			progressbar.OptionShowCount(),
		)
	}

	tasks := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(tasks)
		for i := 0; i < numQueries; i++ {
			select {
			case tasks <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < threads; w++ {
		g.Go(func() error {
			for idx := range tasks {
				start := time.Now()
				res, err := target.Search(gctx, opts.Index, opts.K, ts.Vectors[idx])
				if err != nil {
					return fmt.Errorf("search error on query %d: %w", idx, err)
				}
				qr := QueryResult{
					Recall:   RecallAtK(res, ts.Neighbors[idx], opts.K),
					Duration: time.Since(start),
				}
				if !benchmarkMode {
					qr.Predicted = FormatResults(res, opts.MaxResults)
					qr.GroundTruth = FormatGroundTruth(ts.Neighbors[idx], ts.Distances[idx], opts.MaxResults)
				}
				results[idx] = qr
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var totalRecall float64
	var totalQueryTime time.Duration
	for _, res := range results {
		totalRecall += res.Recall
		totalQueryTime += res.Duration
	}
	report.Queries = numQueries
	report.AvgRecall = totalRecall / float64(numQueries)
	report.AvgResponseTime = totalQueryTime / time.Duration(numQueries)
	report.Results = results
	report.Overall = time.Since(overallStart)

	if !benchmarkMode {
		for i, res := range results {
			fmt.Fprintf(out, "Query #%d:\n", i+1)
			fmt.Fprintf(out, " -> Predicted:     %s\n", res.Predicted)
			fmt.Fprintf(out, " -> Ground-truth:  %s\n", res.GroundTruth)
			fmt.Fprintf(out, " -> Recall@%d:     %.2f, Response time: %v\n", opts.K, res.Recall, res.Duration)
		}
	}
	fmt.Fprintf(out, "Average Recall@%d over %d queries: %.2f\n", opts.K, numQueries, report.AvgRecall)
	fmt.Fprintf(out, "Average query response time: %v\n", report.AvgResponseTime)
	fmt.Fprintf(out, "Overall runtime: %v\n", report.Overall)
	return report, nil
}
