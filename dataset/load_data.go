// Package dataset loads ANN-benchmark style CSV datasets and measures recall
// of an index built from them.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// The files making up a dataset directory. None of them has a header row.
const (
	TrainFile     = "train.csv"     // vectors to add to the index
	TestFile      = "test.csv"      // query vectors, not added to the index
	NeighborsFile = "neighbors.csv" // expected neighbor row numbers per query
	DistancesFile = "distances.csv" // expected distances per query
)

// NodeName returns the node name used for a training row. Rows are
// 0-indexed to match the ground-truth files.
func NodeName(row int) string {
	return strconv.Itoa(row)
}

// TestSet holds the queries of a dataset with their ground truth.
type TestSet struct {
	Vectors   [][]float32
	Neighbors [][]int
	Distances [][]float64
}

// readCSV is a generic CSV reader for types: int, float32, and float64.
func readCSV[T int | float32 | float64](path string, skipHeader bool) ([][]T, error) {
	log.Debug().Msgf("Opening CSV file: %s", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.ReuseRecord = true
	var result [][]T

	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read error in %s: %w", path, err)
		}
		if skipHeader {
			skipHeader = false
			continue
		}
		row := make([]T, len(record))
		for i, val := range record {
			parsed, err := parseValue[T](val)
			if err != nil {
				return nil, fmt.Errorf("parse error at line %d col %d in %s: %w", line, i, path, err)
			}
			row[i] = parsed
		}
		result = append(result, row)
	}

	log.Debug().Msgf("Parsed %d rows from %s", len(result), path)
	return result, nil
}

// parseValue converts a string to T (int, float32, or float64).
func parseValue[T int | float32 | float64](s string) (T, error) {
	s = strings.TrimSpace(s)
	var zero T
	switch any(zero).(type) {
	case int:
		v, err := strconv.Atoi(s)
		return any(v).(T), err
	case float32:
		v, err := strconv.ParseFloat(s, 32)
		return any(float32(v)).(T), err
	case float64:
		v, err := strconv.ParseFloat(s, 64)
		return any(v).(T), err
	default:
		return zero, fmt.Errorf("unsupported type %T", zero)
	}
}

// LoadVectors reads float32 vectors from a CSV file, keyed by node name.
func LoadVectors(path string, skipHeader bool) (map[string][]float32, error) {
	rows, err := readCSV[float32](path, skipHeader)
	if err != nil {
		return nil, err
	}
	m := make(map[string][]float32, len(rows))
	for row, vec := range rows {
		m[NodeName(row)] = vec
	}
	return m, nil
}

// LoadTrainingVectors loads training vectors from train.csv in dir.
func LoadTrainingVectors(dir string) (map[string][]float32, error) {
	trainPath := filepath.Join(dir, TrainFile)
	log.Info().Msgf("Loading training vectors from: %s", trainPath)
	m, err := LoadVectors(trainPath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", TrainFile, err)
	}
	log.Info().Msgf("Loaded %d training vectors from %s", len(m), trainPath)
	return m, nil
}

// LoadTestDataset loads the test vectors and ground-truth data from dir.
func LoadTestDataset(dir string) (*TestSet, error) {
	testPath := filepath.Join(dir, TestFile)
	neighborsPath := filepath.Join(dir, NeighborsFile)
	distancesPath := filepath.Join(dir, DistancesFile)
	var ts TestSet
	var err error

	log.Info().Msgf("Loading test vectors from: %s", testPath)
	if ts.Vectors, err = readCSV[float32](testPath, false); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", TestFile, err)
	}

	log.Info().Msgf("Loading ground-truth neighbors from: %s", neighborsPath)
	if ts.Neighbors, err = readCSV[int](neighborsPath, false); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", NeighborsFile, err)
	}

	log.Info().Msgf("Loading ground-truth distances from: %s", distancesPath)
	if ts.Distances, err = readCSV[float64](distancesPath, false); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", DistancesFile, err)
	}

	if len(ts.Neighbors) < len(ts.Vectors) || len(ts.Distances) < len(ts.Vectors) {
		return nil, fmt.Errorf("ground truth covers %d/%d of %d queries",
			len(ts.Neighbors), len(ts.Distances), len(ts.Vectors))
	}
	return &ts, nil
}
