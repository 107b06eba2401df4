package core

import (
	"math"
	"sync"
)

// NormalizeVector scales vec in place to unit length. Zero vectors are left untouched.
func NormalizeVector(vec []float32) {
	if len(vec) == 0 {
		return
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}

// NormalizeBatch normalizes multiple vectors in a batch using goroutines.
func NormalizeBatch(vecs [][]float32) {
	if len(vecs) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(vecs))
	for i := range vecs {
		go func(i int) {
			defer wg.Done()
			NormalizeVector(vecs[i])
		}(i)
	}

	// Wait for all go routines to finish.
	wg.Wait()
}

// CloneVector returns a copy of vec.
func CloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
