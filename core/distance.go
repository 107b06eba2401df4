package core

import (
	"math"
)

// Distances is a map of human–readable names to distance functions.
// You can use it to choose a distance metric by name.
var Distances = map[string]DistanceFunc{
	"euclidean":         Euclidean,
	"squared_euclidean": SquaredEuclidean,
	"manhattan":         Manhattan,
	"cosine":            CosineDistance,
	"angular":           AngularDistance,
}

// DefaultDistance is the metric used when an index does not name one.
const DefaultDistance = "euclidean"

// LookupDistance returns the distance function registered under name.
func LookupDistance(name string) (DistanceFunc, bool) {
	fn, ok := Distances[name]
	return fn, ok
}

// NormalizesInput reports whether vectors should be unit-normalized before
// they are stored under the given metric.
func NormalizesInput(name string) bool {
	return name == "cosine" || name == "angular"
}

func checkPair(a, b []float32) {
	if len(a) == 0 || len(b) == 0 {
		panic("vectors must not be empty")
	}
	if len(a) != len(b) {
		panic("vectors must have the same length")
	}
}

// Euclidean computes the Euclidean (L2) distance between two vectors.
func Euclidean(a, b []float32) float64 {
	return math.Sqrt(SquaredEuclidean(a, b))
}

// SquaredEuclidean computes the squared Euclidean distance between two vectors.
func SquaredEuclidean(a, b []float32) float64 {
	checkPair(a, b)
	var s0, s1, s2, s3 float64
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := float64(a[i] - b[i])
		d1 := float64(a[i+1] - b[i+1])
		d2 := float64(a[i+2] - b[i+2])
		d3 := float64(a[i+3] - b[i+3])
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < n; i++ {
		d := float64(a[i] - b[i])
		s0 += d * d
	}
	return s0 + s1 + s2 + s3
}

// Manhattan computes the Manhattan (L1) distance between two vectors.
func Manhattan(a, b []float32) float64 {
	checkPair(a, b)
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i] - b[i]))
	}
	return sum
}

// dotAndNorms returns the dot product of a and b along with both squared norms.
func dotAndNorms(a, b []float32) (dot, na, nb float64) {
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot, na, nb
}

// cosineSimilarity is clamped to [-1, 1]; a zero vector has similarity 0.
func cosineSimilarity(a, b []float32) float64 {
	checkPair(a, b)
	dot, na, nb := dotAndNorms(a, b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// CosineDistance computes the cosine distance (1 - cosine similarity) between two vectors.
func CosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

// AngularDistance computes the angle in radians between two vectors.
func AngularDistance(a, b []float32) float64 {
	return math.Acos(cosineSimilarity(a, b))
}
