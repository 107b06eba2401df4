package core

// DistanceFunc computes the distance between two vectors.
// a: the first vector.
// b: the second vector.
// Returns the computed distance as a float64.
type DistanceFunc func(a, b []float32) float64

// Neighbor holds a neighbor's name and its computed distance.
type Neighbor struct {
	Name     string
	Distance float64
}

// IndexStats contains metadata about the index.
type IndexStats struct {
	Count     int    // total number of indexed vectors
	Dimension int    // dimensionality of vectors
	Layers    int    // number of graph layers
	Distance  string // name of the distance metric
}
