package hnsw

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNodeExists is returned when adding a node whose name is already indexed.
	ErrNodeExists = errors.New("node already exists")
	// ErrNodeNotFound is returned when a named node is not part of the index.
	ErrNodeNotFound = errors.New("node does not exist")
	// ErrIndexEmpty is returned when searching an index without nodes.
	ErrIndexEmpty = errors.New("index is empty")
	// ErrInvalidParameter is returned for out of range construction or query parameters.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrCorruptRecord is returned when persisted records do not describe a consistent graph.
	ErrCorruptRecord = errors.New("corrupt index record")
)
