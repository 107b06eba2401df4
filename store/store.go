// Package store persists index and node records in a flat key-value keyspace.
// Two backends are provided: an in-memory map and a pebble database on disk.
package store

import "errors"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Batch groups puts and deletes that are applied atomically.
type Batch struct {
	Puts    map[string][]byte
	Deletes []string
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{Puts: make(map[string][]byte)}
}

// Put records a write. A later Put of the same key wins.
func (b *Batch) Put(key string, value []byte) {
	b.Puts[key] = value
}

// Delete records a removal. Deletes are applied after puts.
func (b *Batch) Delete(key string) {
	b.Deletes = append(b.Deletes, key)
}

// Len returns the number of operations in the batch.
func (b *Batch) Len() int {
	return len(b.Puts) + len(b.Deletes)
}

// Store is the keyspace the registry persists into.
type Store interface {
	// Get returns the value stored under key, or nil when the key is absent.
	Get(key string) ([]byte, error)
	Exists(key string) (bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Write applies every operation in b atomically.
	Write(b *Batch) error
	Close() error
}
