package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"
)

// PebbleOptions tunes the on-disk store.
type PebbleOptions struct {
	Sync      bool  // fsync every write
	CacheSize int64 // block cache size in bytes, 0 keeps pebble's default
}

// PebbleStore persists the keyspace in a pebble database.
type PebbleStore struct {
	mu        sync.RWMutex
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

// OpenPebble opens (or creates) a pebble database at path.
func OpenPebble(path string, opts PebbleOptions) (*PebbleStore, error) {
	dbOpts := &pebble.Options{}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		dbOpts.Cache = cache
	}
	db, err := pebble.Open(path, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}
	log.Info().Msgf("Opened pebble store at %s (sync=%t)", path, opts.Sync)
	return &PebbleStore{db: db, writeOpts: writeOpts}, nil
}

func (s *PebbleStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()
	// pebble reuses the buffer once closer is closed.
	data := make([]byte, len(value))
	copy(data, value)
	return data, nil
}

func (s *PebbleStore) Exists(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return false, ErrClosed
	}
	_, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

func (s *PebbleStore) Put(key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Set([]byte(key), value, s.writeOpts)
}

func (s *PebbleStore) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Delete([]byte(key), s.writeOpts)
}

func (s *PebbleStore) Write(b *Batch) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for k, v := range b.Puts {
		if err := batch.Set([]byte(k), v, nil); err != nil {
			return fmt.Errorf("failed to stage %s: %w", k, err)
		}
	}
	for _, k := range b.Deletes {
		if err := batch.Delete([]byte(k), nil); err != nil {
			return fmt.Errorf("failed to stage delete of %s: %w", k, err)
		}
	}
	return batch.Commit(s.writeOpts)
}

// Flush forces the memtable to disk.
func (s *PebbleStore) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Flush()
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if err := s.db.Flush(); err != nil {
		log.Warn().Msgf("Failed to flush pebble store on close: %v", err)
	}
	err := s.db.Close()
	s.db = nil
	return err
}
