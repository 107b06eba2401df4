// Package snapshot exports and imports a store's indices as a single
// zstd-compressed stream.
package snapshot

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/redis-hnsw/hnsw"
	"github.com/patrikhermansson/redis-hnsw/store"
)

// Version is written in the header of every snapshot.
const Version = 1

// importBatchSize bounds the number of keys written per store batch.
const importBatchSize = 1024

var (
	// ErrVersion is returned for snapshots written by an unknown format version.
	ErrVersion = errors.New("unsupported snapshot version")
	// ErrIndexExists is returned when an imported index is already present.
	ErrIndexExists = errors.New("index already exists")
	// ErrForeignKey is returned for an entry that belongs to no index named
	// in the snapshot header.
	ErrForeignKey = errors.New("key outside the snapshot's indices")
)

// header opens the stream.
type header struct {
	Version int
	Indices []string
}

// entry is one key/value pair. An empty key ends the stream.
type entry struct {
	Key   string
	Value []byte
}

// Stats summarizes an export or import.
type Stats struct {
	Indices int
	Keys    int
}

// Export writes the named indices (all of them when names is empty) to w.
func Export(s store.Store, w io.Writer, names ...string) (Stats, error) {
	var stats Stats
	if len(names) == 0 {
		var err error
		if names, err = store.LoadCatalog(s); err != nil {
			return stats, err
		}
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return stats, err
	}
	enc := gob.NewEncoder(zw)
	if err := enc.Encode(header{Version: Version, Indices: names}); err != nil {
		zw.Close()
		return stats, fmt.Errorf("failed to write snapshot header: %w", err)
	}

	for _, name := range names {
		n, err := exportIndex(s, enc, name)
		if err != nil {
			zw.Close()
			return stats, err
		}
		stats.Indices++
		stats.Keys += n
		log.Debug().Msgf("Exported index %s (%d keys)", name, n)
	}
	if err := enc.Encode(entry{}); err != nil {
		zw.Close()
		return stats, err
	}
	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("failed to finish snapshot: %w", err)
	}
	return stats, nil
}

func exportIndex(s store.Store, enc *gob.Encoder, name string) (int, error) {
	key := store.IndexKey(name)
	data, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, fmt.Errorf("index %s is listed in the catalog but missing", name)
	}
	var rec hnsw.IndexRecord
	if err := store.Decode(data, &rec); err != nil {
		return 0, err
	}
	if err := enc.Encode(entry{Key: key, Value: data}); err != nil {
		return 0, err
	}
	keys := 1
	for _, node := range rec.Nodes {
		nodeKey := store.NodeKey(name, node)
		value, err := s.Get(nodeKey)
		if err != nil {
			return keys, err
		}
		if value == nil {
			return keys, fmt.Errorf("node %s of index %s is missing", node, name)
		}
		if err := enc.Encode(entry{Key: nodeKey, Value: value}); err != nil {
			return keys, err
		}
		keys++
	}
	return keys, nil
}

// Import reads a snapshot from r into s. Indices already present in s are
// rejected before anything is written.
func Import(s store.Store, r io.Reader) (Stats, error) {
	var stats Stats
	zr, err := zstd.NewReader(r)
	if err != nil {
		return stats, err
	}
	defer zr.Close()
	dec := gob.NewDecoder(zr)

	var h header
	if err := dec.Decode(&h); err != nil {
		return stats, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if h.Version != Version {
		return stats, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	existing, err := store.LoadCatalog(s)
	if err != nil {
		return stats, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		known[name] = struct{}{}
	}
	imported := make(map[string]struct{}, len(h.Indices))
	for _, name := range h.Indices {
		if !store.ValidIndexName(name) {
			return stats, fmt.Errorf("invalid index name %q in snapshot header", name)
		}
		imported[name] = struct{}{}
		if _, ok := known[name]; ok {
			return stats, fmt.Errorf("%w: %s", ErrIndexExists, name)
		}
		if ok, err := s.Exists(store.IndexKey(name)); err != nil {
			return stats, err
		} else if ok {
			return stats, fmt.Errorf("%w: %s", ErrIndexExists, name)
		}
	}

	b := store.NewBatch()
	for {
		var e entry
		if err := dec.Decode(&e); err != nil {
			return stats, fmt.Errorf("failed to read snapshot entry: %w", err)
		}
		if e.Key == "" {
			break
		}
		// Batches already written only hold keys of the new indices, which
		// stay invisible until the catalog lists them.
		if name, ok := store.IndexOfKey(e.Key); !ok {
			return stats, fmt.Errorf("%w: %s", ErrForeignKey, e.Key)
		} else if _, ok := imported[name]; !ok {
			return stats, fmt.Errorf("%w: %s", ErrForeignKey, e.Key)
		}
		b.Put(e.Key, e.Value)
		stats.Keys++
		if b.Len() >= importBatchSize {
			if err := s.Write(b); err != nil {
				return stats, err
			}
			b = store.NewBatch()
		}
	}
	// The catalog goes last so a partial import never lists an incomplete index.
	if err := store.PutCatalog(b, append(existing, h.Indices...)); err != nil {
		return stats, err
	}
	if err := s.Write(b); err != nil {
		return stats, err
	}
	stats.Indices = len(h.Indices)
	log.Info().Msgf("Imported %d indices (%d keys)", stats.Indices, stats.Keys)
	return stats, nil
}
