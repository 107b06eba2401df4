package store

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// KeyPrefix starts every key owned by an index.
	KeyPrefix = "hnsw"
	// CatalogKey holds the sorted list of index names. It uses ':' so it can
	// never collide with an index key.
	CatalogKey = "hnsw:catalog"
)

// IndexKey returns the key of an index record, e.g. "hnsw.songs".
func IndexKey(index string) string {
	return KeyPrefix + "." + index
}

// NodeKey returns the key of a node record, e.g. "hnsw.songs.42".
func NodeKey(index, node string) string {
	return IndexKey(index) + "." + node
}

// IndexOfKey returns the index that owns an index or node key.
func IndexOfKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, KeyPrefix+".")
	if !ok {
		return "", false
	}
	name, _, _ := strings.Cut(rest, ".")
	return name, ValidIndexName(name)
}

// ValidIndexName reports whether name can be used as an index name.
// Names may not be empty or contain '.', which separates key segments.
func ValidIndexName(name string) bool {
	return name != "" && !strings.Contains(name, ".")
}

// LoadCatalog returns the index names recorded in s.
func LoadCatalog(s Store) ([]string, error) {
	data, err := s.Get(CatalogKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var names []string
	if err := Decode(data, &names); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return names, nil
}

// PutCatalog stages the catalog holding names into b.
func PutCatalog(b *Batch, names []string) error {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	data, err := Encode(sorted)
	if err != nil {
		return err
	}
	b.Put(CatalogKey, data)
	return nil
}
