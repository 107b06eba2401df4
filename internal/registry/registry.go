// Package registry owns the process-wide set of HNSW indices and keeps them in
// step with their persisted records.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/patrikhermansson/redis-hnsw/core"
	"github.com/patrikhermansson/redis-hnsw/hnsw"
	"github.com/patrikhermansson/redis-hnsw/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// The messages of these errors complete the key they are wrapped with,
// e.g. "Index: hnsw.songs already exists".
var (
	ErrIndexExists   = errors.New("already exists")
	ErrIndexNotFound = errors.New("does not exist")
	ErrNodeNotFound  = errors.New("does not exist")
	ErrInvalidName   = errors.New("invalid index name")
)

// Params configures a new index. Zero fields take the registry defaults.
type Params struct {
	Dimension      int
	M              int
	EfConstruction int
	Metric         string
}

// DefaultParams are used for fields left unset in NewIndex.
var DefaultParams = Params{
	Dimension:      512,
	M:              5,
	EfConstruction: 200,
	Metric:         core.DefaultDistance,
}

// withDefaults fills the zero fields of p from d.
func (p Params) withDefaults(d Params) Params {
	if p.Dimension == 0 {
		p.Dimension = d.Dimension
	}
	if p.M == 0 {
		p.M = d.M
	}
	if p.EfConstruction == 0 {
		p.EfConstruction = d.EfConstruction
	}
	if p.Metric == "" {
		p.Metric = d.Metric
	}
	return p
}

// entry serializes writers of one index.
type entry struct {
	mu      sync.Mutex
	index   *hnsw.HNSWIndex
	deleted bool
}

// Registry maps index names to loaded indices. Indices found in the store
// are restored on first use.
type Registry struct {
	mu       sync.Mutex
	store    store.Store
	indices  map[string]*entry
	loads    singleflight.Group // concurrent restores of one index share a load
	defaults Params
}

// New creates a registry over s using DefaultParams.
func New(s store.Store) *Registry {
	return NewWithDefaults(s, DefaultParams)
}

// NewWithDefaults creates a registry over s with custom defaults.
func NewWithDefaults(s store.Store, defaults Params) *Registry {
	return &Registry{
		store:    s,
		indices:  make(map[string]*entry),
		defaults: defaults.withDefaults(DefaultParams),
	}
}

// Defaults returns the parameters applied to omitted NewIndex fields.
func (r *Registry) Defaults() Params {
	return r.defaults
}

func indexNotFound(name string) error {
	return fmt.Errorf("Index: %s %w", store.IndexKey(name), ErrIndexNotFound)
}

func nodeNotFound(index, node string) error {
	return fmt.Errorf("Node: %s %w", store.NodeKey(index, node), ErrNodeNotFound)
}

// lookup returns the entry for name, restoring it from the store if needed.
// Restores run without the registry lock so other indices stay available.
func (r *Registry) lookup(name string) (*entry, error) {
	if e := r.loaded(name); e != nil {
		return e, nil
	}
	v, err, _ := r.loads.Do(name, func() (interface{}, error) {
		if e := r.loaded(name); e != nil {
			return e, nil
		}
		index, err := r.restore(name)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if e, ok := r.indices[name]; ok {
			return e, nil
		}
		e := &entry{index: index}
		r.indices[name] = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (r *Registry) loaded(name string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indices[name]
}

// restore rebuilds an index from its persisted records.
func (r *Registry) restore(name string) (*hnsw.HNSWIndex, error) {
	if !store.ValidIndexName(name) {
		return nil, indexNotFound(name)
	}
	data, err := r.store.Get(store.IndexKey(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", name, err)
	}
	if data == nil {
		return nil, indexNotFound(name)
	}
	var rec hnsw.IndexRecord
	if err := store.Decode(data, &rec); err != nil {
		return nil, err
	}
	index, err := hnsw.Restore(rec, func(node string) (*hnsw.NodeRecord, error) {
		data, err := r.store.Get(store.NodeKey(name, node))
		if err != nil || data == nil {
			return nil, err
		}
		var nr hnsw.NodeRecord
		if err := store.Decode(data, &nr); err != nil {
			return nil, err
		}
		return &nr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load index %s: %w", name, err)
	}
	log.Info().Msgf("Loaded index %s with %d nodes from store", name, index.Len())
	return index, nil
}

// acquire returns the locked entry for name. The caller must unlock it.
func (r *Registry) acquire(name string) (*entry, error) {
	for {
		e, err := r.lookup(name)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if !e.deleted {
			return e, nil
		}
		// Dropped or evicted while we waited; look it up again.
		e.mu.Unlock()
	}
}

// evict forgets a loaded index so the next access restores it from the store.
// It is used when an in-memory mutation could not be persisted.
func (r *Registry) evict(name string, e *entry) {
	r.mu.Lock()
	if r.indices[name] == e {
		delete(r.indices, name)
	}
	r.mu.Unlock()
}

// NewIndex creates an empty index and persists it.
func (r *Registry) NewIndex(name string, p Params) error {
	if !store.ValidIndexName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p = p.withDefaults(r.defaults)

	r.mu.Lock()
	defer r.mu.Unlock()
	key := store.IndexKey(name)
	if _, ok := r.indices[name]; ok {
		return fmt.Errorf("Index: %s %w", key, ErrIndexExists)
	}
	exists, err := r.store.Exists(key)
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", name, err)
	}
	if exists {
		return fmt.Errorf("Index: %s %w", key, ErrIndexExists)
	}

	index, err := hnsw.NewHNSW(name, p.Dimension, p.M, p.EfConstruction, p.Metric)
	if err != nil {
		return err
	}
	names, err := store.LoadCatalog(r.store)
	if err != nil {
		return err
	}
	b := store.NewBatch()
	if err := putIndex(b, index); err != nil {
		return err
	}
	if err := store.PutCatalog(b, append(names, name)); err != nil {
		return err
	}
	if err := r.store.Write(b); err != nil {
		return fmt.Errorf("failed to persist index %s: %w", name, err)
	}
	r.indices[name] = &entry{index: index}
	log.Info().Msgf("Created index %s (dim=%d, m=%d, ef=%d, metric=%s)",
		name, p.Dimension, p.M, p.EfConstruction, p.Metric)
	return nil
}

// GetIndex describes an index.
func (r *Registry) GetIndex(name string) (hnsw.Info, error) {
	e, err := r.lookup(name)
	if err != nil {
		return hnsw.Info{}, err
	}
	return e.index.Info(), nil
}

// DeleteIndex drops an index together with all of its node records.
func (r *Registry) DeleteIndex(name string) error {
	e, err := r.acquire(name)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := e.index.Record()
	names, err := store.LoadCatalog(r.store)
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	b := store.NewBatch()
	for _, node := range rec.Nodes {
		b.Delete(store.NodeKey(name, node))
	}
	b.Delete(store.IndexKey(name))
	if err := store.PutCatalog(b, kept); err != nil {
		return err
	}
	if err := r.store.Write(b); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	e.deleted = true
	delete(r.indices, name)
	log.Info().Msgf("Deleted index %s with %d nodes", name, len(rec.Nodes))
	return nil
}

// AddNode inserts a named vector into an index.
func (r *Registry) AddNode(index, node string, vector []float32) error {
	return r.AddNodes(index, map[string][]float32{node: vector})
}

// AddNodes inserts several named vectors into an index and persists them in
// one batch together with every node whose links changed.
func (r *Registry) AddNodes(index string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	e, err := r.acquire(index)
	if err != nil {
		return err
	}
	var changed []hnsw.NodeRecord
	collect := func(n *hnsw.Node) { changed = append(changed, n.Record()) }
	if len(vectors) == 1 {
		for node, vector := range vectors {
			err = e.index.Add(node, vector, collect)
		}
	} else {
		err = e.index.AddBatch(vectors, collect)
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}

	b := store.NewBatch()
	err = func() error {
		for node := range vectors {
			rec, err := e.index.NodeRecord(node)
			if err != nil {
				return err
			}
			if err := putNode(b, index, rec); err != nil {
				return err
			}
		}
		for _, rec := range changed {
			if err := putNode(b, index, rec); err != nil {
				return err
			}
		}
		if err := putIndex(b, e.index); err != nil {
			return err
		}
		return r.store.Write(b)
	}()
	return r.finish(index, e, err)
}

// DeleteNode removes a node and persists the repaired neighborhoods.
func (r *Registry) DeleteNode(index, node string) error {
	e, err := r.acquire(index)
	if err != nil {
		return err
	}
	var changed []hnsw.NodeRecord
	err = e.index.Delete(node, func(n *hnsw.Node) { changed = append(changed, n.Record()) })
	if errors.Is(err, hnsw.ErrNodeNotFound) {
		e.mu.Unlock()
		return nodeNotFound(index, node)
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}

	b := store.NewBatch()
	err = func() error {
		for _, rec := range changed {
			if err := putNode(b, index, rec); err != nil {
				return err
			}
		}
		b.Delete(store.NodeKey(index, node))
		if err := putIndex(b, e.index); err != nil {
			return err
		}
		return r.store.Write(b)
	}()
	return r.finish(index, e, err)
}

// finish unlocks e after a mutation. If persisting failed, the in-memory
// index no longer matches the store and is evicted.
func (r *Registry) finish(index string, e *entry, err error) error {
	if err == nil {
		e.mu.Unlock()
		return nil
	}
	e.deleted = true
	e.mu.Unlock()
	r.evict(index, e)
	log.Error().Msgf("Failed to persist index %s, evicted from memory: %v", index, err)
	return fmt.Errorf("failed to persist index %s: %w", index, err)
}

// GetNode returns the persisted record of a node.
func (r *Registry) GetNode(index, node string) (hnsw.NodeRecord, error) {
	if !store.ValidIndexName(index) {
		return hnsw.NodeRecord{}, indexNotFound(index)
	}
	exists, err := r.store.Exists(store.IndexKey(index))
	if err != nil {
		return hnsw.NodeRecord{}, fmt.Errorf("failed to check index %s: %w", index, err)
	}
	if !exists {
		return hnsw.NodeRecord{}, indexNotFound(index)
	}
	data, err := r.store.Get(store.NodeKey(index, node))
	if err != nil {
		return hnsw.NodeRecord{}, fmt.Errorf("failed to read node %s: %w", node, err)
	}
	if data == nil {
		return hnsw.NodeRecord{}, nodeNotFound(index, node)
	}
	var rec hnsw.NodeRecord
	if err := store.Decode(data, &rec); err != nil {
		return hnsw.NodeRecord{}, err
	}
	return rec, nil
}

// Search returns the k nearest nodes to query.
func (r *Registry) Search(index string, k int, query []float32) ([]hnsw.SearchResult, error) {
	e, err := r.lookup(index)
	if err != nil {
		return nil, err
	}
	return e.index.Search(query, k)
}

// Indices lists every persisted index name in order.
func (r *Registry) Indices() ([]string, error) {
	names, err := store.LoadCatalog(r.store)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Loaded reports how many indices are currently held in memory.
func (r *Registry) Loaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.indices)
}

// Store returns the keyspace backing the registry.
func (r *Registry) Store() store.Store {
	return r.store
}

// Close closes the underlying store.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indices = make(map[string]*entry)
	return r.store.Close()
}

func putIndex(b *store.Batch, index *hnsw.HNSWIndex) error {
	rec := index.Record()
	data, err := store.Encode(rec)
	if err != nil {
		return err
	}
	b.Put(store.IndexKey(rec.Name), data)
	return nil
}

func putNode(b *store.Batch, index string, rec hnsw.NodeRecord) error {
	data, err := store.Encode(rec)
	if err != nil {
		return err
	}
	b.Put(store.NodeKey(index, rec.Name), data)
	return nil
}
