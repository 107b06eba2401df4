package hnsw

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// IndexRecord is the persisted form of an index. Node data lives in separate
// NodeRecords so a single insertion only rewrites the nodes it touched.
type IndexRecord struct {
	Name           string
	Metric         string
	Dimension      int
	M              int
	MMax           int
	MMax0          int
	EfConstruction int
	LevelMult      float64
	NodeCount      int
	MaxLayer       int
	Layers         [][]string // node names per layer
	Nodes          []string   // every node name
	EntryPoint     string     // empty when the index has no nodes
}

// NodeRecord is the persisted form of a node: its vector and out links.
type NodeRecord struct {
	Name      string
	Vector    []float32
	Level     int
	Neighbors [][]string // neighbor names per layer
}

// Record returns the persisted form of n. The caller must hold the index lock,
// which is the case inside an UpdateFunc.
func (n *Node) Record() NodeRecord {
	rec := NodeRecord{
		Name:      n.Name,
		Vector:    append([]float32(nil), n.Vector...),
		Level:     n.Level,
		Neighbors: make([][]string, len(n.Neighbors)),
	}
	for l, links := range n.Neighbors {
		names := make([]string, len(links))
		for i, nb := range links {
			names[i] = nb.Name
		}
		rec.Neighbors[l] = names
	}
	return rec
}

// NodeRecord returns the persisted form of a single node.
func (h *HNSWIndex) NodeRecord(name string) (NodeRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.Nodes[name]
	if !ok {
		return NodeRecord{}, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	return n.Record(), nil
}

// Record returns the persisted form of the index header.
func (h *HNSWIndex) Record() IndexRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec := IndexRecord{
		Name:           h.Name,
		Metric:         h.DistanceName,
		Dimension:      h.Dimension,
		M:              h.M,
		MMax:           h.MMax,
		MMax0:          h.MMax0,
		EfConstruction: h.EfConstruction,
		LevelMult:      h.LevelMult,
		NodeCount:      len(h.Nodes),
		MaxLayer:       h.MaxLayer,
		Layers:         make([][]string, len(h.Layers)),
		Nodes:          make([]string, 0, len(h.Nodes)),
	}
	for l, layer := range h.Layers {
		names := make([]string, 0, len(layer))
		for name := range layer {
			names = append(names, name)
		}
		sort.Strings(names)
		rec.Layers[l] = names
	}
	for name := range h.Nodes {
		rec.Nodes = append(rec.Nodes, name)
	}
	sort.Strings(rec.Nodes)
	if h.EntryPoint != nil {
		rec.EntryPoint = h.EntryPoint.Name
	}
	return rec
}

// NodeLookup fetches the persisted record of a node; a nil record means the
// node is missing.
type NodeLookup func(name string) (*NodeRecord, error)

// Restore rebuilds an index from its persisted records: nodes first, then
// their links, then layer membership and finally the entry point.
func Restore(rec IndexRecord, lookup NodeLookup) (*HNSWIndex, error) {
	h, err := NewHNSW(rec.Name, rec.Dimension, rec.M, rec.EfConstruction, rec.Metric)
	if err != nil {
		return nil, err
	}
	if rec.MMax > 0 {
		h.MMax = rec.MMax
	}
	if rec.MMax0 > 0 {
		h.MMax0 = rec.MMax0
	}
	if rec.LevelMult > 0 {
		h.LevelMult = rec.LevelMult
	}

	records := make(map[string]*NodeRecord, len(rec.Nodes))
	for _, name := range rec.Nodes {
		nr, err := lookup(name)
		if err != nil {
			return nil, fmt.Errorf("load node %s: %w", name, err)
		}
		if nr == nil {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
		}
		if len(nr.Vector) != h.Dimension {
			return nil, fmt.Errorf("%w: node %s has dimension %d, index has %d",
				ErrCorruptRecord, name, len(nr.Vector), h.Dimension)
		}
		if nr.Level < 0 || len(nr.Neighbors) > nr.Level+1 {
			return nil, fmt.Errorf("%w: node %s has %d link layers at level %d",
				ErrCorruptRecord, name, len(nr.Neighbors), nr.Level)
		}
		h.Nodes[name] = newNode(name, nr.Vector, nr.Level)
		records[name] = nr
	}

	// reconstruct links
	for name, nr := range records {
		n := h.Nodes[name]
		for l, names := range nr.Neighbors {
			for _, nbName := range names {
				nb, ok := h.Nodes[nbName]
				if !ok {
					return nil, fmt.Errorf("%w: %s (linked from %s)", ErrNodeNotFound, nbName, name)
				}
				if nb.Level < l {
					return nil, fmt.Errorf("%w: %s links %s above its level", ErrCorruptRecord, name, nbName)
				}
				connect(n, nb, l)
			}
		}
	}

	// reconstruct layers
	h.Layers = make([]map[string]*Node, len(rec.Layers))
	for l, names := range rec.Layers {
		layer := make(map[string]*Node, len(names))
		for _, name := range names {
			n, ok := h.Nodes[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s (layer %d)", ErrNodeNotFound, name, l)
			}
			layer[name] = n
		}
		h.Layers[l] = layer
	}

	// set entry point
	h.MaxLayer = -1
	if rec.EntryPoint != "" {
		ep, ok := h.Nodes[rec.EntryPoint]
		if !ok {
			return nil, fmt.Errorf("%w: %s (entry point)", ErrNodeNotFound, rec.EntryPoint)
		}
		h.EntryPoint = ep
		h.MaxLayer = ep.Level
	}
	log.Debug().Msgf("Restored index %s with %d nodes and %d layers", h.Name, len(h.Nodes), len(h.Layers))
	return h, nil
}
