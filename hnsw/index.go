package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/patrikhermansson/redis-hnsw/core"
	"github.com/rs/zerolog/log"
)

// maxLevelCap is the upper bound for a node's level.
const maxLevelCap = 32

// Node represents a named vector in the HNSW graph along with its links.
type Node struct {
	Name      string    // unique name of the node within its index
	Vector    []float32 // vector data
	Level     int       // highest layer the node lives on
	Neighbors [][]*Node // out links for layers 0..Level

	inLinks []map[string]*Node // nodes linking to this one, per layer
}

func newNode(name string, vector []float32, level int) *Node {
	n := &Node{
		Name:      name,
		Vector:    vector,
		Level:     level,
		Neighbors: make([][]*Node, level+1),
		inLinks:   make([]map[string]*Node, level+1),
	}
	for l := range n.inLinks {
		n.inLinks[l] = make(map[string]*Node)
	}
	return n
}

// UpdateFunc is called for every pre-existing node whose links were changed
// by an insertion or deletion. It runs while the index write lock is held.
type UpdateFunc func(n *Node)

// HNSWIndex is the main structure for the HNSW graph index.
type HNSWIndex struct {
	mu             sync.RWMutex
	Name           string             // index name
	Dimension      int                // dimension of the vectors
	M              int                // neighbors selected per insertion
	MMax           int                // link cap on layers above 0
	MMax0          int                // link cap on layer 0
	EfConstruction int                // candidate list size during construction
	LevelMult      float64            // level generation multiplier, 1/ln(M)
	MaxLayer       int                // top layer in use, -1 when empty
	Layers         []map[string]*Node // layer membership
	Nodes          map[string]*Node   // map of node name to Node pointer
	EntryPoint     *Node              // starting point for searches
	Distance       core.DistanceFunc  // function to calculate distance between vectors
	DistanceName   string             // name of the distance metric

	rng *rand.Rand
}

// ValidateParams reports whether an index can be built with the given
// parameters. The error wraps ErrInvalidParameter.
func ValidateParams(dimension, M, efConstruction int, distanceName string) error {
	if _, ok := core.LookupDistance(distanceName); !ok {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidParameter, distanceName)
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidParameter, dimension)
	}
	if M < 2 {
		return fmt.Errorf("%w: m must be at least 2, got %d", ErrInvalidParameter, M)
	}
	if efConstruction < 1 {
		return fmt.Errorf("%w: ef_construction must be positive, got %d", ErrInvalidParameter, efConstruction)
	}
	return nil
}

// NewHNSW creates a new, empty HNSW index.
func NewHNSW(name string, dimension, M, efConstruction int, distanceName string) (*HNSWIndex, error) {
	if distanceName == "" {
		distanceName = core.DefaultDistance
	}
	if err := ValidateParams(dimension, M, efConstruction, distanceName); err != nil {
		return nil, err
	}
	distance, _ := core.LookupDistance(distanceName)
	log.Debug().Msgf("Creating new HNSW index %s with dimension=%d, M=%d, ef=%d, distance=%s",
		name, dimension, M, efConstruction, distanceName)
	return &HNSWIndex{
		Name:           name,
		Dimension:      dimension,
		M:              M,
		MMax:           M,
		MMax0:          2 * M,
		EfConstruction: efConstruction,
		LevelMult:      1 / math.Log(float64(M)),
		MaxLayer:       -1,
		Nodes:          make(map[string]*Node),
		Distance:       distance,
		DistanceName:   distanceName,
		rng:            rand.New(rand.NewSource(core.GetSeed())),
	}, nil
}

// mmax returns the link cap for a layer.
func (h *HNSWIndex) mmax(layer int) int {
	if layer == 0 {
		return h.MMax0
	}
	return h.MMax
}

// randomLevel draws a level from an exponentially decaying distribution.
func (h *HNSWIndex) randomLevel() int {
	r := h.rng.Float64()
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	level := int(math.Floor(-math.Log(r) * h.LevelMult))
	if level > maxLevelCap {
		level = maxLevelCap
	}
	return level
}

func (h *HNSWIndex) checkDimension(vector []float32) error {
	if len(vector) != h.Dimension {
		return fmt.Errorf("%w: vector dimension %d does not match index dimension %d",
			ErrDimensionMismatch, len(vector), h.Dimension)
	}
	return nil
}

// prepare copies vector and normalizes it when the metric expects unit vectors.
func (h *HNSWIndex) prepare(vector []float32) []float32 {
	v := core.CloneVector(vector)
	if core.NormalizesInput(h.DistanceName) {
		core.NormalizeVector(v)
	}
	return v
}

// greedyClosest walks from ep down to layer `to` (exclusive), moving to any
// closer neighbor until no improvement is found on each layer.
func (h *HNSWIndex) greedyClosest(query []float32, ep *Node, from, to int) *Node {
	current := ep
	currentDist := h.Distance(query, current.Vector)
	for L := from; L > to; L-- {
		changed := true
		for changed {
			changed = false
			for _, neighbor := range current.Neighbors[L] {
				if d := h.Distance(query, neighbor.Vector); d < currentDist {
					current, currentDist = neighbor, d
					changed = true
				}
			}
		}
	}
	return current
}

// searchLayer performs a best-first search on one layer starting from the entry points.
func (h *HNSWIndex) searchLayer(query []float32, entryPoints []*Node, ef int, level int) []candidate {
	visited := make(map[string]struct{}, ef*2)
	candQueue := candidateMinHeap{}
	resultQueue := candidateMaxHeap{}
	for _, ep := range entryPoints {
		if _, ok := visited[ep.Name]; ok {
			continue
		}
		visited[ep.Name] = struct{}{}
		c := candidate{ep, h.Distance(query, ep.Vector)}
		heap.Push(&candQueue, c)
		heap.Push(&resultQueue, c)
		if resultQueue.Len() > ef {
			heap.Pop(&resultQueue)
		}
	}
	// Explore candidates while there are promising ones.
	for candQueue.Len() > 0 {
		current := heap.Pop(&candQueue).(candidate)
		if current.dist > resultQueue[0].dist && resultQueue.Len() >= ef {
			break
		}
		for _, neighbor := range current.node.Neighbors[level] {
			if _, ok := visited[neighbor.Name]; ok {
				continue
			}
			visited[neighbor.Name] = struct{}{}
			d := h.Distance(query, neighbor.Vector)
			if resultQueue.Len() < ef || d < resultQueue[0].dist {
				newCand := candidate{neighbor, d}
				heap.Push(&candQueue, newCand)
				heap.Push(&resultQueue, newCand)
				if resultQueue.Len() > ef {
					heap.Pop(&resultQueue)
				}
			}
		}
	}
	results := []candidate(resultQueue)
	sortCandidates(results)
	return results
}

// insert links a node that is not yet part of the graph.
func (h *HNSWIndex) insert(n *Node, changed map[string]*Node) {
	h.Nodes[n.Name] = n
	for len(h.Layers) <= n.Level {
		h.Layers = append(h.Layers, make(map[string]*Node))
	}
	for L := 0; L <= n.Level; L++ {
		h.Layers[L][n.Name] = n
	}
	if h.EntryPoint == nil {
		h.EntryPoint = n
		h.MaxLayer = n.Level
		return
	}

	ep := h.greedyClosest(n.Vector, h.EntryPoint, h.MaxLayer, n.Level)
	entryPoints := []*Node{ep}
	for L := minInt(n.Level, h.MaxLayer); L >= 0; L-- {
		cands := h.searchLayer(n.Vector, entryPoints, h.EfConstruction, L)
		entryPoints = nodesOf(cands)
		selected := h.selectNeighbors(cands, h.M)
		setNeighbors(n, L, selected)
		limit := h.mmax(L)
		for _, neighbor := range selected {
			connect(neighbor, n, L)
			if len(neighbor.Neighbors[L]) > limit {
				pool := h.candidatesFor(neighbor, neighbor.Neighbors[L])
				setNeighbors(neighbor, L, h.selectNeighbors(pool, limit))
			}
			changed[neighbor.Name] = neighbor
		}
	}
	if n.Level > h.MaxLayer {
		h.EntryPoint = n
		h.MaxLayer = n.Level
	}
}

// notify reports changed nodes in name order.
func notify(changed map[string]*Node, update UpdateFunc) {
	if update == nil {
		return
	}
	for _, n := range sortedNodes(changed) {
		update(n)
	}
}

// Add inserts a new vector into the index under a unique name.
func (h *HNSWIndex) Add(name string, vector []float32, update UpdateFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkDimension(vector); err != nil {
		return err
	}
	if _, exists := h.Nodes[name]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, name)
	}
	n := newNode(name, h.prepare(vector), h.randomLevel())
	log.Debug().Msgf("Adding node %s at level %d to index %s", name, n.Level, h.Name)
	changed := make(map[string]*Node)
	h.insert(n, changed)
	notify(changed, update)
	return nil
}

// AddBatch inserts multiple vectors. All vectors are validated before the
// graph is touched; insertion happens in name order.
func (h *HNSWIndex) AddBatch(vectors map[string][]float32, update UpdateFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(vectors))
	for name, vector := range vectors {
		if err := h.checkDimension(vector); err != nil {
			return fmt.Errorf("node %s: %w", name, err)
		}
		if _, exists := h.Nodes[name]; exists {
			return fmt.Errorf("%w: %s", ErrNodeExists, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	prepared := make([][]float32, len(names))
	for i, name := range names {
		prepared[i] = core.CloneVector(vectors[name])
	}
	if core.NormalizesInput(h.DistanceName) {
		core.NormalizeBatch(prepared)
	}

	changed := make(map[string]*Node)
	for i, name := range names {
		h.insert(newNode(name, prepared[i], h.randomLevel()), changed)
	}
	for _, name := range names {
		delete(changed, name)
	}
	notify(changed, update)
	log.Debug().Msgf("Added %d nodes to index %s", len(names), h.Name)
	return nil
}

// Delete removes a node and repairs the neighborhoods of every node that linked to it.
func (h *HNSWIndex) Delete(name string, update UpdateFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, exists := h.Nodes[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	changed := make(map[string]*Node)
	for L := 0; L <= n.Level; L++ {
		for _, dst := range n.Neighbors[L] {
			delete(dst.inLinks[L], n.Name)
		}
		sources := sortedNodes(n.inLinks[L])
		for _, src := range sources {
			src.Neighbors[L] = removeFromSlice(src.Neighbors[L], n)
		}
		n.inLinks[L] = make(map[string]*Node)
		limit := h.mmax(L)
		for _, src := range sources {
			pool := h.candidatesFor(src, src.Neighbors[L], removeFromSlice(n.Neighbors[L], n))
			setNeighbors(src, L, h.selectNeighbors(pool, limit))
			changed[src.Name] = src
		}
		n.Neighbors[L] = nil
		delete(h.Layers[L], name)
	}
	delete(h.Nodes, name)
	delete(changed, name)

	if h.EntryPoint == n {
		h.electEntryPoint()
	}
	h.trimLayers()
	log.Debug().Msgf("Deleted node %s from index %s, repaired %d nodes", name, h.Name, len(changed))
	notify(changed, update)
	return nil
}

// electEntryPoint picks the smallest-named node of the highest non-empty layer.
func (h *HNSWIndex) electEntryPoint() {
	h.EntryPoint = nil
	h.MaxLayer = -1
	for L := len(h.Layers) - 1; L >= 0; L-- {
		if len(h.Layers[L]) == 0 {
			continue
		}
		h.EntryPoint = sortedNodes(h.Layers[L])[0]
		h.MaxLayer = L
		return
	}
}

// trimLayers drops empty layers from the top.
func (h *HNSWIndex) trimLayers() {
	for len(h.Layers) > 0 && len(h.Layers[len(h.Layers)-1]) == 0 {
		h.Layers = h.Layers[:len(h.Layers)-1]
	}
}

// SearchResult is a single k-NN hit.
type SearchResult struct {
	core.Neighbor
	Vector []float32
}

// Search finds the k-nearest neighbors of a given query vector.
func (h *HNSWIndex) Search(query []float32, k int) ([]SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidParameter, k)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(query) != h.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d does not match index dimension %d",
			ErrDimensionMismatch, len(query), h.Dimension)
	}
	if h.EntryPoint == nil {
		return nil, ErrIndexEmpty
	}
	query = h.prepare(query)

	// Greedy search down from the top layer.
	current := h.greedyClosest(query, h.EntryPoint, h.MaxLayer, 0)
	ef := h.EfConstruction
	if k > ef {
		ef = k
	}
	candidates := h.searchLayer(query, []*Node{current}, ef, 0)
	if len(candidates) < k && len(candidates) < len(h.Nodes) {
		candidates = append(candidates, h.exhaustive(query, candidates, k-len(candidates))...)
		sortCandidates(candidates)
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]SearchResult, k)
	for i := 0; i < k; i++ {
		c := candidates[i]
		results[i] = SearchResult{
			Neighbor: core.Neighbor{Name: c.node.Name, Distance: c.dist},
			Vector:   core.CloneVector(c.node.Vector),
		}
	}
	return results, nil
}

// exhaustive scans every node outside found in parallel and returns the best `want`.
func (h *HNSWIndex) exhaustive(query []float32, found []candidate, want int) []candidate {
	seen := make(map[string]struct{}, len(found))
	for _, c := range found {
		seen[c.node.Name] = struct{}{}
	}
	rest := make([]*Node, 0, len(h.Nodes))
	for _, n := range sortedNodes(h.Nodes) {
		if _, ok := seen[n.Name]; !ok {
			rest = append(rest, n)
		}
	}
	if len(rest) == 0 {
		return nil
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > len(rest) {
		numWorkers = len(rest)
	}
	chunkSize := (len(rest) + numWorkers - 1) / numWorkers
	resultsCh := make(chan candidateMaxHeap, numWorkers)
	var wg sync.WaitGroup

	// Run parallel fallback search.
	for start := 0; start < len(rest); start += chunkSize {
		end := start + chunkSize
		if end > len(rest) {
			end = len(rest)
		}
		wg.Add(1)
		go func(chunk []*Node) {
			defer wg.Done()
			local := candidateMaxHeap{}
			for _, node := range chunk {
				cand := candidate{node, h.Distance(query, node.Vector)}
				if local.Len() < want {
					heap.Push(&local, cand)
				} else if closer(cand, local[0]) {
					heap.Pop(&local)
					heap.Push(&local, cand)
				}
			}
			resultsCh <- local
		}(rest[start:end])
	}
	wg.Wait()
	close(resultsCh)

	// Merge results from all workers.
	final := candidateMaxHeap{}
	for partial := range resultsCh {
		for _, cand := range partial {
			if final.Len() < want {
				heap.Push(&final, cand)
			} else if closer(cand, final[0]) {
				heap.Pop(&final)
				heap.Push(&final, cand)
			}
		}
	}
	return []candidate(final)
}

// Len returns the number of nodes.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Nodes)
}

// Has reports whether a node is indexed.
func (h *HNSWIndex) Has(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.Nodes[name]
	return ok
}

// Stats returns simple statistics about the index.
func (h *HNSWIndex) Stats() core.IndexStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return core.IndexStats{
		Count:     len(h.Nodes),
		Dimension: h.Dimension,
		Layers:    len(h.Layers),
		Distance:  h.DistanceName,
	}
}

// Info describes the index parameters and shape.
type Info struct {
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
	EntryPoint     string // empty when the index has no nodes
}

// Info returns a snapshot of the index description.
func (h *HNSWIndex) Info() Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info := Info{
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
	}
	if h.EntryPoint != nil {
		info.EntryPoint = h.EntryPoint.Name
	}
	return info
}
