package hnsw

import "sort"

// candidate represents a potential neighbor with its distance.
type candidate struct {
	node *Node   // reference to the candidate node
	dist float64 // distance to the query vector
}

// closer orders candidates by distance, breaking ties by name.
func closer(a, b candidate) bool {
	if a.dist == b.dist {
		return a.node.Name < b.node.Name
	}
	return a.dist < b.dist
}

// candidateMinHeap implements a min-heap for candidates based on their distance.
type candidateMinHeap []candidate

func (h candidateMinHeap) Len() int           { return len(h) }
func (h candidateMinHeap) Less(i, j int) bool { return closer(h[i], h[j]) }
func (h candidateMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateMinHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// candidateMaxHeap implements a max-heap for candidates based on their distance.
type candidateMaxHeap []candidate

func (h candidateMaxHeap) Len() int           { return len(h) }
func (h candidateMaxHeap) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h candidateMaxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateMaxHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateMaxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// sortCandidates sorts in place, nearest first.
func sortCandidates(c []candidate) {
	sort.Slice(c, func(i, j int) bool { return closer(c[i], c[j]) })
}
