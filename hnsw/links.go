package hnsw

import "sort"

// connect adds a directed edge from -> to on the given layer.
func connect(from, to *Node, layer int) {
	from.Neighbors[layer] = append(from.Neighbors[layer], to)
	to.inLinks[layer][from.Name] = from
}

// setNeighbors replaces the out links of n on a layer, keeping in-link sets in sync.
func setNeighbors(n *Node, layer int, selected []*Node) {
	keep := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		keep[s.Name] = struct{}{}
	}
	for _, old := range n.Neighbors[layer] {
		if _, ok := keep[old.Name]; !ok {
			delete(old.inLinks[layer], n.Name)
		}
	}
	links := make([]*Node, len(selected))
	copy(links, selected)
	for _, s := range links {
		s.inLinks[layer][n.Name] = n
	}
	n.Neighbors[layer] = links
}

// removeFromSlice returns a new slice without target.
func removeFromSlice(slice []*Node, target *Node) []*Node {
	out := make([]*Node, 0, len(slice))
	for _, n := range slice {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}

// selectNeighbors picks up to m nodes from candidates using the HNSW heuristic:
// a candidate is kept only if it is closer to the base than to every node
// already selected. Remaining slots are filled with the best discarded ones.
func (h *HNSWIndex) selectNeighbors(cands []candidate, m int) []*Node {
	sortCandidates(cands)
	if len(cands) <= m {
		return nodesOf(cands)
	}
	selected := make([]candidate, 0, m)
	var discarded []candidate
	for _, c := range cands {
		if len(selected) >= m {
			break
		}
		good := true
		for _, s := range selected {
			if h.Distance(c.node.Vector, s.node.Vector) < c.dist {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		} else {
			discarded = append(discarded, c)
		}
	}
	for _, c := range discarded {
		if len(selected) >= m {
			break
		}
		selected = append(selected, c)
	}
	return nodesOf(selected)
}

// candidatesFor measures every node in pool against base, skipping base itself
// and duplicates.
func (h *HNSWIndex) candidatesFor(base *Node, pool ...[]*Node) []candidate {
	seen := map[string]struct{}{base.Name: {}}
	var out []candidate
	for _, nodes := range pool {
		for _, n := range nodes {
			if _, ok := seen[n.Name]; ok {
				continue
			}
			seen[n.Name] = struct{}{}
			out = append(out, candidate{node: n, dist: h.Distance(base.Vector, n.Vector)})
		}
	}
	return out
}

func nodesOf(cands []candidate) []*Node {
	out := make([]*Node, len(cands))
	for i, c := range cands {
		out[i] = c.node
	}
	return out
}

// sortedNodes returns the values of m ordered by name.
func sortedNodes(m map[string]*Node) []*Node {
	out := make([]*Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// minInt returns the smaller of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
