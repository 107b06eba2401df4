package dataset

import (
	"fmt"
	"strings"

	"github.com/patrikhermansson/redis-hnsw/core"
)

// FormatResults returns a formatted string of neighbor results.
// maxResults specifies how many items to include.
func FormatResults(results []core.Neighbor, maxResults int) string {
	var sb strings.Builder
	limit := maxResults
	if len(results) < limit {
		limit = len(results)
	}
	for i := 0; i < limit; i++ {
		n := results[i]
		fmt.Fprintf(&sb, "name=%s (dist=%.3f) ", n.Name, n.Distance)
	}
	return sb.String()
}

// FormatGroundTruth returns a formatted string of ground-truth neighbor results.
// maxResults specifies how many items to include.
func FormatGroundTruth(neighbors []int, distances []float64, maxResults int) string {
	var sb strings.Builder
	limit := maxResults
	if len(neighbors) < limit {
		limit = len(neighbors)
	}
	for j := 0; j < limit; j++ {
		d := 0.0
		if j < len(distances) {
			d = distances[j]
		}
		fmt.Fprintf(&sb, "name=%s (dist=%.3f) ", NodeName(neighbors[j]), d)
	}
	return sb.String()
}

// RecallAtK computes Recall@k as the fraction of the first k ground-truth
// items that appear in the top k predictions.
func RecallAtK(predicted []core.Neighbor, groundTruth []int, k int) float64 {
	if k <= 0 || len(groundTruth) == 0 {
		return 0.0
	}
	if len(groundTruth) > k {
		groundTruth = groundTruth[:k]
	}
	// Build a set of predicted names from the top k predictions.
	predSet := make(map[string]struct{}, k)
	limit := k
	if len(predicted) < k {
		limit = len(predicted)
	}
	for i := 0; i < limit; i++ {
		predSet[predicted[i].Name] = struct{}{}
	}

	// Count ground-truth items that appear in the predictions.
	correct := 0
	for _, row := range groundTruth {
		if _, ok := predSet[NodeName(row)]; ok {
			correct++
		}
	}
	return float64(correct) / float64(len(groundTruth))
}
