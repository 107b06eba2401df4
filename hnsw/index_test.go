package hnsw_test

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/patrikhermansson/redis-hnsw/core"
	"github.com/patrikhermansson/redis-hnsw/hnsw"
)

func newIndex(t *testing.T, dim int) *hnsw.HNSWIndex {
	t.Helper()
	t.Setenv(core.SeedEnv, "42")
	index, err := hnsw.NewHNSW("test", dim, 5, 50, "euclidean")
	if err != nil {
		t.Fatalf("NewHNSW failed: %v", err)
	}
	return index
}

func randomVectors(n, dim int, seed int64) map[string][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make(map[string][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()
		}
		out[strconv.Itoa(i)] = v
	}
	return out
}

// bruteForce returns the names of the k nearest vectors.
func bruteForce(vectors map[string][]float32, query []float32, k int) []string {
	type pair struct {
		name string
		dist float64
	}
	all := make([]pair, 0, len(vectors))
	for name, v := range vectors {
		all = append(all, pair{name, core.Euclidean(query, v)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist == all[j].dist {
			return all[i].name < all[j].name
		}
		return all[i].dist < all[j].dist
	})
	names := make([]string, 0, k)
	for i := 0; i < k && i < len(all); i++ {
		names = append(names, all[i].name)
	}
	return names
}

func TestNewHNSW_RejectsBadParameters(t *testing.T) {
	cases := []struct {
		dim, m, ef int
		metric     string
	}{
		{0, 5, 10, "euclidean"},
		{4, 1, 10, "euclidean"},
		{4, 5, 0, "euclidean"},
		{4, 5, 10, "hamming"},
	}
	for _, c := range cases {
		_, err := hnsw.NewHNSW("bad", c.dim, c.m, c.ef, c.metric)
		if !errors.Is(err, hnsw.ErrInvalidParameter) {
			t.Errorf("NewHNSW(%d, %d, %d, %q) error = %v; want ErrInvalidParameter",
				c.dim, c.m, c.ef, c.metric, err)
		}
	}

	index, err := hnsw.NewHNSW("defaults", 4, 5, 10, "")
	if err != nil {
		t.Fatalf("NewHNSW with empty metric failed: %v", err)
	}
	if index.DistanceName != core.DefaultDistance || index.MMax0 != 10 {
		t.Errorf("unexpected defaults: metric=%s mmax0=%d", index.DistanceName, index.MMax0)
	}
}

func TestHNSWIndex_AddAndStats(t *testing.T) {
	index := newIndex(t, 6)

	// Test single Add.
	if err := index.Add("a", []float32{1, 2, 3, 4, 5, 6}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Test dimension mismatch.
	err := index.Add("b", []float32{1, 2, 3}, nil)
	if !errors.Is(err, hnsw.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	// Test duplicate name.
	err = index.Add("a", []float32{6, 5, 4, 3, 2, 1}, nil)
	if !errors.Is(err, hnsw.ErrNodeExists) {
		t.Fatalf("expected ErrNodeExists, got %v", err)
	}

	// Verify stats.
	stats := index.Stats()
	if stats.Count != 1 {
		t.Errorf("expected count 1 after one Add, got %d", stats.Count)
	}
	info := index.Info()
	if info.EntryPoint != "a" || info.NodeCount != 1 {
		t.Errorf("unexpected info after first Add: %+v", info)
	}
}

func TestHNSWIndex_AddReportsChangedNeighbors(t *testing.T) {
	index := newIndex(t, 2)
	if err := index.Add("a", []float32{0, 0}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	var updated []string
	if err := index.Add("b", []float32{1, 1}, func(n *hnsw.Node) {
		updated = append(updated, n.Name)
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(updated) != 1 || updated[0] != "a" {
		t.Errorf("expected update for [a], got %v", updated)
	}
}

func TestHNSWIndex_SearchEmpty(t *testing.T) {
	index := newIndex(t, 3)
	_, err := index.Search([]float32{1, 2, 3}, 1)
	if !errors.Is(err, hnsw.ErrIndexEmpty) {
		t.Fatalf("expected ErrIndexEmpty, got %v", err)
	}
	if err := index.Add("a", []float32{1, 2, 3}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := index.Search([]float32{1, 2}, 1); !errors.Is(err, hnsw.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := index.Search([]float32{1, 2, 3}, 0); !errors.Is(err, hnsw.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for k=0, got %v", err)
	}
}

func TestHNSWIndex_SearchReturnsAllWhenKExceedsCount(t *testing.T) {
	index := newIndex(t, 2)
	vectors := map[string][]float32{
		"a": {0, 0},
		"b": {1, 0},
		"c": {5, 5},
	}
	if err := index.AddBatch(vectors, nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	results, err := index.Search([]float32{0, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{"a", "b", "c"}
	for i, r := range results {
		if r.Name != want[i] {
			t.Errorf("result %d = %s; want %s", i, r.Name, want[i])
		}
	}
	if results[0].Distance != 0 || len(results[0].Vector) != 2 {
		t.Errorf("unexpected first result %+v", results[0])
	}
}

func TestHNSWIndex_Delete(t *testing.T) {
	index := newIndex(t, 6)

	// Arrange: add two vectors.
	if err := index.Add("a", []float32{1, 2, 3, 4, 5, 6}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := index.Add("b", []float32{6, 5, 4, 3, 2, 1}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Act: delete a.
	if err := index.Delete("a", nil); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Assert: stats count should be 1.
	stats := index.Stats()
	if stats.Count != 1 {
		t.Errorf("expected count 1 after Delete, got %d", stats.Count)
	}
	if index.Info().EntryPoint != "b" {
		t.Errorf("expected b to become the entry point, got %q", index.Info().EntryPoint)
	}

	// Delete non-existent name.
	if err := index.Delete("zz", nil); !errors.Is(err, hnsw.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}

	// Deleting the last node empties the index.
	if err := index.Delete("b", nil); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	info := index.Info()
	if info.EntryPoint != "" || info.MaxLayer != -1 || info.NodeCount != 0 {
		t.Errorf("expected empty index, got %+v", info)
	}
	if _, err := index.Search([]float32{1, 1, 1, 1, 1, 1}, 1); !errors.Is(err, hnsw.ErrIndexEmpty) {
		t.Errorf("expected ErrIndexEmpty after deleting everything, got %v", err)
	}
}

func TestHNSWIndex_BulkDeleteKeepsResultsValid(t *testing.T) {
	index := newIndex(t, 8)
	vectors := randomVectors(300, 8, 7)
	if err := index.AddBatch(vectors, nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	deleted := make(map[string]bool)
	for i := 0; i < 300; i += 3 {
		name := strconv.Itoa(i)
		if err := index.Delete(name, nil); err != nil {
			t.Fatalf("Delete %s failed: %v", name, err)
		}
		deleted[name] = true
		delete(vectors, name)
	}
	if index.Len() != len(vectors) {
		t.Fatalf("expected %d nodes, got %d", len(vectors), index.Len())
	}

	query := vectors["1"]
	results, err := index.Search(query, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	if results[0].Name != "1" {
		t.Errorf("expected exact match first, got %s", results[0].Name)
	}
	for _, r := range results {
		if deleted[r.Name] {
			t.Errorf("deleted node %s returned in search results", r.Name)
		}
	}
}

func TestHNSWIndex_Recall(t *testing.T) {
	t.Setenv(core.SeedEnv, "42")
	index, err := hnsw.NewHNSW("recall", 16, 12, 100, "euclidean")
	if err != nil {
		t.Fatalf("NewHNSW failed: %v", err)
	}
	vectors := randomVectors(1000, 16, 1)
	if err := index.AddBatch(vectors, nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	queries := randomVectors(20, 16, 99)
	k := 10
	hits, total := 0, 0
	for _, q := range queries {
		results, err := index.Search(q, k)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		truth := make(map[string]bool, k)
		for _, name := range bruteForce(vectors, q, k) {
			truth[name] = true
		}
		for _, r := range results {
			if truth[r.Name] {
				hits++
			}
		}
		total += k
	}
	recall := float64(hits) / float64(total)
	if recall < 0.9 {
		t.Errorf("recall@%d = %.2f; want >= 0.90", k, recall)
	}
}

func TestHNSWIndex_CosineNormalizesCopy(t *testing.T) {
	t.Setenv(core.SeedEnv, "3")
	index, err := hnsw.NewHNSW("cos", 2, 4, 16, "cosine")
	if err != nil {
		t.Fatalf("NewHNSW failed: %v", err)
	}
	v := []float32{3, 4}
	if err := index.Add("a", v, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if v[0] != 3 || v[1] != 4 {
		t.Errorf("Add modified the caller's vector: %v", v)
	}
	rec, err := index.NodeRecord("a")
	if err != nil {
		t.Fatalf("NodeRecord failed: %v", err)
	}
	if rec.Vector[0] < 0.59 || rec.Vector[0] > 0.61 {
		t.Errorf("expected stored vector to be normalized, got %v", rec.Vector)
	}
	results, err := index.Search([]float32{6, 8}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results[0].Distance > 1e-6 {
		t.Errorf("expected zero cosine distance for parallel vector, got %v", results[0].Distance)
	}
}

func TestHNSWIndex_AddBatchIsAllOrNothing(t *testing.T) {
	index := newIndex(t, 2)
	if err := index.Add("a", []float32{0, 0}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	err := index.AddBatch(map[string][]float32{
		"b": {1, 1},
		"a": {2, 2},
	}, nil)
	if !errors.Is(err, hnsw.ErrNodeExists) {
		t.Fatalf("expected ErrNodeExists, got %v", err)
	}
	if index.Has("b") {
		t.Error("AddBatch inserted nodes despite failing validation")
	}
}

func TestHNSWIndex_RecordRestore(t *testing.T) {
	index := newIndex(t, 4)
	vectors := randomVectors(200, 4, 5)
	if err := index.AddBatch(vectors, nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	if err := index.Delete("17", nil); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	rec := index.Record()
	nodes := make(map[string]hnsw.NodeRecord, len(rec.Nodes))
	for _, name := range rec.Nodes {
		nr, err := index.NodeRecord(name)
		if err != nil {
			t.Fatalf("NodeRecord failed: %v", err)
		}
		nodes[name] = nr
	}

	restored, err := hnsw.Restore(rec, func(name string) (*hnsw.NodeRecord, error) {
		nr, ok := nodes[name]
		if !ok {
			return nil, nil
		}
		return &nr, nil
	})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Info() != index.Info() {
		t.Errorf("restored info %+v differs from %+v", restored.Info(), index.Info())
	}

	query := vectors["42"]
	want, err := index.Search(query, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	got, err := restored.Search(query, 5)
	if err != nil {
		t.Fatalf("Search on restored index failed: %v", err)
	}
	for i := range want {
		if want[i].Name != got[i].Name {
			t.Errorf("result %d: restored %s, original %s", i, got[i].Name, want[i].Name)
		}
	}
}

func TestRestore_MissingNode(t *testing.T) {
	index := newIndex(t, 2)
	if err := index.AddBatch(map[string][]float32{"a": {0, 0}, "b": {1, 1}}, nil); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	_, err := hnsw.Restore(index.Record(), func(name string) (*hnsw.NodeRecord, error) {
		return nil, nil
	})
	if !errors.Is(err, hnsw.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestHNSWIndex_ConcurrentAddAndSearch(t *testing.T) {
	index := newIndex(t, 6)
	if err := index.Add("seed", []float32{0, 0, 0, 0, 0, 0}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				name := fmt.Sprintf("%d-%d", w, i)
				v := []float32{float32(w), float32(i), 1, 2, 3, 4}
				if err := index.Add(name, v, nil); err != nil {
					t.Errorf("Add %s failed: %v", name, err)
					return
				}
				if _, err := index.Search(v, 3); err != nil {
					t.Errorf("Search failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if got := index.Stats().Count; got != 401 {
		t.Errorf("expected count 401 after concurrent adds, got %d", got)
	}
}
