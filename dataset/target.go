package dataset

import (
	"context"

	"github.com/patrikhermansson/redis-hnsw/client"
	"github.com/patrikhermansson/redis-hnsw/core"
	"github.com/patrikhermansson/redis-hnsw/hnsw"
	"github.com/patrikhermansson/redis-hnsw/internal/registry"
)

// Target is where a dataset is loaded and queried: a registry in this
// process or a server reached over the network.
type Target interface {
	CreateIndex(ctx context.Context, name string, p registry.Params) error
	AddBatch(ctx context.Context, index string, vectors map[string][]float32) error
	Search(ctx context.Context, index string, k int, query []float32) ([]core.Neighbor, error)
	Info(ctx context.Context, index string) (hnsw.Info, error)
}

func neighborsOf(results []hnsw.SearchResult) []core.Neighbor {
	out := make([]core.Neighbor, len(results))
	for i, r := range results {
		out[i] = r.Neighbor
	}
	return out
}

// LocalTarget runs against an in-process registry.
type LocalTarget struct {
	Registry *registry.Registry
}

func (t LocalTarget) CreateIndex(_ context.Context, name string, p registry.Params) error {
	return t.Registry.NewIndex(name, p)
}

func (t LocalTarget) AddBatch(_ context.Context, index string, vectors map[string][]float32) error {
	return t.Registry.AddNodes(index, vectors)
}

func (t LocalTarget) Search(_ context.Context, index string, k int, query []float32) ([]core.Neighbor, error) {
	results, err := t.Registry.Search(index, k, query)
	if err != nil {
		return nil, err
	}
	return neighborsOf(results), nil
}

func (t LocalTarget) Info(_ context.Context, index string) (hnsw.Info, error) {
	return t.Registry.GetIndex(index)
}

// RemoteTarget runs against a server through the client.
type RemoteTarget struct {
	Client *client.Client
}

func (t RemoteTarget) CreateIndex(ctx context.Context, name string, p registry.Params) error {
	return t.Client.NewIndex(ctx, name, client.IndexParams{
		Dimension:      p.Dimension,
		M:              p.M,
		EfConstruction: p.EfConstruction,
		Metric:         p.Metric,
	})
}

func (t RemoteTarget) AddBatch(ctx context.Context, index string, vectors map[string][]float32) error {
	return t.Client.AddNodes(ctx, index, vectors)
}

func (t RemoteTarget) Search(ctx context.Context, index string, k int, query []float32) ([]core.Neighbor, error) {
	results, err := t.Client.Search(ctx, index, k, query)
	if err != nil {
		return nil, err
	}
	return neighborsOf(results), nil
}

func (t RemoteTarget) Info(ctx context.Context, index string) (hnsw.Info, error) {
	return t.Client.GetIndex(ctx, index)
}
