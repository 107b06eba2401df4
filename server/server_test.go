package server_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrikhermansson/redis-hnsw/client"
	"github.com/patrikhermansson/redis-hnsw/core"
	"github.com/patrikhermansson/redis-hnsw/internal/registry"
	"github.com/patrikhermansson/redis-hnsw/server"
	"github.com/patrikhermansson/redis-hnsw/store"
)

func startServer(t *testing.T, opts server.Options) (*server.Server, string) {
	t.Helper()
	t.Setenv(core.SeedEnv, "1")
	reg := registry.New(store.NewMemoryStore())
	srv := server.New(reg, opts)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		_ = reg.Close()
	})
	return srv, ln.Addr().String()
}

func newClient(t *testing.T, addr string) (*client.Client, context.Context) {
	t.Helper()
	opts := client.DefaultOptions()
	opts.Addr = addr
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	c, err := client.Dial(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, ctx
}

func TestServer_IndexLifecycle(t *testing.T) {
	_, addr := startServer(t, server.Options{})
	c, ctx := newClient(t, addr)

	require.NoError(t, c.NewIndex(ctx, "songs", client.IndexParams{Dimension: 2, M: 4, EfConstruction: 16}))
	err := c.NewIndex(ctx, "songs", client.IndexParams{Dimension: 2})
	require.Error(t, err)
	assert.Equal(t, "ERR Index: hnsw.songs already exists", err.Error())

	info, err := c.GetIndex(ctx, "songs")
	require.NoError(t, err)
	assert.Equal(t, "songs", info.Name)
	assert.Equal(t, 2, info.Dimension)
	assert.Equal(t, 8, info.MMax0)
	assert.Equal(t, 0, info.NodeCount)

	require.NoError(t, c.AddNode(ctx, "songs", "a", []float32{0, 0}))
	require.NoError(t, c.AddNodes(ctx, "songs", map[string][]float32{
		"b": {1, 0},
		"c": {0, 1.5},
	}))

	results, err := c.Search(ctx, "songs", 2, []float32{0.9, 0.1})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Name)
	assert.Equal(t, []float32{1, 0}, results[0].Vector)
	assert.InDelta(t, 0.1414, results[0].Distance, 1e-3)

	node, err := c.GetNode(ctx, "songs", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", node.Name)
	assert.ElementsMatch(t, []string{"b", "c"}, node.Neighbors[0])

	require.NoError(t, c.DeleteNode(ctx, "songs", "a"))
	_, err = c.GetNode(ctx, "songs", "a")
	require.Error(t, err)
	assert.Equal(t, "ERR Node: hnsw.songs.a does not exist", err.Error())

	require.NoError(t, c.DeleteIndex(ctx, "songs"))
	_, err = c.GetIndex(ctx, "songs")
	require.Error(t, err)
	assert.Equal(t, "ERR Index: hnsw.songs does not exist", err.Error())
}

func TestServer_ErrorReplies(t *testing.T) {
	_, addr := startServer(t, server.Options{})
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()

	cases := []struct {
		args []interface{}
		want string
	}{
		{[]interface{}{"hnsw.new"}, "ERR wrong number of arguments for 'hnsw.new' command"},
		{[]interface{}{"hnsw.search", "x", "1"}, "ERR wrong number of arguments for 'hnsw.search' command"},
		{[]interface{}{"hnsw.new", "x", "abc"}, "ERR value is not an integer or out of range"},
		{[]interface{}{"hnsw.new", "x", "-3"}, "ERR value is not an integer or out of range"},
		{[]interface{}{"hnsw.search", "x", "1", "nope"}, "ERR value is not a valid float"},
		{[]interface{}{"hnsw.new", "x", "0"}, "ERR invalid parameter: dimension must be positive, got 0"},
		{[]interface{}{"hnsw.new", "x", "4", "0"}, "ERR invalid parameter: m must be at least 2, got 0"},
		{[]interface{}{"hnsw.new", "x", "4", "5", "0"}, "ERR invalid parameter: ef_construction must be positive, got 0"},
		{[]interface{}{"hnsw.new", "x", "4", "5", "10", "hamming"}, "ERR invalid parameter: unknown metric \"hamming\""},
		{[]interface{}{"hnsw.get", "missing"}, "ERR Index: hnsw.missing does not exist"},
		{[]interface{}{"hnsw.search", "missing", "1", "1"}, "ERR Index: hnsw.missing does not exist"},
		{[]interface{}{"hnsw.bogus"}, "ERR unknown command 'hnsw.bogus'"},
	}
	for _, c := range cases {
		err := rdb.Do(ctx, c.args...).Err()
		require.Error(t, err, "%v", c.args)
		assert.Equal(t, c.want, err.Error(), "%v", c.args)
	}

	require.NoError(t, rdb.Do(ctx, "hnsw.new", "x", "2").Err())
	err := rdb.Do(ctx, "hnsw.node.add", "x", "n", "1").Err()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "ERR dimension mismatch"), err.Error())
}

func TestServer_SearchEmptyIndex(t *testing.T) {
	_, addr := startServer(t, server.Options{})
	c, ctx := newClient(t, addr)
	require.NoError(t, c.NewIndex(ctx, "empty", client.IndexParams{Dimension: 3}))
	results, err := c.Search(ctx, "empty", 5, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestServer_Builtins(t *testing.T) {
	_, addr := startServer(t, server.Options{})
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()

	pong, err := rdb.Ping(ctx).Result()
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)

	echo, err := rdb.Echo(ctx, "hello").Result()
	require.NoError(t, err)
	assert.Equal(t, "hello", echo)

	cmds, err := rdb.Do(ctx, "command").Slice()
	require.NoError(t, err)
	assert.Len(t, cmds, 11)
}

func TestServer_RateLimit(t *testing.T) {
	srv, addr := startServer(t, server.Options{RateLimit: 0.001, RateBurst: 2})
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()

	var limited error
	for i := 0; i < 5; i++ {
		if err := rdb.Do(ctx, "hnsw.get", "x").Err(); err != nil && !errors.Is(err, redis.Nil) {
			if err.Error() == "ERR rate limit exceeded" {
				limited = err
				break
			}
		}
	}
	require.Error(t, limited)

	n, err := testutil.GatherAndCount(srv.Metrics().Registry, "hnsw_commands_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2, "expected error and limited series")
}
