// Package client is a typed client for the hnsw.* command set.
package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/patrikhermansson/redis-hnsw/hnsw"
)

// Options configures the connection pool.
type Options struct {
	Addr         string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultOptions returns sensible defaults for a local server.
func DefaultOptions() Options {
	return Options{
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// IndexParams are the optional hnsw.new arguments. Zero fields are sent as
// the server defaults when a later field is set, and omitted otherwise.
type IndexParams struct {
	Dimension      int
	M              int
	EfConstruction int
	Metric         string
}

// Defaults mirrored from the server.
const (
	DefaultDimension      = 512
	DefaultM              = 5
	DefaultEfConstruction = 200
)

// ErrUnexpectedReply is returned when a reply does not have the expected shape.
var ErrUnexpectedReply = errors.New("unexpected reply")

// Client talks to a redis-hnsw server.
type Client struct {
	rdb *redis.Client
}

// New creates a client. No connection is made until the first command.
func New(opts Options) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})}
}

// Dial creates a client and verifies the connection with PING.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	c := New(opts)
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Addr, err)
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func newIndexArgs(name string, p IndexParams) []interface{} {
	args := []interface{}{"hnsw.new", name}
	ints := []struct{ v, def int }{
		{p.Dimension, DefaultDimension},
		{p.M, DefaultM},
		{p.EfConstruction, DefaultEfConstruction},
	}
	last := -1
	for i, n := range ints {
		if n.v != 0 {
			last = i
		}
	}
	if p.Metric != "" {
		last = len(ints)
	}
	for i := 0; i <= last && i < len(ints); i++ {
		v := ints[i].v
		if v == 0 {
			v = ints[i].def
		}
		args = append(args, v)
	}
	if p.Metric != "" {
		args = append(args, p.Metric)
	}
	return args
}

// NewIndex runs hnsw.new.
func (c *Client) NewIndex(ctx context.Context, name string, p IndexParams) error {
	return c.rdb.Do(ctx, newIndexArgs(name, p)...).Err()
}

// GetIndex runs hnsw.get.
func (c *Client) GetIndex(ctx context.Context, name string) (hnsw.Info, error) {
	reply, err := c.rdb.Do(ctx, "hnsw.get", name).Slice()
	if err != nil {
		return hnsw.Info{}, err
	}
	return parseInfo(reply)
}

// DeleteIndex runs hnsw.del.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	return c.rdb.Do(ctx, "hnsw.del", name).Err()
}

func vectorArgs(prefix []interface{}, v []float32) []interface{} {
	args := make([]interface{}, 0, len(prefix)+len(v))
	args = append(args, prefix...)
	for _, f := range v {
		args = append(args, strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	return args
}

// AddNode runs hnsw.node.add.
func (c *Client) AddNode(ctx context.Context, index, node string, vector []float32) error {
	return c.rdb.Do(ctx, vectorArgs([]interface{}{"hnsw.node.add", index, node}, vector)...).Err()
}

// AddNodes sends one hnsw.node.add per vector in a single pipeline, in name
// order. The first failure is returned.
func (c *Client) AddNodes(ctx context.Context, index string, vectors map[string][]float32) error {
	names := make([]string, 0, len(vectors))
	for name := range vectors {
		names = append(names, name)
	}
	sort.Strings(names)
	cmds, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, name := range names {
			pipe.Do(ctx, vectorArgs([]interface{}{"hnsw.node.add", index, name}, vectors[name])...)
		}
		return nil
	})
	if err != nil {
		for i, cmd := range cmds {
			if cmd.Err() != nil {
				return fmt.Errorf("node %s: %w", names[i], cmd.Err())
			}
		}
		return err
	}
	return nil
}

// GetNode runs hnsw.node.get.
func (c *Client) GetNode(ctx context.Context, index, node string) (hnsw.NodeRecord, error) {
	reply, err := c.rdb.Do(ctx, "hnsw.node.get", index, node).Slice()
	if err != nil {
		return hnsw.NodeRecord{}, err
	}
	return parseNode(reply)
}

// DeleteNode runs hnsw.node.del.
func (c *Client) DeleteNode(ctx context.Context, index, node string) error {
	return c.rdb.Do(ctx, "hnsw.node.del", index, node).Err()
}

// Search runs hnsw.search.
func (c *Client) Search(ctx context.Context, index string, k int, query []float32) ([]hnsw.SearchResult, error) {
	reply, err := c.rdb.Do(ctx, vectorArgs([]interface{}{"hnsw.search", index, k}, query)...).Slice()
	if err != nil {
		return nil, err
	}
	return parseResults(reply)
}
