package server

import (
	"errors"
	"math"
	"strconv"

	"github.com/tidwall/redcon"

	"github.com/patrikhermansson/redis-hnsw/hnsw"
)

// Error replies shared with the Redis command surface.
var (
	errNotInteger = errors.New("value is not an integer or out of range")
	errNotFloat   = errors.New("value is not a valid float")
	errRateLimit  = errors.New("rate limit exceeded")
)

func wrongArity(name string) error {
	return errors.New("wrong number of arguments for '" + name + "' command")
}

func writeError(conn redcon.Conn, err error) {
	conn.WriteError("ERR " + err.Error())
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatFloat32(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// writeVector replies with a vector as an array of bulk strings.
func writeVector(conn redcon.Conn, v []float32) {
	conn.WriteArray(len(v))
	for _, f := range v {
		conn.WriteBulkString(formatFloat32(f))
	}
}

// writeInfo replies with the index description as a flat key/value array.
func writeInfo(conn redcon.Conn, info hnsw.Info) {
	conn.WriteArray(22)
	conn.WriteBulkString("name")
	conn.WriteBulkString(info.Name)
	conn.WriteBulkString("metric")
	conn.WriteBulkString(info.Metric)
	conn.WriteBulkString("data_dim")
	conn.WriteInt(info.Dimension)
	conn.WriteBulkString("m")
	conn.WriteInt(info.M)
	conn.WriteBulkString("m_max")
	conn.WriteInt(info.MMax)
	conn.WriteBulkString("m_max_0")
	conn.WriteInt(info.MMax0)
	conn.WriteBulkString("ef_construction")
	conn.WriteInt(info.EfConstruction)
	conn.WriteBulkString("level_mult")
	conn.WriteBulkString(formatFloat(info.LevelMult))
	conn.WriteBulkString("node_count")
	conn.WriteInt(info.NodeCount)
	conn.WriteBulkString("max_layer")
	conn.WriteInt(info.MaxLayer)
	conn.WriteBulkString("enterpoint")
	if info.EntryPoint == "" {
		conn.WriteNull()
	} else {
		conn.WriteBulkString(info.EntryPoint)
	}
}

// writeNode replies with [name, n, data, [...], neighbors, [[...]...]].
func writeNode(conn redcon.Conn, rec hnsw.NodeRecord) {
	conn.WriteArray(6)
	conn.WriteBulkString("name")
	conn.WriteBulkString(rec.Name)
	conn.WriteBulkString("data")
	writeVector(conn, rec.Vector)
	conn.WriteBulkString("neighbors")
	conn.WriteArray(len(rec.Neighbors))
	for _, layer := range rec.Neighbors {
		conn.WriteArray(len(layer))
		for _, name := range layer {
			conn.WriteBulkString(name)
		}
	}
}

// writeResults replies with [count, [distance, d, name, n, data, [...]]...].
func writeResults(conn redcon.Conn, results []hnsw.SearchResult) {
	conn.WriteArray(len(results) + 1)
	conn.WriteInt(len(results))
	for _, r := range results {
		conn.WriteArray(6)
		conn.WriteBulkString("distance")
		conn.WriteBulkString(formatFloat(r.Distance))
		conn.WriteBulkString("name")
		conn.WriteBulkString(r.Name)
		conn.WriteBulkString("data")
		writeVector(conn, r.Vector)
	}
}

func parseInt(arg []byte) (int, error) {
	n, err := strconv.ParseInt(string(arg), 10, 0)
	if err != nil || n < 0 {
		return 0, errNotInteger
	}
	return int(n), nil
}

func parseVector(args [][]byte) ([]float32, error) {
	v := make([]float32, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(string(a), 32)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errNotFloat
		}
		v[i] = float32(f)
	}
	return v, nil
}
