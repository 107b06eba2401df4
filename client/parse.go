package client

import (
	"fmt"
	"strconv"

	"github.com/patrikhermansson/redis-hnsw/hnsw"
)

func asString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected string, got %T", ErrUnexpectedReply, v)
	}
	return s, nil
}

func asInt(v interface{}) (int, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: expected integer, got %T", ErrUnexpectedReply, v)
	}
	return int(n), nil
}

func asFloat(v interface{}) (float64, error) {
	s, err := asString(v)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}
	return f, nil
}

func asSlice(v interface{}) ([]interface{}, error) {
	s, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %T", ErrUnexpectedReply, v)
	}
	return s, nil
}

func asVector(v interface{}) ([]float32, error) {
	items, err := asSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(items))
	for i, item := range items {
		f, err := asFloat(item)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

func asStrings(v interface{}) ([]string, error) {
	items, err := asSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		if out[i], err = asString(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// pairs turns a flat key/value reply into a map.
func pairs(reply []interface{}) (map[string]interface{}, error) {
	if len(reply)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of elements", ErrUnexpectedReply)
	}
	m := make(map[string]interface{}, len(reply)/2)
	for i := 0; i < len(reply); i += 2 {
		key, err := asString(reply[i])
		if err != nil {
			return nil, err
		}
		m[key] = reply[i+1]
	}
	return m, nil
}

func parseInfo(reply []interface{}) (hnsw.Info, error) {
	m, err := pairs(reply)
	if err != nil {
		return hnsw.Info{}, err
	}
	var info hnsw.Info
	if info.Name, err = asString(m["name"]); err != nil {
		return info, err
	}
	if info.Metric, err = asString(m["metric"]); err != nil {
		return info, err
	}
	ints := map[string]*int{
		"data_dim":        &info.Dimension,
		"m":               &info.M,
		"m_max":           &info.MMax,
		"m_max_0":         &info.MMax0,
		"ef_construction": &info.EfConstruction,
		"node_count":      &info.NodeCount,
		"max_layer":       &info.MaxLayer,
	}
	for key, target := range ints {
		if *target, err = asInt(m[key]); err != nil {
			return info, fmt.Errorf("%s: %w", key, err)
		}
	}
	if info.LevelMult, err = asFloat(m["level_mult"]); err != nil {
		return info, err
	}
	if ep := m["enterpoint"]; ep != nil {
		if info.EntryPoint, err = asString(ep); err != nil {
			return info, err
		}
	}
	return info, nil
}

func parseNode(reply []interface{}) (hnsw.NodeRecord, error) {
	m, err := pairs(reply)
	if err != nil {
		return hnsw.NodeRecord{}, err
	}
	var rec hnsw.NodeRecord
	if rec.Name, err = asString(m["name"]); err != nil {
		return rec, err
	}
	if rec.Vector, err = asVector(m["data"]); err != nil {
		return rec, err
	}
	layers, err := asSlice(m["neighbors"])
	if err != nil {
		return rec, err
	}
	rec.Neighbors = make([][]string, len(layers))
	for l, layer := range layers {
		if rec.Neighbors[l], err = asStrings(layer); err != nil {
			return rec, err
		}
	}
	if len(layers) > 0 {
		rec.Level = len(layers) - 1
	}
	return rec, nil
}

func parseResults(reply []interface{}) ([]hnsw.SearchResult, error) {
	if len(reply) == 0 {
		return nil, fmt.Errorf("%w: empty search reply", ErrUnexpectedReply)
	}
	count, err := asInt(reply[0])
	if err != nil {
		return nil, err
	}
	if count != len(reply)-1 {
		return nil, fmt.Errorf("%w: count %d but %d results", ErrUnexpectedReply, count, len(reply)-1)
	}
	results := make([]hnsw.SearchResult, 0, count)
	for _, item := range reply[1:] {
		fields, err := asSlice(item)
		if err != nil {
			return nil, err
		}
		m, err := pairs(fields)
		if err != nil {
			return nil, err
		}
		var r hnsw.SearchResult
		if r.Distance, err = asFloat(m["distance"]); err != nil {
			return nil, err
		}
		if r.Name, err = asString(m["name"]); err != nil {
			return nil, err
		}
		if r.Vector, err = asVector(m["data"]); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}
