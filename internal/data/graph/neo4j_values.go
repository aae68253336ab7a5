package graph

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// neo4j hands back int64 / float64 / string / []any for the values these
// queries return; nulls come back as nil.

func recInt64(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	return asInt64(v)
}

func recFloat(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func recString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func recInt64s(rec *neo4j.Record, key string) []int64 {
	v, _ := rec.Get(key)
	return asInt64s(v)
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asInt64s(v any) []int64 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		if id := asInt64(item); id != 0 {
			out = append(out, id)
		}
	}
	return out
}
