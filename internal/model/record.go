package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Record is one row of a fetched collection. Every field the API returned is
// kept; enrichment writes derived fields onto a clone.
type Record map[string]any

// Float returns the numeric value of key. A missing key yields NaN and an
// explicit null yields 0, matching how the upstream dashboard coerced them.
func (r Record) Float(key string) float64 {
	v, ok := r[key]
	if !ok {
		return math.NaN()
	}
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// Key returns the identifier stored under field, normalized to a Key.
func (r Record) Key(field string) (Key, bool) {
	return KeyOf(r[field])
}

// Clone returns a deep copy. Nested maps and slices are copied so the clone
// shares no mutable state with r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Record:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// MarshalJSON encodes non-finite floats as null; encoding/json rejects them.
func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = finiteValue(v)
	}
	return json.Marshal(out)
}

func finiteValue(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return nil
		}
		return t
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = finiteValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = finiteValue(vv)
		}
		return s
	default:
		return v
	}
}
