package bridge

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/boypt/dlbridge/engine"
)

// Args is the argument map of one method call. Values of the wrong type
// are treated as absent.
type Args map[string]interface{}

func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

func (a Args) Bool(key string, def bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return def
}

// Int accepts every Go integer width, integral floats (as decoded from
// JSON) and json.Number.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float32:
		if f := float64(v); f == math.Trunc(f) {
			return int(f)
		}
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

// Strings returns the string items of a list argument; ok is false when
// key is missing or not a list.
func (a Args) Strings(key string) (list []string, ok bool) {
	switch v := a[key].(type) {
	case []string:
		return append([]string{}, v...), true
	case []interface{}:
		list = []string{}
		for _, item := range v {
			if s, isStr := item.(string); isStr {
				list = append(list, s)
			}
		}
		return list, true
	}
	return nil, false
}

// Options converts a string map argument into an options bag ordered by
// key. Non-string values are skipped.
func (a Args) Options(key string) engine.KeyVals {
	kv := engine.KeyVals{}
	switch v := a[key].(type) {
	case map[string]string:
		for k, val := range v {
			kv = append(kv, engine.KeyVal{Key: k, Value: val})
		}
	case map[string]interface{}:
		for k, val := range v {
			if s, ok := val.(string); ok {
				kv = append(kv, engine.KeyVal{Key: k, Value: s})
			}
		}
	}
	sort.Slice(kv, func(i, j int) bool { return kv[i].Key < kv[j].Key })
	return kv
}
