package bridge

import (
	"encoding/json"
	"testing"

	"github.com/boypt/dlbridge/engine"
	"github.com/stretchr/testify/assert"
)

func TestArgs_Int(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int
	}{
		{"int", 3, 3},
		{"int32", int32(-1), -1},
		{"int64", int64(1 << 20), 1 << 20},
		{"uint8", uint8(7), 7},
		{"float", float64(2), 2},
		{"fraction", 2.5, 9},
		{"number", json.Number("12"), 12},
		{"string", "5", 9},
		{"missing", nil, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Args{}
			if tt.in != nil {
				a["n"] = tt.in
			}
			assert.Equal(t, tt.want, a.Int("n", 9))
		})
	}
}

func TestArgs_Strings(t *testing.T) {
	a := Args{
		"mixed": []interface{}{"http://a", 1, "http://b"},
		"typed": []string{"x"},
		"empty": []interface{}{},
		"bad":   "http://a",
	}
	list, ok := a.Strings("mixed")
	assert.True(t, ok)
	assert.Equal(t, []string{"http://a", "http://b"}, list)
	list, ok = a.Strings("typed")
	assert.True(t, ok)
	assert.Equal(t, []string{"x"}, list)
	list, ok = a.Strings("empty")
	assert.True(t, ok)
	assert.Empty(t, list)
	_, ok = a.Strings("bad")
	assert.False(t, ok)
	_, ok = a.Strings("missing")
	assert.False(t, ok)
}

func TestArgs_Options(t *testing.T) {
	a := Args{
		"generic": map[string]interface{}{"out": "f", "dir": "/tmp", "bogus": 1},
		"typed":   map[string]string{"b": "2", "a": "1"},
	}
	assert.Equal(t, engine.KeyVals{{Key: "dir", Value: "/tmp"}, {Key: "out", Value: "f"}}, a.Options("generic"))
	assert.Equal(t, engine.KeyVals{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, a.Options("typed"))
	assert.Empty(t, a.Options("missing"))
}

func TestArgs_scalars(t *testing.T) {
	a := Args{"gid": "00ff", "force": true, "wrong": 1}
	assert.Equal(t, "00ff", a.String("gid"))
	assert.Equal(t, "", a.String("wrong"))
	assert.True(t, a.Bool("force", false))
	assert.True(t, a.Bool("wrong", true))
	assert.False(t, a.Bool("missing", false))
}
