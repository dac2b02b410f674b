package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func Test_filteredLogger_filteredArg(t *testing.T) {
	type args struct {
		v []interface{}
	}
	tests := []struct {
		name string
		args args
		want []interface{}
	}{
		{"1", args{v: []interface{}{"123"}}, []interface{}{"123"}},
		{"2", args{v: []interface{}{"abcdef1234567890abcdef1234567890abcdef12"}}, []interface{}{"[abcdef..]"}},
		{"3", args{v: []interface{}{"abcdef1234567890abcdef1234567890abcdef12", "123"}}, []interface{}{"[abcdef..]", "123"}},
		{"4", args{v: []interface{}{kindHTTP, kindTorrent, kindMetalink}}, []interface{}{"[HTTP]", "[Torrent]", "[Metalink]"}},
		{"5", args{v: []interface{}{GID(0x2089b05ecca3d829)}}, []interface{}{"[2089b0..]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, log.filteredArg(tt.args.v...))
		})
	}
}

func Test_filteredLogger_Println(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	log.Println("added", GID(0x2089b05ecca3d829), "shoud hide")
	log.Printf("%s done", "abcdef1234567890abcdef1234567890abcdef12")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "added [2089b0..] shoud hide", entries[0].Message)
		assert.Equal(t, "[abcdef..] done", entries[1].Message)
		assert.Equal(t, "engine", entries[0].LoggerName)
	}
}

func Test_filteredLogger_Debugf(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	log.Debugf("%s %s promoted", kindHTTP, GID(0x2089b05ecca3d829))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zap.DebugLevel, entries[0].Level)
		assert.Equal(t, "[HTTP] [2089b0..] promoted", entries[0].Message)
	}
}
