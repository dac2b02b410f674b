package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/boypt/dlbridge/core"
	"github.com/boypt/dlbridge/engine"
	"github.com/boypt/dlbridge/engine/enginetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	msgs   map[string][]string
	closed bool
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgs == nil {
		f.msgs = map[string][]string{}
	}
	b, _ := message.([]byte)
	f.msgs[channel] = append(f.msgs[channel], string(b))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePublisher) messages(channel string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.msgs[channel]...)
}

func TestEvents_recorded(t *testing.T) {
	s, lib := newTestServer(t, nil)
	gid, err := s.core().AddURI([]string{"http://example/file"}, nil, -1)
	require.NoError(t, err)
	lib.Session().Update(engine.HexToGID(gid), func(d *enginetest.Download) {
		d.Status = engine.StatusComplete
		d.TotalLength = 2000
		d.CompletedLength = 2000
	})

	lib.Session().EmitEvent(engine.EventComplete, engine.HexToGID(gid))
	require.Eventually(t, func() bool { return len(s.events()) == 1 }, waitFor, tick)

	rec := s.events()[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "complete", rec.Event)
	assert.Equal(t, int(engine.EventComplete), rec.Code)
	assert.Equal(t, gid, rec.GID)
	assert.Equal(t, "file", rec.Name)
	assert.Equal(t, engine.StatusComplete.String(), rec.Status)
	assert.Equal(t, "2.0 kB", rec.Size)
	assert.Equal(t, "2.0 kB / 2.0 kB (100%)", rec.Progress)
}

func TestEvents_ring(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ids := map[string]bool{}
	for i := 1; i <= maxEvents+50; i++ {
		rec := s.recordEvent(engine.EventStart, engine.GID(i).Hex())
		ids[rec.ID] = true
	}
	assert.Len(t, ids, maxEvents+50)

	evs := s.events()
	require.Len(t, evs, maxEvents)
	assert.Equal(t, engine.GID(51).Hex(), evs[0].GID)
	assert.Equal(t, engine.GID(maxEvents+50).Hex(), evs[maxEvents-1].GID)
	// unknown downloads carry no details
	assert.Empty(t, evs[0].Progress)
}

func TestEvents_unexpectedMethod(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.Error(t, s.onChannelMethod("somethingElse", nil))
	assert.Empty(t, s.events())
}

func TestProgress(t *testing.T) {
	tests := []struct {
		completed, total int64
		want             string
	}{
		{0, 0, "0 B"},
		{500, 0, "500 B"},
		{0, 1000, "0 B / 1.0 kB (0%)"},
		{250, 1000, "250 B / 1.0 kB (25%)"},
		{1, 3, "1 B / 3 B (33.3%)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, progress(tt.completed, tt.total))
	}
}

func TestDoneCmd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "done.out")
	script := filepath.Join(dir, "done.sh")
	require.NoError(t, os.WriteFile(script,
		[]byte("#!/bin/sh\necho \"$CLD_GID $CLD_EVENT $CLD_TYPE $CLD_DIR\" > "+out+"\n"), 0755))

	c := testConfig(t)
	c.DoneCmd = script
	s, lib := newTestServer(t, c)
	gid, err := s.core().AddURI([]string{"http://example/file"}, nil, -1)
	require.NoError(t, err)

	lib.Session().EmitEvent(engine.EventStart, engine.HexToGID(gid))
	lib.Session().EmitEvent(engine.EventComplete, engine.HexToGID(gid))

	var got string
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(out)
		got = strings.TrimSpace(string(b))
		return err == nil && got != ""
	}, waitFor, tick)
	assert.Equal(t, gid+" complete download "+c.DownloadDirectory, got)
}

func TestRedisSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := startSink(pub, "events")
	for i := 1; i <= 3; i++ {
		sink.Publish(eventRecord{ID: engine.GID(i).Hex(), Event: "start", GID: engine.GID(i).Hex()})
	}
	sink.Close()
	sink.Close()

	msgs := pub.messages("events")
	require.Len(t, msgs, 3)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msgs[2]), &rec))
	assert.Equal(t, "0000000000000003", rec["gid"])
	assert.Equal(t, "start", rec["event"])
	assert.NotContains(t, rec, "size")
	assert.True(t, pub.closed)
}

func TestRedisSink_events(t *testing.T) {
	pub := &fakePublisher{}
	s := &Server{Title: "test"}
	s.setup("test", testConfig(t))
	s.sink = startSink(pub, "dl")
	require.NoError(t, s.start(enginetest.NewLibrary()))
	defer s.Close()

	gid, err := s.core().AddURI([]string{"http://example/file"}, nil, -1)
	require.NoError(t, err)
	s.core().Relay().Publish(core.Event{Kind: engine.EventPause, GID: gid})
	require.Eventually(t, func() bool { return len(pub.messages("dl")) == 1 }, waitFor, tick)
	assert.Contains(t, pub.messages("dl")[0], `"event":"pause"`)
}

func TestNewRedisSink_noAddr(t *testing.T) {
	_, err := newRedisSink("", "x")
	assert.Error(t, err)
}
