package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boypt/dlbridge/engine"
	"github.com/boypt/dlbridge/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	evs []Event
}

func (r *recorder) OnDownloadEvent(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return nil
}

func (r *recorder) events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.evs...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evs)
}

type rejectAll struct{}

func (rejectAll) Post(func()) bool { return false }

func TestRelay_noSubscriber(t *testing.T) {
	r := NewRelay(nil)
	defer r.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Publish(Event{Kind: engine.EventStart, GID: "0000000000000001"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("publish blocked without subscriber")
	}
	delivered, dropped := r.Stats()
	assert.Equal(t, uint64(0), delivered)
	assert.Equal(t, uint64(100), dropped)
}

func TestRelay_order(t *testing.T) {
	r := NewRelay(nil)
	defer r.Close()
	rec := &recorder{}
	r.SetSubscriber(rec)

	const n = 1000
	for i := 0; i < n; i++ {
		r.Publish(Event{Kind: engine.DownloadEvent(i%6 + 1), GID: engine.GID(i + 1).Hex()})
	}
	require.Eventually(t, func() bool { return rec.len() == n }, waitFor, tick)
	for i, ev := range rec.events() {
		require.Equal(t, engine.GID(i+1).Hex(), ev.GID)
		require.Equal(t, engine.DownloadEvent(i%6+1), ev.Kind)
	}
}

func TestRelay_engineCallback(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	rec := &recorder{}
	s.SetSubscriber(rec)

	go sess.EmitEvent(engine.EventComplete, 0x2089b05ecca3d829)
	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, tick)
	assert.Equal(t, Event{Kind: engine.EventComplete, GID: "2089b05ecca3d829"}, rec.events()[0])
}

func TestRelay_replaceSubscriber(t *testing.T) {
	r := NewRelay(nil)
	defer r.Close()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var oldMu sync.Mutex
	var oldGot []Event
	old := SubscriberFunc(func(ev Event) error {
		oldMu.Lock()
		oldGot = append(oldGot, ev)
		first := len(oldGot) == 1
		oldMu.Unlock()
		if first {
			close(entered)
			<-unblock
		}
		return nil
	})
	r.SetSubscriber(old)
	r.Publish(Event{Kind: engine.EventStart, GID: "0000000000000001"})
	<-entered

	rec := &recorder{}
	swapped := make(chan struct{})
	go func() {
		r.SetSubscriber(rec)
		close(swapped)
	}()
	r.Publish(Event{Kind: engine.EventComplete, GID: "0000000000000001"})
	assert.Never(t, func() bool {
		select {
		case <-swapped:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, tick)

	close(unblock)
	<-swapped
	r.Publish(Event{Kind: engine.EventStop, GID: "0000000000000002"})
	require.Eventually(t, func() bool { return rec.len() == 2 }, waitFor, tick)

	oldMu.Lock()
	defer oldMu.Unlock()
	assert.Len(t, oldGot, 1)
	assert.Equal(t, engine.EventComplete, rec.events()[0].Kind)
	assert.Equal(t, engine.EventStop, rec.events()[1].Kind)
}

func TestRelay_failedDelivery(t *testing.T) {
	r := NewRelay(nil)
	defer r.Close()
	rec := &recorder{}
	calls := 0
	r.SetSubscriber(SubscriberFunc(func(ev Event) error {
		calls++
		switch calls {
		case 1:
			return errors.New("channel gone")
		case 2:
			panic("destination torn down")
		}
		return rec.OnDownloadEvent(ev)
	}))
	for i := 0; i < 3; i++ {
		r.Publish(Event{Kind: engine.EventError, GID: engine.GID(i + 1).Hex()})
	}
	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, tick)
	assert.Equal(t, "0000000000000003", rec.events()[0].GID)

	delivered, dropped := r.Stats()
	assert.Equal(t, uint64(1), delivered)
	assert.Equal(t, uint64(2), dropped)
}

func TestRelay_rejectingExecutor(t *testing.T) {
	r := NewRelay(rejectAll{})
	defer r.Close()
	rec := &recorder{}
	r.SetSubscriber(rec)

	r.Publish(Event{Kind: engine.EventStart, GID: "0000000000000001"})
	_, dropped := r.Stats()
	assert.Equal(t, uint64(1), dropped)
	assert.Equal(t, 0, rec.len())
}

func TestSerialExecutor_stop(t *testing.T) {
	e := NewSerialExecutor()
	var mu sync.Mutex
	var ran []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, e.Post(func() {
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
		}))
	}
	e.Stop()
	e.Stop()
	assert.False(t, e.Post(func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, ran)
}

func TestState_closeDetachesSubscriber(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	rec := &recorder{}
	s.SetSubscriber(rec)
	s.Close()

	sess.EmitEvent(engine.EventStop, 1)
	assert.False(t, s.Relay().HasSubscriber())
	assert.Equal(t, 0, rec.len())
}

// haltingSession reports a stop event once its run loop returns, the way
// the native engine does when it halts its transfers.
type haltingSession struct {
	*enginetest.Session
}

func (s *haltingSession) Run(mode engine.RunMode) int {
	code := s.Session.Run(mode)
	if mode == engine.RunDefault {
		s.EmitEvent(engine.EventStop, 0x1001)
	}
	return code
}

type haltingLibrary struct {
	*enginetest.Library
}

func (l *haltingLibrary) NewSession(options engine.KeyVals, config engine.SessionConfig) engine.Session {
	inner, _ := l.Library.NewSession(options, config).(*enginetest.Session)
	return &haltingSession{Session: inner}
}

func TestRelay_reentrantSubscriberDuringTeardown(t *testing.T) {
	tests := []struct {
		name     string
		teardown func(s *State) error
	}{
		{"stopRunLoop", func(s *State) error { return s.StopRunLoop() }},
		{"sessionFinal", func(s *State) error { _, err := s.SessionClose(); return err }},
		{"libraryDeinit", func(s *State) error { _, err := s.LibraryDeinit(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&haltingLibrary{Library: enginetest.NewLibrary()}, Options{})
			defer s.Close()
			_, err := s.LibraryInit()
			require.NoError(t, err)
			require.NoError(t, s.SessionOpen(nil, true))
			gid, err := s.AddURI([]string{"http://example/file"}, nil, -1)
			require.NoError(t, err)
			require.NoError(t, s.StartRunLoop())

			entered := make(chan struct{}, 1)
			s.SetSubscriber(SubscriberFunc(func(ev Event) error {
				select {
				case entered <- struct{}{}:
				default:
				}
				time.Sleep(50 * time.Millisecond)
				// queries the State like the server's event log does
				_, _ = s.DownloadInfo(ev.GID)
				return nil
			}))
			s.Relay().Publish(Event{Kind: engine.EventStart, GID: gid})
			<-entered

			swapped := make(chan struct{})
			go func() {
				s.SetSubscriber(nil)
				close(swapped)
			}()
			done := make(chan error, 1)
			go func() { done <- tt.teardown(s) }()

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(waitFor):
				t.Fatal("teardown blocked by a subscriber calling back into the state")
			}
			select {
			case <-swapped:
			case <-time.After(waitFor):
				t.Fatal("subscriber swap never returned")
			}
			assert.False(t, s.RunLoopActive())
			assert.False(t, s.Relay().HasSubscriber())
		})
	}
}

func TestRelay_publishDuringSwap(t *testing.T) {
	r := NewRelay(nil)
	defer r.Close()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	r.SetSubscriber(SubscriberFunc(func(ev Event) error {
		if ev.Kind == engine.EventStart {
			close(entered)
			<-unblock
		}
		return nil
	}))
	r.Publish(Event{Kind: engine.EventStart, GID: "0000000000000001"})
	<-entered

	swapped := make(chan struct{})
	go func() {
		r.SetSubscriber(nil)
		close(swapped)
	}()

	published := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Publish(Event{Kind: engine.EventStop, GID: "0000000000000001"})
		}
		close(published)
	}()
	select {
	case <-published:
	case <-time.After(waitFor):
		t.Fatal("publish blocked behind a subscriber swap")
	}

	close(unblock)
	<-swapped
	r.ownExec.Stop()
	delivered, dropped := r.Stats()
	assert.GreaterOrEqual(t, delivered, uint64(1))
	assert.Equal(t, uint64(11), delivered+dropped)
}
