package core

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boypt/dlbridge/engine"
	"github.com/boypt/dlbridge/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestRunOnce_concurrent(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	sess.SetRunOnce(50*time.Millisecond, 0)

	const n = 8
	var busy, ran atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			code, err := s.RunOnce()
			assert.NoError(t, err)
			if code == BusyRun {
				busy.Add(1)
			} else {
				ran.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, sess.MaxRunning())
	assert.Equal(t, int(ran.Load()), sess.RunOnceCalls())
	assert.Equal(t, int32(n), busy.Load()+ran.Load())
	assert.Positive(t, busy.Load())
	assert.False(t, s.RunInProgress())
}

func TestRunOnce_panic(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	sess.SetPanicOnRun(true)

	code, err := s.RunOnce()
	assert.Equal(t, -1, code)
	assert.ErrorIs(t, err, ErrEngine)
	native, ok := NativeCode(err)
	assert.True(t, ok)
	assert.Equal(t, -1, native)
	assert.False(t, s.RunInProgress())

	sess.SetPanicOnRun(false)
	sess.SetRunOnce(0, 1)
	code, err = s.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func TestRunOnce_whileRunLoop(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	require.NoError(t, s.StartRunLoop())

	_, err := s.RunOnce()
	assert.ErrorIs(t, err, ErrRunLoopActive)
	assert.Equal(t, 0, sess.RunOnceCalls())
	require.NoError(t, s.StopRunLoop())
}

func TestStartStopRunLoop(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.StartRunLoop())
		assert.True(t, s.RunLoopActive())
		require.NoError(t, s.StopRunLoop())

		assert.False(t, s.RunLoopActive())
		assert.Equal(t, 0, sess.Running())
		assert.Equal(t, i, sess.RunDefaultCalls())
		assert.Equal(t, i, sess.Shutdowns())
		assert.True(t, sess.LastShutdownForce())
	}
	assert.Equal(t, 1, sess.MaxRunning())
	assert.Equal(t, PhaseSessionOpen, s.Phase())
}

func TestStartRunLoop_idempotent(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	require.NoError(t, s.StartRunLoop())
	require.Eventually(t, func() bool { return sess.Running() == 1 }, waitFor, tick)
	require.NoError(t, s.StartRunLoop())
	require.NoError(t, s.StopRunLoop())

	assert.Equal(t, 1, sess.RunDefaultCalls())
	assert.Equal(t, 1, sess.MaxRunning())
}

func TestStartRunLoop_waitsForPendingRun(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	sess.SetRunOnce(80*time.Millisecond, 0)

	go s.RunOnce()
	require.Eventually(t, s.RunInProgress, waitFor, tick)
	require.NoError(t, s.StartRunLoop())
	require.NoError(t, s.StopRunLoop())

	assert.Equal(t, 1, sess.MaxRunning())
}

func TestStopRunLoop_notActive(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})

	begin := time.Now()
	assert.NoError(t, s.StopRunLoop())
	assert.NoError(t, s.StopRunLoop())
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
	assert.Equal(t, 0, sess.Shutdowns())

	// without a session the stop is still a no-op
	_, err := s.SessionClose()
	require.NoError(t, err)
	assert.NoError(t, s.StopRunLoop())
}

func TestRunLoop_finishedOnItsOwn(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	require.NoError(t, s.StartRunLoop())
	require.Eventually(t, func() bool { return sess.Running() == 1 }, waitFor, tick)

	sess.Finish()
	require.Eventually(t, func() bool { return !s.RunLoopActive() }, waitFor, tick)
	require.NoError(t, s.StopRunLoop())
	assert.Equal(t, 0, sess.Shutdowns())

	require.NoError(t, s.StartRunLoop())
	require.NoError(t, s.StopRunLoop())
	assert.Equal(t, 2, sess.RunDefaultCalls())
}

func TestRunLoop_panic(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	sess.SetPanicOnRun(true)
	require.NoError(t, s.StartRunLoop())
	require.Eventually(t, func() bool { return !s.RunLoopActive() }, waitFor, tick)

	_, err := s.SessionClose()
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Finals())
}

// stuckSession ignores shutdown requests until unblocked.
type stuckSession struct {
	*enginetest.Session
	unblock chan struct{}
}

func (s *stuckSession) Run(mode engine.RunMode) int {
	if mode == engine.RunOnce {
		return s.Session.Run(mode)
	}
	<-s.unblock
	return 0
}

func (s *stuckSession) Shutdown(force bool) int { return 0 }

type stuckLibrary struct {
	*enginetest.Library
	session *stuckSession
}

func (l *stuckLibrary) NewSession(options engine.KeyVals, config engine.SessionConfig) engine.Session {
	inner, _ := l.Library.NewSession(options, config).(*enginetest.Session)
	l.session = &stuckSession{Session: inner, unblock: make(chan struct{})}
	return l.session
}

func newStuckState(t *testing.T) (*State, *stuckLibrary) {
	t.Helper()
	lib := &stuckLibrary{Library: enginetest.NewLibrary()}
	s := New(lib, Options{StopTimeout: 50 * time.Millisecond})
	_, err := s.LibraryInit()
	require.NoError(t, err)
	require.NoError(t, s.SessionOpen(nil, true))
	require.NoError(t, s.StartRunLoop())
	return s, lib
}

func TestStopRunLoop_stuck(t *testing.T) {
	s, lib := newStuckState(t)
	defer s.Close()

	err := s.StopRunLoop()
	assert.ErrorIs(t, err, ErrRunLoopStuck)
	assert.False(t, s.RunLoopActive())

	_, err = s.SessionClose()
	assert.ErrorIs(t, err, ErrRunLoopStuck)
	assert.Equal(t, PhaseSessionOpen, s.Phase())
	assert.ErrorIs(t, s.StartRunLoop(), ErrRunLoopStuck)
	assert.Equal(t, 0, lib.session.Finals())

	close(lib.session.unblock)
	code, err := s.SessionClose()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, lib.session.Finals())
}

func TestLibraryDeinit_stuck(t *testing.T) {
	s, lib := newStuckState(t)
	defer s.Close()
	defer close(lib.session.unblock)

	code, err := s.LibraryDeinit()
	assert.Equal(t, 0, code)
	assert.ErrorIs(t, err, ErrRunLoopStuck)
	assert.Equal(t, PhaseUninitialized, s.Phase())
	assert.Equal(t, 0, lib.session.Finals())
	_, deinits := lib.Counts()
	assert.Equal(t, 1, deinits)
}

func TestLibraryDeinit_stuckThenNewSession(t *testing.T) {
	s, lib := newStuckState(t)
	defer s.Close()
	abandoned := lib.session

	_, err := s.LibraryDeinit()
	assert.ErrorIs(t, err, ErrRunLoopStuck)

	_, err = s.LibraryInit()
	require.NoError(t, err)
	require.NoError(t, s.SessionOpen(nil, true))
	require.NoError(t, s.StartRunLoop())
	current := lib.session
	require.NotSame(t, abandoned, current)
	defer close(current.unblock)

	// the abandoned worker exiting must not clear the new loop
	close(abandoned.unblock)
	assert.Never(t, func() bool { return !s.RunLoopActive() }, 50*time.Millisecond, tick)
}

func TestShutdown(t *testing.T) {
	s, _, sess := openTestSession(t, Options{})
	code, err := s.Shutdown(false)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, sess.Shutdowns())
	assert.False(t, sess.LastShutdownForce())
	assert.Equal(t, PhaseSessionOpen, s.Phase())
}
