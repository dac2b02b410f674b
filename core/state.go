// Package core coordinates the lifecycle of a download engine: the library
// and session state, the background run loop and the relay that carries
// download events to a subscriber.
package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boypt/dlbridge/engine"
)

type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLibraryReady
	PhaseSessionOpen
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLibraryReady:
		return "library-ready"
	case PhaseSessionOpen:
		return "session-open"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// DefaultPendingPoll is the usual interval for Options.PendingPoll.
const DefaultPendingPoll = 10 * time.Millisecond

type Options struct {
	// Executor delivers events to the subscriber. Nil starts a private
	// serial executor owned by the State.
	Executor Executor
	// PendingPoll > 0 makes WaitForPendingRun poll at that interval
	// instead of waiting on a condition variable.
	PendingPoll time.Duration
	// StopTimeout bounds the join of the run-loop worker. Zero waits
	// forever.
	StopTimeout time.Duration
}

type worker struct {
	done chan struct{}
}

// State owns at most one engine session and at most one run-loop worker.
// Lifecycle operations take the write lock, download operations the read
// lock.
type State struct {
	mu    sync.RWMutex
	lib   engine.Library
	opts  Options
	relay *Relay

	libraryInitialized bool
	session            engine.Session
	sessionID          string
	worker             *worker
	closed             bool

	loop          atomic.Pointer[worker]
	runInProgress atomic.Bool

	runMu   sync.Mutex
	runCond *sync.Cond
}

// New returns a State driving lib. A nil lib yields a State whose every
// operation fails with NATIVE_MISSING.
func New(lib engine.Library, opts Options) *State {
	s := &State{
		lib:   lib,
		opts:  opts,
		relay: NewRelay(opts.Executor),
	}
	s.runCond = sync.NewCond(&s.runMu)
	return s
}

func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.session != nil:
		return PhaseSessionOpen
	case s.libraryInitialized:
		return PhaseLibraryReady
	}
	return PhaseUninitialized
}

// SessionID is the id of the open session, or "".
func (s *State) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

func (s *State) RunLoopActive() bool { return s.loop.Load() != nil }
func (s *State) RunInProgress() bool { return s.runInProgress.Load() }

// Relay is the event relay of this State.
func (s *State) Relay() *Relay { return s.relay }

// SetSubscriber is shorthand for Relay().SetSubscriber.
func (s *State) SetSubscriber(sub Subscriber) {
	s.relay.SetSubscriber(sub)
}

// Close tears everything down: it stops the run loop, waits for a pending
// run, finalizes the session, deinitializes the library, detaches the
// subscriber and stops the relay. Later operations fail with
// NATIVE_MISSING. Close is idempotent.
func (s *State) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.lib != nil {
		if s.session != nil {
			if _, err := s.closeSession("dispose", true); err != nil {
				Logger().Warn("dispose: " + err.Error())
			}
		}
		if s.libraryInitialized {
			if code := s.lib.Deinit(); code != 0 {
				Logger().Warn(fmt.Sprintf("dispose: library deinit returned %d", code))
			}
			s.libraryInitialized = false
		}
		s.lib = nil
	}
	s.mu.Unlock()
	s.relay.Close()
}

// requireLibrary must be called with s.mu held.
func (s *State) requireLibrary(op string) error {
	if s.lib == nil {
		return newError(CodeNativeMissing, op)
	}
	return nil
}

// requireSession must be called with s.mu held.
func (s *State) requireSession(op string) error {
	if err := s.requireLibrary(op); err != nil {
		return err
	}
	if s.session == nil {
		return newError(CodeNoSession, op)
	}
	return nil
}
