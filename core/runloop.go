package core

import (
	"fmt"
	"time"

	"github.com/boypt/dlbridge/engine"
	"go.uber.org/zap"
)

// BusyRun is returned by RunOnce when another one-shot run is in progress.
const BusyRun = 1

// RunOnce performs one engine iteration and returns the engine's code, or
// BusyRun without calling the engine when a run is already in progress.
// A panic in the engine becomes an ENGINE_ERROR with code -1.
func (s *State) RunOnce() (int, error) {
	sess, err := s.claimRun()
	if err != nil {
		return 0, err
	}
	if sess == nil {
		return BusyRun, nil
	}
	defer s.releaseRun()
	return runEngineOnce(sess)
}

func (s *State) claimRun() (engine.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireSession("run"); err != nil {
		return nil, err
	}
	if s.RunLoopActive() {
		return nil, newError(CodeRunLoopActive, "run")
	}
	if !s.runInProgress.CompareAndSwap(false, true) {
		return nil, nil
	}
	return s.session, nil
}

func (s *State) releaseRun() {
	s.runMu.Lock()
	s.runInProgress.Store(false)
	s.runCond.Broadcast()
	s.runMu.Unlock()
}

func runEngineOnce(sess engine.Session) (code int, err error) {
	defer func() {
		if p := recover(); p != nil {
			Logger().Error("engine run panicked", zap.String("panic", fmt.Sprint(p)))
			code, err = -1, engineError("run", -1, fmt.Errorf("panic: %v", p))
		}
	}()
	return sess.Run(engine.RunOnce), nil
}

// WaitForPendingRun blocks until no one-shot run is in progress.
func (s *State) WaitForPendingRun() {
	if s.opts.PendingPoll > 0 {
		for s.runInProgress.Load() {
			time.Sleep(s.opts.PendingPoll)
		}
		return
	}
	s.runMu.Lock()
	for s.runInProgress.Load() {
		s.runCond.Wait()
	}
	s.runMu.Unlock()
}

// StartRunLoop spawns the worker that drives the engine until it finishes
// or is shut down. It does nothing when the loop is already active.
func (s *State) StartRunLoop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "startRunLoop"
	if err := s.requireSession(op); err != nil {
		return err
	}
	if s.RunLoopActive() {
		return nil
	}
	s.WaitForPendingRun()
	if err := s.joinWorker(op); err != nil {
		return err
	}
	w := &worker{done: make(chan struct{})}
	s.worker = w
	s.loop.Store(w)
	go s.runLoop(s.session, w)
	Logger().Debug("run loop started", zap.String("session", s.sessionID))
	return nil
}

func (s *State) runLoop(sess engine.Session, w *worker) {
	defer close(w.done)
	defer s.loop.CompareAndSwap(w, nil)
	defer func() {
		if p := recover(); p != nil {
			Logger().Error("run loop panicked", zap.String("panic", fmt.Sprint(p)))
		}
	}()
	code := sess.Run(engine.RunDefault)
	Logger().Debug("run loop exited", zap.Int("code", code))
}

// StopRunLoop shuts the engine down and joins the worker. When the loop is
// not active it only reaps a worker that already finished.
func (s *State) StopRunLoop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "stopRunLoop"
	if err := s.requireLibrary(op); err != nil {
		return err
	}
	if !s.RunLoopActive() {
		s.reapWorker()
		return nil
	}
	return s.stopRunLoop(op)
}

// stopRunLoop must be called with the write lock held.
func (s *State) stopRunLoop(op string) error {
	if s.RunLoopActive() && s.session != nil {
		s.loop.Store(nil)
		code := s.session.Shutdown(true)
		Logger().Debug("run loop stopping", zap.Int("shutdown", code))
	}
	return s.joinWorker(op)
}

func (s *State) reapWorker() {
	if s.worker == nil {
		return
	}
	select {
	case <-s.worker.done:
		s.worker = nil
	default:
	}
}

// joinWorker waits for the recorded worker, bounded by StopTimeout. On
// timeout the worker stays recorded.
func (s *State) joinWorker(op string) error {
	w := s.worker
	if w == nil {
		return nil
	}
	if s.opts.StopTimeout <= 0 {
		<-w.done
		s.worker = nil
		return nil
	}
	t := time.NewTimer(s.opts.StopTimeout)
	defer t.Stop()
	select {
	case <-w.done:
		s.worker = nil
		return nil
	case <-t.C:
		return &Error{Code: CodeRunLoopStuck, Op: op, Detail: fmt.Sprintf("not stopped after %s", s.opts.StopTimeout)}
	}
}
