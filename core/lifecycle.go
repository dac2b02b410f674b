package core

import (
	"github.com/boypt/dlbridge/engine"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LibraryInit initializes the engine library. A nonzero engine code is
// returned together with an INIT_FAILED error and leaves the State
// uninitialized.
func (s *State) LibraryInit() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "libraryInit"
	if err := s.requireLibrary(op); err != nil {
		return 0, err
	}
	if s.libraryInitialized {
		return 0, newError(CodeAlreadyInitialized, op)
	}
	if code := s.lib.Init(); code != 0 {
		return code, &Error{Code: CodeInitFailed, Op: op, Native: code}
	}
	s.libraryInitialized = true
	Logger().Debug("library initialized")
	return 0, nil
}

// LibraryDeinit closes any open session and deinitializes the engine
// library. The State is uninitialized afterwards and the engine's deinit
// code is returned. The error is non-nil only when a stuck run loop forced
// the session to be abandoned without its final call.
func (s *State) LibraryDeinit() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "libraryDeinit"
	if err := s.requireLibrary(op); err != nil {
		return 0, err
	}
	var stuck error
	if s.session != nil {
		if _, err := s.closeSession(op, true); err != nil {
			stuck = err
		}
	}
	code := s.lib.Deinit()
	s.libraryInitialized = false
	Logger().Debug("library deinitialized", zap.Int("code", code))
	return code, stuck
}

// SessionOpen creates the engine session. Its events are published
// through the State's relay.
func (s *State) SessionOpen(options engine.KeyVals, keepRunning bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "sessionNew"
	if err := s.requireLibrary(op); err != nil {
		return err
	}
	if !s.libraryInitialized {
		return newError(CodeNotInitialized, op)
	}
	if s.session != nil {
		return newError(CodeSessionExists, op)
	}
	sess := s.lib.NewSession(options, engine.SessionConfig{
		KeepRunning: keepRunning,
		OnEvent:     s.relay.onEngineEvent,
	})
	if sess == nil {
		return newError(CodeSessionFailed, op)
	}
	s.session = sess
	s.sessionID = uuid.NewString()
	Logger().Info("session opened",
		zap.String("session", s.sessionID),
		zap.Bool("keepRunning", keepRunning),
		zap.Int("options", len(options)))
	return nil
}

// SessionClose stops the run loop, waits for a pending one-shot run and
// finalizes the session. The engine's final code is returned.
func (s *State) SessionClose() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "sessionFinal"
	if err := s.requireSession(op); err != nil {
		return 0, err
	}
	return s.closeSession(op, false)
}

// Shutdown asks the engine to begin terminating its transfers.
func (s *State) Shutdown(force bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSession("shutdown"); err != nil {
		return 0, err
	}
	code := s.session.Shutdown(force)
	Logger().Debug("shutdown requested", zap.Bool("force", force), zap.Int("code", code))
	return code, nil
}

// closeSession must be called with the write lock held. When the worker
// cannot be joined the session stays open, unless abandon is set: then the
// handle and its worker are dropped without Final since the engine is still
// running.
func (s *State) closeSession(op string, abandon bool) (int, error) {
	sess, id := s.session, s.sessionID
	if err := s.stopRunLoop(op); err != nil {
		if !abandon {
			return 0, err
		}
		Logger().Warn("abandoning session with stuck run loop", zap.String("session", id))
		s.session, s.sessionID = nil, ""
		s.worker = nil
		return 0, err
	}
	s.WaitForPendingRun()
	code := sess.Final()
	s.session, s.sessionID = nil, ""
	Logger().Info("session closed", zap.String("session", id), zap.Int("code", code))
	return code, nil
}
