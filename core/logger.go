package core

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the core's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the core's logger; nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l != nil {
		l = l.Named("core")
	}
	logger.Store(l)
}
