package server

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.SugaredLogger]

func log() *zap.SugaredLogger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop().Sugar()
}

// SetLogger routes server logs to l under the "server" name.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger.Store(nil)
		return
	}
	logger.Store(l.Named("server").Sugar())
}
