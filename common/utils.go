package common

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// SetLogger sets where HandleError reports to.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

func report() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// HandleError logs a best-effort error with the file and line of the
// caller and reports whether err was non-nil.
func HandleError(err error) (b bool) {
	if err != nil {
		// notice that we're using 1, so it will actually log where
		// the error happened, 0 = this function, we don't want that.
		_, fn, line, _ := runtime.Caller(1)
		report().Warn(err.Error(), zap.String("file", fn), zap.Int("line", line))
		b = true
	}
	return
}

func Must(err error) {
	if err != nil {
		panic(err)
	}
}
