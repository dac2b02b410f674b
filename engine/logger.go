package engine

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	log *filteredLogger
)

type filteredLogger struct {
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
}

func (f *filteredLogger) filteredArg(v ...interface{}) []interface{} {
	for idx, arg := range v {
		if s, ok := arg.(string); ok && len(s) == 40 {
			v[idx] = fmt.Sprintf("[%s..]", s[:6])
		}
		if g, ok := arg.(GID); ok {
			v[idx] = fmt.Sprintf("[%s..]", g.Hex()[:6])
		}
		if k, ok := arg.(downloadKind); ok {
			switch k {
			case kindTorrent:
				v[idx] = "[Torrent]"
			case kindMetalink:
				v[idx] = "[Metalink]"
			default:
				v[idx] = "[HTTP]"
			}
		}
	}

	return v
}

func (f *filteredLogger) logger() *zap.SugaredLogger {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sugar
}

func (f *filteredLogger) Println(v ...interface{}) {
	f.logger().Info(strings.TrimSuffix(fmt.Sprintln(f.filteredArg(v...)...), "\n"))
}
func (f *filteredLogger) Printf(format string, v ...interface{}) {
	f.logger().Infof(format, f.filteredArg(v...)...)
}
func (f *filteredLogger) Debugf(format string, v ...interface{}) {
	f.logger().Debugf(format, f.filteredArg(v...)...)
}

func init() {
	log = &filteredLogger{
		sugar: zap.NewNop().Sugar(),
	}
}

// SetLogger routes engine logs to l under the "engine" name.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	log.mu.Lock()
	log.sugar = l.Named("engine").Sugar()
	log.mu.Unlock()
}
