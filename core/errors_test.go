package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/boypt/dlbridge/engine"
	"github.com/stretchr/testify/assert"
)

func TestError_message(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{newError(CodeNotInitialized, "sessionNew"), "library not initialized, call libraryInit() before sessionNew()"},
		{newError(CodeSessionExists, "sessionNew"), "session already exists, call sessionFinal() first"},
		{newError(CodeNoSession, "run"), "no active session"},
		{&Error{Code: CodeInitFailed, Native: -1}, "library init failed with code -1"},
		{engineError("addUri", -3, engine.ErrnoInvalid), "addUri failed with code -3 (caused by: engine: invalid argument)"},
		{&Error{Code: CodeHandleFailed, Op: "getDownloadInfo", GID: "00000000000000ff"}, "getDownloadInfo: download handle returned null for gid 00000000000000ff"},
		{BadArgs("addUri", "Missing '%s'", "uris"), "bad arguments: Missing 'uris'"},
		{NotImplemented("frobnicate"), "method frobnicate not implemented"},
		{&Error{Code: CodeRunLoopStuck, Op: "stopRunLoop", Detail: "not stopped after 1s"}, "run loop did not stop after shutdown: not stopped after 1s"},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_matching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", engineError("removeDownload", -2, engine.ErrnoNotFound))

	assert.ErrorIs(t, err, ErrEngine)
	assert.NotErrorIs(t, err, ErrNoSession)
	assert.True(t, errors.Is(err, engine.ErrnoNotFound))
	assert.Equal(t, CodeEngineError, CodeOf(err))
	native, ok := NativeCode(err)
	assert.True(t, ok)
	assert.Equal(t, -2, native)

	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	_, ok = NativeCode(newError(CodeNoSession, "run"))
	assert.False(t, ok)
}
