package bridge

import (
	"errors"
	"fmt"

	"github.com/boypt/dlbridge/core"
)

// MethodError is the (code, message) pair returned to the caller of Invoke.
type MethodError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *MethodError) Error() string {
	return e.Code + ": " + e.Message
}

func badArgs(format string, args ...interface{}) *MethodError {
	return &MethodError{Code: string(core.CodeBadArgs), Message: fmt.Sprintf(format, args...)}
}

// methodError renders a core error with the wording callers of the
// plugin already match on.
func methodError(err error) *MethodError {
	var me *MethodError
	if errors.As(err, &me) {
		return me
	}
	var ce *core.Error
	if !errors.As(err, &ce) {
		return &MethodError{Code: string(core.CodeEngineError), Message: err.Error()}
	}
	msg := ce.Error()
	switch ce.Code {
	case core.CodeNotInitialized:
		msg = "Call libraryInit() before sessionNew()"
	case core.CodeSessionExists:
		msg = "Session already exists. Call sessionFinal() first."
	case core.CodeNoSession:
		msg = "No active session"
	case core.CodeSessionFailed:
		msg = "sessionNew returned null"
	case core.CodeInitFailed:
		msg = fmt.Sprintf("libraryInit failed with code %d", ce.Native)
	case core.CodeEngineError:
		msg = fmt.Sprintf("%s failed with code %d", ce.Op, ce.Native)
	case core.CodeHandleFailed:
		msg = fmt.Sprintf("getDownloadHandle returned null for gid %s", ce.GID)
	case core.CodeBadArgs:
		msg = ce.Detail
	case core.CodeNotImplemented:
		msg = fmt.Sprintf("Method %s not implemented", ce.Op)
	case core.CodeNativeMissing:
		msg = "Native engine library is not available"
	}
	return &MethodError{Code: string(ce.Code), Message: msg}
}
