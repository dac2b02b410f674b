package core

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes a core error. The values are the wire codes of the
// command surface.
type Code string

const (
	CodeNotInitialized     Code = "NOT_INITIALIZED"
	CodeSessionExists      Code = "SESSION_EXISTS"
	CodeNoSession          Code = "NO_SESSION"
	CodeInitFailed         Code = "INIT_FAILED"
	CodeSessionFailed      Code = "SESSION_FAILED"
	CodeEngineError        Code = "ENGINE_ERROR"
	CodeHandleFailed       Code = "HANDLE_FAILED"
	CodeBadArgs            Code = "BAD_ARGS"
	CodeNotImplemented     Code = "NOT_IMPLEMENTED"
	CodeAlreadyInitialized Code = "ALREADY_INITIALIZED"
	CodeRunLoopActive      Code = "RUN_LOOP_ACTIVE"
	CodeRunLoopStuck       Code = "RUN_LOOP_STUCK"
	CodeNativeMissing      Code = "NATIVE_MISSING"
)

// Error is the structured error returned by every State operation.
type Error struct {
	Code   Code
	Op     string // operation, e.g. "addUri"
	Native int    // engine return code for INIT_FAILED and ENGINE_ERROR
	GID    string // download id for HANDLE_FAILED
	Detail string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	switch e.Code {
	case CodeNotInitialized:
		b.WriteString("library not initialized")
		if e.Op != "" {
			fmt.Fprintf(&b, ", call libraryInit() before %s()", e.Op)
		}
	case CodeSessionExists:
		b.WriteString("session already exists, call sessionFinal() first")
	case CodeNoSession:
		b.WriteString("no active session")
	case CodeInitFailed:
		fmt.Fprintf(&b, "library init failed with code %d", e.Native)
	case CodeSessionFailed:
		b.WriteString("engine returned no session")
	case CodeEngineError:
		fmt.Fprintf(&b, "%s failed with code %d", e.Op, e.Native)
	case CodeHandleFailed:
		fmt.Fprintf(&b, "%s: download handle returned null for gid %s", e.Op, e.GID)
	case CodeBadArgs:
		b.WriteString("bad arguments")
	case CodeNotImplemented:
		fmt.Fprintf(&b, "method %s not implemented", e.Op)
	case CodeAlreadyInitialized:
		b.WriteString("library already initialized")
	case CodeRunLoopActive:
		b.WriteString("run loop is active")
	case CodeRunLoopStuck:
		b.WriteString("run loop did not stop after shutdown")
	case CodeNativeMissing:
		b.WriteString("native engine not available")
	default:
		b.WriteString(string(e.Code))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Err.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrNotInitialized     = &Error{Code: CodeNotInitialized}
	ErrSessionExists      = &Error{Code: CodeSessionExists}
	ErrNoSession          = &Error{Code: CodeNoSession}
	ErrInitFailed         = &Error{Code: CodeInitFailed}
	ErrSessionFailed      = &Error{Code: CodeSessionFailed}
	ErrEngine             = &Error{Code: CodeEngineError}
	ErrHandleFailed       = &Error{Code: CodeHandleFailed}
	ErrBadArgs            = &Error{Code: CodeBadArgs}
	ErrNotImplemented     = &Error{Code: CodeNotImplemented}
	ErrAlreadyInitialized = &Error{Code: CodeAlreadyInitialized}
	ErrRunLoopActive      = &Error{Code: CodeRunLoopActive}
	ErrRunLoopStuck       = &Error{Code: CodeRunLoopStuck}
	ErrNativeMissing      = &Error{Code: CodeNativeMissing}
)

func newError(code Code, op string) *Error {
	return &Error{Code: code, Op: op}
}

func engineError(op string, native int, cause error) *Error {
	return &Error{Code: CodeEngineError, Op: op, Native: native, Err: cause}
}

// BadArgs reports a malformed argument of op.
func BadArgs(op, format string, args ...interface{}) *Error {
	return &Error{Code: CodeBadArgs, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// NotImplemented reports an unknown method.
func NotImplemented(method string) *Error {
	return &Error{Code: CodeNotImplemented, Op: method}
}

// CodeOf extracts the Code of err, or "" when err is not a core error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// NativeCode extracts the engine return code carried by err.
func NativeCode(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && (e.Code == CodeEngineError || e.Code == CodeInitFailed) {
		return e.Native, true
	}
	return 0, false
}
