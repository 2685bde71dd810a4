package hashtable

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a structured error with context and errno mapping,
// returned by the region/queue/server/client setup paths. Operation
// outcomes (NotFound, BucketOverflow, InvalidOp) never surface as an
// Error — those travel in a Response's Status field and are the
// caller's to interpret, not this package's to fail on.
type Error struct {
	Op    string    // Operation that failed (e.g. "attach", "create", "join")
	Code  ErrorCode // High-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		if e.Errno != 0 {
			return fmt.Sprintf("hashtable: %s: %s (errno=%d)", e.Op, msg, e.Errno)
		}
		return fmt.Sprintf("hashtable: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("hashtable: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode categorizes failures by the error-handling design's error
// kinds: startup, protocol, and broken-primitive.
type ErrorCode string

const (
	ErrCodeNameInUse         ErrorCode = "name already in use"
	ErrCodeNotFound          ErrorCode = "region not found"
	ErrCodeNotReady          ErrorCode = "region not ready"
	ErrCodePermissionDenied  ErrorCode = "permission denied"
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodeBrokenPrimitive   ErrorCode = "broken synchronization primitive"
	ErrCodeProtocol          ErrorCode = "protocol violation"
	ErrCodeIOError           ErrorCode = "I/O error"
	ErrCodeTimeout           ErrorCode = "timeout"
)

// NewError builds a structured Error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrorWithErrno builds a structured Error carrying a kernel errno.
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// WrapError wraps an arbitrary error with operation context, classifying
// syscall.Errno values via mapErrnoToCode.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: e.Code, Errno: e.Errno, Msg: e.Msg, Inner: e.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EEXIST:
		return ErrCodeNameInUse
	case syscall.ENOENT:
		return ErrCodeNotFound
	case syscall.EACCES, syscall.EPERM:
		return ErrCodePermissionDenied
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidParameters
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	case syscall.EOWNERDEAD:
		return ErrCodeBrokenPrimitive
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
