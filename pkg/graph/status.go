package graph

import "fmt"

// Status is an engine status code. The numeric values are part of the
// public contract and never change.
type Status int32

const (
	StatusOK              Status = 0
	StatusInvalidArgument Status = 1
	StatusOpen            Status = 2
	StatusInternal        Status = 3
	StatusCallbackAbort   Status = 4

	// Cursor stepping outcomes
	StatusRow  Status = 100
	StatusDone Status = 101
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusOpen:
		return "open failed"
	case StatusInternal:
		return "internal error"
	case StatusCallbackAbort:
		return "callback abort"
	case StatusRow:
		return "row"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Error is a failure with its status code. Every error returned by the
// public API is an *Error.
type Error struct {
	Code    Status
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Code extracts the status code from an error returned by this
// package. A nil error is StatusOK; a foreign error is
// StatusInternal.
func Code(err error) Status {
	if err == nil {
		return StatusOK
	}
	if gerr, ok := err.(*Error); ok {
		return gerr.Code
	}
	return StatusInternal
}

func errInvalid(format string, args ...interface{}) *Error {
	return &Error{Code: StatusInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func errOpen(format string, args ...interface{}) *Error {
	return &Error{Code: StatusOpen, Message: fmt.Sprintf(format, args...)}
}

func errInternal(format string, args ...interface{}) *Error {
	return &Error{Code: StatusInternal, Message: fmt.Sprintf(format, args...)}
}
