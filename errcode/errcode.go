// Package errcode holds the short error codes that travel on the bus in
// replies and degraded capability status.
package errcode

import "errors"

// Code is a stable bus-facing error identifier. It implements error so a
// bare code can be returned and wrapped like any other error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK    Code = "ok"
	Error Code = "error" // fallback for anything unclassified
)

// Request handling.
const (
	InvalidTopic      Code = "invalid_topic"
	InvalidPayload    Code = "invalid_payload"
	InvalidParams     Code = "invalid_params"
	UnknownCapability Code = "unknown_capability"
	Unsupported       Code = "unsupported"
	HALNotReady       Code = "hal_not_ready"
)

// Device and bus access.
const (
	Busy        Code = "busy"
	Unavailable Code = "unavailable"
	Timeout     Code = "timeout"
	UnknownBus  Code = "unknown_bus"
	IOError     Code = "io_error"
)

// E carries a Code together with the operation that failed and an optional
// cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

// New returns an *E without a cause.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Wrap returns an *E around err. A nil err yields nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Msg: err.Error(), Err: err}
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of returns the Code carried anywhere in err's chain. nil maps to OK and an
// error without a code maps to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	var x interface{ Code() Code }
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// ioFailure is implemented by driver errors raised from a failed register
// transaction.
type ioFailure interface{ IOFailure() bool }

// MapDriverErr classifies an error returned through a driver. Codes raised
// by the bus owner are kept; any other transaction failure is IOError.
func MapDriverErr(err error) Code {
	switch c := Of(err); c {
	case OK, Busy, Timeout, Unavailable, UnknownBus, IOError:
		return c
	}
	var x ioFailure
	if errors.As(err, &x) && x.IOFailure() {
		return IOError
	}
	return Error
}
