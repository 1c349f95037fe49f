package snmp

import (
	"errors"
	"fmt"
)

// ErrSessionClosed resolves requests issued on, or pending at, a closed session.
var ErrSessionClosed = errors.New("snmp: session closed")

// RequestInvalidError reports outgoing data that cannot be encoded, such as an
// unsupported varbind type or a malformed OID.
type RequestInvalidError struct {
	Message string
	Err     error
}

func (e *RequestInvalidError) Error() string {
	if e.Err != nil {
		return "invalid request: " + e.Message + ": " + e.Err.Error()
	}
	return "invalid request: " + e.Message
}

func (e *RequestInvalidError) Unwrap() error { return e.Err }

// ResponseInvalidError reports incoming data that is malformed or does not
// match the request it answers.
type ResponseInvalidError struct {
	Message string
	Err     error
}

func (e *ResponseInvalidError) Error() string {
	if e.Err != nil {
		return "invalid response: " + e.Message + ": " + e.Err.Error()
	}
	return "invalid response: " + e.Message
}

func (e *ResponseInvalidError) Unwrap() error { return e.Err }

// RequestFailedError reports a non-zero error status returned by the agent.
// OID names the varbind designated by the error index, when it is in range.
type RequestFailedError struct {
	Status ErrorStatus
	OID    string
}

func (e *RequestFailedError) Error() string {
	if e.OID != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.OID)
	}
	return e.Status.String()
}

// RequestTimedOutError reports a request that exhausted its retries.
type RequestTimedOutError struct {
	RequestID int32
	Attempts  int
}

func (e *RequestTimedOutError) Error() string {
	return fmt.Sprintf("request timed out after %d attempt(s)", e.Attempts)
}

// ParseError is returned by ParseResponse when decoding fails after the
// request id was read, so the failure can still be routed to its request.
type ParseError struct {
	RequestID int32
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed response to request %d: %v", e.RequestID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func requestInvalid(err error, format string, args ...any) error {
	return &RequestInvalidError{Message: fmt.Sprintf(format, args...), Err: err}
}

func responseInvalid(err error, format string, args ...any) error {
	return &ResponseInvalidError{Message: fmt.Sprintf(format, args...), Err: err}
}
