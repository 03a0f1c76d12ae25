// File: internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned when a remote operation is attempted before
// StartSession has established a session.
var ErrNoSession = errors.New("protocol: no active session, call StartSession first")

// UnauthorizedError signals a 401 from the session service: the project or
// API credential is missing or rejected. Callers branch on this to retry with
// a fresh key instead of retrying later.
type UnauthorizedError struct {
	Body string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("protocol: unauthorized (401): %s", e.Body)
}

// HTTPError signals an unexpected non-2xx status. Status and the raw body are
// carried for caller inspection.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("protocol: unexpected HTTP status %d: %s", e.Status, e.Body)
}

// APIError signals a well-formed response that explicitly marks failure
// (success:false), carrying the server's message.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("protocol: api error: %s", e.Message)
}

// ResponseBodyError signals a success status with no stream to read.
type ResponseBodyError struct{}

func (e *ResponseBodyError) Error() string {
	return "protocol: response has no body stream"
}

// ResponseParseError signals a malformed streamed record. The underlying
// decode failure is wrapped and reachable via errors.Unwrap.
type ResponseParseError struct {
	Record string
	Err    error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("protocol: malformed stream record: %v", e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// ServerError signals that the stream ended without a terminal completion
// signal.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("protocol: server error: %s", e.Message)
}
