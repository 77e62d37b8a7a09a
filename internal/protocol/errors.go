package protocol

import (
	"errors"
	"fmt"
)

// ErrTransport matches every *TransportError via errors.Is.
var ErrTransport = errors.New("transport failure")

// Explicit rejections by the daemon. The operation was not performed.
var (
	ErrInvalidRequest     = errors.New("daemon rejected request as invalid")
	ErrUnsupportedRequest = errors.New("daemon does not support request")
)

// Handshake failures.
var (
	ErrAccessDenied       = errors.New("access denied by daemon")
	ErrVersionUnsupported = errors.New("protocol version not supported by daemon")
)

// TransportError reports that the channel failed while a request was in
// flight or being prepared. Whether the daemon performed the operation is
// unknown.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport %s failed", e.Op)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// DecodeError reports a payload that could not be verified or decoded.
type DecodeError struct {
	Schema string
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s.%s: %s", e.Schema, e.Field, e.Reason)
	}
	return fmt.Sprintf("decode %s: %s", e.Schema, e.Reason)
}

// HandshakeError reports a rejected session. Reply is the token the daemon
// sent, if any.
type HandshakeError struct {
	Reply string
	Err   error
}

func (e *HandshakeError) Error() string {
	if e.Reply != "" {
		return fmt.Sprintf("handshake failed (%s): %v", e.Reply, e.Err)
	}
	return fmt.Sprintf("handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// UnexpectedReplyError reports a response whose type does not answer the
// request that was sent.
type UnexpectedReplyError struct {
	Want ResponseType
	Got  ResponseType
}

func (e *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Want, e.Got)
}

// genericFailure is reported when a failed response carries no message.
const genericFailure = "operation failed without an error message"

// OperationFailure describes a response with success=false. It is a
// normal, decoded result of a request and not a transport problem.
type OperationFailure struct {
	Op       string
	ErrorMsg *string
}

// Message returns the daemon's error text, or a generic one when absent.
func (f OperationFailure) Message() string {
	if f.ErrorMsg == nil || *f.ErrorMsg == "" {
		return genericFailure
	}
	return *f.ErrorMsg
}

// Err converts the failure to an error for callers that want one.
func (f OperationFailure) Err() error {
	return fmt.Errorf("%s: %s", f.Op, f.Message())
}
