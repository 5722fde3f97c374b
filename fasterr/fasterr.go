// Package fasterr implements the error taxonomy of the Fast protocol: the
// three kinds of failure a request or connection can suffer, and the wire
// shape they serialize to.
//
// Errors carry a name, message and structured info across the wire rather
// than a bare string, while still being constructed and inspected the way
// ordinary Go errors are.
package fasterr

import "fmt"

// Kind classifies a Fast error.
type Kind string

const (
	// Protocol-fatal kinds terminate the bearing connection.
	KindBadVersion     Kind = "bad-version"
	KindBadType        Kind = "bad-type"
	KindIDZero         Kind = "id-zero"
	KindCRCMismatch    Kind = "crc-mismatch"
	KindMalformedJSON  Kind = "malformed-json"
	KindStructural     Kind = "structural-mismatch"
	KindTruncatedFrame Kind = "truncated-frame"
	KindUnsolicitedID  Kind = "unsolicited-id"
	KindDuplicateID    Kind = "duplicate-id"
	KindOversizedFrame Kind = "oversized-frame"
	KindConnectionErr  Kind = "connection-error"

	// Request-scoped kinds fail only the affected request.
	KindUnknownMethod  Kind = "unknown-method"
	KindArgValidation  Kind = "argument-validation"
	KindHandlerFailure Kind = "handler-error"
	KindRateLimited    Kind = "rate-limited"

	// Lifecycle kinds fail requests but are not protocol violations.
	KindConnectionClosed Kind = "connection-closed"
	KindDetached         Kind = "detached"
	KindServerClosing    Kind = "server-closing"
	KindTimeout          Kind = "timeout"
)

// fatalKinds enumerates the kinds that are always protocol-fatal.
var fatalKinds = map[Kind]bool{
	KindBadVersion:     true,
	KindBadType:        true,
	KindIDZero:         true,
	KindCRCMismatch:    true,
	KindMalformedJSON:  true,
	KindStructural:     true,
	KindTruncatedFrame: true,
	KindUnsolicitedID:  true,
	KindDuplicateID:    true,
	KindOversizedFrame: true,
	KindConnectionErr:  true,
}

// Error is the Fast protocol's error value. It carries the same fields the
// wire's ERROR payload preserves: Name, Message, Info.
type Error struct {
	Kind    Kind
	Name    string
	Message string
	Info    map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Fatal reports whether e's kind is protocol-fatal.
func (e *Error) Fatal() bool { return fatalKinds[e.Kind] }

// New builds an Error with the given kind, name and message.
func New(kind Kind, name, message string) *Error {
	return &Error{Kind: kind, Name: name, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, name, format string, args ...any) *Error {
	return &Error{Kind: kind, Name: name, Message: fmt.Sprintf(format, args...)}
}

// WithInfo attaches structured info context and returns e for chaining.
func (e *Error) WithInfo(info map[string]any) *Error {
	e.Info = info
	return e
}

// WithCause wraps an underlying error and returns e for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Wrap builds a "connection-error" Error wrapping cause. Protocol-fatal
// errors terminate the connection and all live requests fail with
// "connection-error" wrapping the fatal cause.
func Wrap(cause error) *Error {
	if fe, ok := cause.(*Error); ok && fe.Kind == KindConnectionErr {
		return fe
	}
	return &Error{
		Kind:    KindConnectionErr,
		Name:    "ConnectionError",
		Message: cause.Error(),
		Cause:   cause,
	}
}

// VError constructs a validation error in the conventional shape: name
// "VError", a message, and an info map of the offending values.
func VError(message string, info map[string]any) *Error {
	return &Error{Kind: KindArgValidation, Name: "VError", Message: message, Info: info}
}
