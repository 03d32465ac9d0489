// Package xerrors provides the structured error taxonomy surfaced by the
// tunnel package to its callers.
package xerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Type categorizes an Error the way callers are expected to switch on it.
type Type string

const (
	// TypeParse covers malformed wire data: bad status lines, bad scheme URLs.
	TypeParse Type = "parse"
	// TypeHTTPSemantic covers a well-formed response this library refuses to accept.
	TypeHTTPSemantic Type = "httpSemantic"
	// TypeTransport covers read/write/close/handshake failures on a stream.
	TypeTransport Type = "transport"
	// TypeConfiguration covers programmer-supplied misconfiguration.
	TypeConfiguration Type = "configuration"
)

// Error is a structured error with enough context to diagnose which layer
// of the proxy chain failed and why.
type Error struct {
	Type      Type
	Code      string // stable short code, e.g. "tooFewProxies", "pinningFailed"
	Message   string
	Cause     error
	Status    int    // populated for unexpectedResponse
	Addr      string // host:port of the hop involved, if any
	Timestamp time.Time
}

func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Type, e.Code)
	if e.Addr != "" {
		s += " " + e.Addr
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code, so errors.Is(err, xerrors.NewPinningFailed("")) holds
// for any pinningFailed error regardless of its host or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(typ Type, code, message string, cause error) *Error {
	return &Error{Type: typ, Code: code, Message: message, Cause: cause, Timestamp: time.Now()}
}

// Parse errors.
func NewInvalidResponse(message string, cause error) *Error {
	return newErr(TypeParse, "invalidResponse", message, cause)
}

func NewTooFewProxies() *Error {
	return newErr(TypeParse, "tooFewProxies", "fewer path segments than proxies requested by scheme", nil)
}

func NewIncorrectProxySpecification(token string) *Error {
	return newErr(TypeParse, "incorrectProxySpecification", "could not parse proxy authority "+token, nil)
}

// HTTP-semantic errors.
func NewUnexpectedResponse(status int, description string) *Error {
	e := newErr(TypeHTTPSemantic, "unexpectedResponse", description, nil)
	e.Status = status
	return e
}

// Transport errors.
func NewReadingFailed(addr string, cause error) *Error {
	e := newErr(TypeTransport, "readingFailed", "read failed", cause)
	e.Addr = addr
	return e
}

func NewWritingFailed(addr string, cause error) *Error {
	e := newErr(TypeTransport, "writingFailed", "write failed", cause)
	e.Addr = addr
	return e
}

func NewClosingFailed(addr string, cause error) *Error {
	e := newErr(TypeTransport, "closingFailed", "close failed", cause)
	e.Addr = addr
	return e
}

func NewHandshakeFailed(addr string, cause error) *Error {
	e := newErr(TypeTransport, "handshakeFailed", "TLS handshake failed", cause)
	e.Addr = addr
	return e
}

// Configuration errors.
func NewInvalidRequest(message string) *Error {
	return newErr(TypeConfiguration, "invalidRequest", message, nil)
}

func NewInvalidEndpoint(message string) *Error {
	return newErr(TypeConfiguration, "invalidEndpoint", message, nil)
}

func NewPinningFailed(host string) *Error {
	e := newErr(TypeConfiguration, "pinningFailed", "leaf certificate did not match pinned certificate for "+host, nil)
	e.Addr = host
	return e
}

// IsTimeout reports whether err is a timeout, whether ours or a stdlib net error.
func IsTimeout(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Code == "timeout" {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsContextCanceled reports whether err is due to context cancellation.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Code returns the stable short code of err, or "" if err isn't one of ours.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
