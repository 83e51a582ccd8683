// Package apperror defines the error taxonomy shared by every layer of the
// ingestion and read pipelines. Handlers map these to HTTP responses; nothing
// below the handler layer touches net/http directly.
package apperror

import (
	"errors"
	"fmt"
)

// Code identifies the class of failure, matching the taxonomy in the spec's
// error handling design.
type Code string

const (
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeUnauthorised Code = "UNAUTHORISED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimited  Code = "RATE_LIMITED"
)

// Error is a client-visible failure with an associated taxonomy code. The
// Message is safe to return to callers; wrapped causes are for logs only.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func BadRequest(message string) *Error              { return newErr(CodeBadRequest, message, nil) }
func BadRequestf(cause error, message string) *Error { return newErr(CodeBadRequest, message, cause) }
func Unauthorised(message string) *Error             { return newErr(CodeUnauthorised, message, nil) }
func Forbidden(message string) *Error                { return newErr(CodeForbidden, message, nil) }
func NotFound(message string) *Error                 { return newErr(CodeNotFound, message, nil) }
func Internal(cause error) *Error {
	return newErr(CodeInternal, "internal error", cause)
}
func Internalf(cause error, message string) *Error { return newErr(CodeInternal, message, cause) }
func Timeout(message string) *Error                { return newErr(CodeTimeout, message, nil) }
func RateLimited(message string) *Error            { return newErr(CodeRateLimited, message, nil) }

// As extracts an *Error from an arbitrary error chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusText returns a human label for a code, independent of HTTP.
func (c Code) StatusText() string {
	switch c {
	case CodeBadRequest:
		return "bad request"
	case CodeUnauthorised:
		return "unauthorised"
	case CodeForbidden:
		return "forbidden"
	case CodeNotFound:
		return "not found"
	case CodeTimeout:
		return "timeout"
	case CodeRateLimited:
		return "rate limited"
	default:
		return "internal error"
	}
}
