// Package failure defines the error taxonomy shared by the Garnix client and
// every transport. The client is the only place that assigns a Class;
// transports re-encode it for their protocol.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Class identifies what went wrong, independent of transport.
type Class string

const (
	MissingCredential Class = "missing_credential"
	AuthRejected      Class = "auth_rejected"
	NotFound          Class = "not_found"
	NetworkTransient  Class = "network_transient"
	ParseError        Class = "parse_error"
	Internal          Class = "internal_error"
	InvalidRequest    Class = "invalid_request"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrAuthRejected      = errors.New("authentication rejected")
	ErrNotFound          = errors.New("not found")
	ErrNetworkTransient  = errors.New("network failure")
	ErrParse             = errors.New("unexpected response payload")
	ErrInternal          = errors.New("internal error")
	ErrInvalidRequest    = errors.New("invalid request")
)

var sentinels = map[Class]error{
	MissingCredential: ErrMissingCredential,
	AuthRejected:      ErrAuthRejected,
	NotFound:          ErrNotFound,
	NetworkTransient:  ErrNetworkTransient,
	ParseError:        ErrParse,
	Internal:          ErrInternal,
	InvalidRequest:    ErrInvalidRequest,
}

// Error is a classified failure.
type Error struct {
	Class   Class
	Message string
	// Field is the offending payload path for parse errors, e.g. "builds.2.status".
	Field string
	// StatusCode is the upstream HTTP status, when there was one.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Field != "" {
		sb.WriteString(" (field ")
		sb.WriteString(e.Field)
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's class.
func (e *Error) Is(target error) bool {
	return sentinels[e.Class] == target
}

// New returns a classified error.
func New(class Class, message string) *Error {
	return &Error{Class: class, Message: message}
}

// Newf is New with formatting.
func Newf(class Class, format string, args ...any) *Error {
	return &Error{Class: class, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(class Class, err error, message string) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

// Parse returns a parse failure naming the offending field path.
func Parse(field, message string) *Error {
	if field == "" {
		field = "(root)"
	}
	return &Error{Class: ParseError, Message: message, Field: field}
}

// ClassOf returns the class of err. Errors that were never classified are
// treated as internal: they indicate a path the client failed to cover.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return Internal
}

// As returns err as a classified *Error, classifying it as Internal if needed.
func As(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(Internal, err, "unexpected error")
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return ClassOf(err) == NetworkTransient
}

// Code returns the stable upper-case code used in HTTP and JSON-RPC bodies.
func Code(class Class) string {
	switch class {
	case MissingCredential:
		return "MISSING_TOKEN"
	case AuthRejected:
		return "AUTHENTICATION_FAILED"
	case NotFound:
		return "NOT_FOUND"
	case NetworkTransient:
		return "NETWORK_ERROR"
	case ParseError:
		return "PARSE_ERROR"
	case InvalidRequest:
		return "INVALID_REQUEST"
	default:
		return "INTERNAL_ERROR"
	}
}

// Hint returns a short suggestion for the user, or "" when there is nothing useful to say.
func Hint(class Class) string {
	switch class {
	case MissingCredential:
		return "Pass --token, set GARNIX_JWT_TOKEN, or include a token in the request."
	case AuthRejected:
		return "Check that your Garnix JWT is valid and has not expired."
	case NotFound:
		return "Check that the commit or build id is correct and that you have access to the repository."
	case NetworkTransient:
		return "The Garnix API could not be reached or kept failing; try again later."
	case ParseError:
		return "The Garnix API returned a payload this version does not understand."
	default:
		return ""
	}
}
