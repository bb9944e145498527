// Package apperr defines the failure taxonomy shared by the relationship, outbox and
// progress services and the acknowledgement envelope every action answers with.
package apperr

import (
	"errors"
	"net/http"
)

// Code classifies a failure.
type Code string

const (
	CodeBadData   Code = "BAD_DATA"
	CodeNotFound  Code = "NOT_FOUND"
	CodeBlocked   Code = "BLOCKED"
	CodeDuplicate Code = "DUPLICATE"
	CodeInternal  Code = "INTERNAL"
	CodeWebsocket Code = "WEBSOCKET"
)

// Error is a typed failure. Message is safe to show to the caller; Cause is only logged.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so errors.Is(err, apperr.ErrBlocked) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrBadData   = &Error{Code: CodeBadData}
	ErrNotFound  = &Error{Code: CodeNotFound}
	ErrBlocked   = &Error{Code: CodeBlocked}
	ErrDuplicate = &Error{Code: CodeDuplicate}
	ErrInternal  = &Error{Code: CodeInternal}
	ErrWebsocket = &Error{Code: CodeWebsocket}
)

func BadData(msg string) *Error   { return &Error{Code: CodeBadData, Message: msg} }
func NotFound(msg string) *Error  { return &Error{Code: CodeNotFound, Message: msg} }
func Blocked(msg string) *Error   { return &Error{Code: CodeBlocked, Message: msg} }
func Duplicate(msg string) *Error { return &Error{Code: CodeDuplicate, Message: msg} }

// Internal wraps an unexpected persistence failure or an invariant violation.
func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, Cause: cause}
}

// Websocket wraps a failed live delivery. It is logged, never returned to a caller.
func Websocket(msg string, cause error) *Error {
	return &Error{Code: CodeWebsocket, Message: msg, Cause: cause}
}

// CodeOf returns the code of err; untyped errors are INTERNAL.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status the gin layer responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadData:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBlocked:
		return http.StatusForbidden
	case CodeDuplicate:
		return http.StatusConflict
	case CodeWebsocket:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
