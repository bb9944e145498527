package apperr

import "errors"

// Result is the acknowledgement every action answers with:
// {ok:true, data, code} on success, {ok:false, error:{code,message}} on failure.
type Result struct {
	OK    bool         `json:"ok"`
	Data  any          `json:"data,omitempty"`
	Code  string       `json:"code,omitempty"`
	Error *ResultError `json:"error,omitempty"`
}

// ResultError is the failure half of Result.
type ResultError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// OK builds a success acknowledgement. code names the outcome, e.g. "friend-request-accepted".
func OK(code string, data any) Result {
	return Result{OK: true, Data: data, Code: code}
}

// Fail builds a failure acknowledgement. Causes of internal errors are not exposed.
func Fail(err error) Result {
	var e *Error
	if !errors.As(err, &e) {
		return Result{Error: &ResultError{Code: CodeInternal, Message: "internal error"}}
	}
	msg := e.Message
	if e.Code == CodeInternal && msg == "" {
		msg = "internal error"
	}
	return Result{Error: &ResultError{Code: e.Code, Message: msg}}
}
