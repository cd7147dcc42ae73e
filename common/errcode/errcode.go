// Package errcode defines the structured errors returned across the service
// boundary. Every error carries a stable kind and code so that callers can
// tell a malformed request apart from a failure to apply it.
package errcode

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of the operation that raised it.
type Kind string

const (
	KindInvalidRequestData    Kind = "INVALID_REQUESTED_DATA"
	KindMandatoryParamMissing Kind = "MANDATORY_PARAM_MISSING"
	KindParamDataType         Kind = "DATA_TYPE_ERROR"
	KindInvalidParamValue     Kind = "INVALID_PARAMETER_VALUE"
	KindNotAuthorized         Kind = "UNAUTHORIZED"
	KindDownstreamFailure     Kind = "SERVER_ERROR"
)

// Pipeline codes attached to errors raised by a specific operation.
const (
	CodeMembershipNotAuthorized = "GS_MBRSHP_UDT01"
	CodeMembershipGroupID       = "GS_MBRSHP_UDT02"
	CodeMembershipFailed        = "GS_MBRSHP_UDT03"
	CodeCreateInvalid           = "GS_CRT02"
	CodeCreateFailed            = "GS_CRT03"
	CodeSearchInvalid           = "GS_LST02"
	CodeSearchFailed            = "GS_LST03"
	CodeUpdateInvalid           = "GS_UDT02"
	CodeUpdateFailed            = "GS_UDT01"
	CodeDeleteFailed            = "GS_DLT01"
	CodeDeleteInvalid           = "GS_DLT02"
)

// Error is the structured error type. Code defaults to the kind when no
// pipeline code has been attached.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	var inner *Error
	if e.Cause != nil && !errors.As(e.Cause, &inner) {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidRequestData    = &Error{Kind: KindInvalidRequestData}
	ErrMandatoryParamMissing = &Error{Kind: KindMandatoryParamMissing}
	ErrParamDataType         = &Error{Kind: KindParamDataType}
	ErrInvalidParamValue     = &Error{Kind: KindInvalidParamValue}
	ErrNotAuthorized         = &Error{Kind: KindNotAuthorized}
	ErrDownstreamFailure     = &Error{Kind: KindDownstreamFailure}
)

func newError(kind Kind, field, msg string) *Error {
	return &Error{Kind: kind, Code: string(kind), Message: msg, Field: field}
}

// InvalidRequestData reports a structurally empty or unusable request.
func InvalidRequestData() *Error {
	return newError(KindInvalidRequestData, "", "invalid requested data")
}

// MandatoryParamMissing reports an absent or empty required field.
func MandatoryParamMissing(field, parent string) *Error {
	if parent == "" {
		return newError(KindMandatoryParamMissing, field,
			fmt.Sprintf("mandatory parameter %s is missing", field))
	}
	return newError(KindMandatoryParamMissing, parent+"."+field,
		fmt.Sprintf("mandatory parameter %s is missing in %s", field, parent))
}

// ParamDataType reports a field holding a value of the wrong shape. path is
// the full field address.
func ParamDataType(path, expected string) *Error {
	return newError(KindParamDataType, path,
		fmt.Sprintf("data type of %s should be %s", path, expected))
}

// InvalidParamValue reports a value outside the field's allowed set.
func InvalidParamValue(value, path string) *Error {
	return newError(KindInvalidParamValue, path,
		fmt.Sprintf("invalid value %s for parameter %s", value, path))
}

// NotAuthorized reports an identity mismatch or a restricted-field change.
func NotAuthorized(code string) *Error {
	e := newError(KindNotAuthorized, "", "you are not authorized")
	e.Code = code
	return e
}

// Downstream wraps a collaborator failure under a pipeline code.
func Downstream(code string, cause error) *Error {
	e := newError(KindDownstreamFailure, "", "failed to apply the request")
	e.Code = code
	e.Cause = cause
	return e
}

// WithCode returns a copy of e labelled with a pipeline code.
func (e *Error) WithCode(code string) *Error {
	c := *e
	c.Code = code
	return &c
}

// Wrap re-labels a validation error with an operation code, keeping the
// original error reachable as the cause. Errors that are not *Error are
// treated as downstream failures.
func Wrap(err error, code string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return Downstream(code, err)
	}
	return &Error{
		Kind:    e.Kind,
		Code:    code,
		Message: e.Message,
		Field:   e.Field,
		Cause:   e,
	}
}

// Classify returns err as an *Error. Structured errors pass through
// untouched; anything else becomes a downstream failure under code.
func Classify(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Downstream(code, err)
}

// KindOf returns the kind of err, or KindDownstreamFailure when err is not
// structured.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDownstreamFailure
}

// CodeOf returns the pipeline code of err, or "" when err is not structured.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
