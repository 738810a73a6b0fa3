package router

import (
	"errors"
	"fmt"
)

// Error codes carried by RouteError.
const (
	CodeMissingParameter       = "MISSING_PARAMETER"
	CodeFieldNotFound          = "FIELD_NOT_FOUND"
	CodeCoercionFailure        = "COERCION_FAILURE"
	CodeParameterCountMismatch = "PARAMETER_COUNT_MISMATCH"
	CodeInvalidRule            = "INVALID_RULE"
	CodeInvalidDeclaration     = "INVALID_DECLARATION"
	CodeHandlerError           = "HANDLER_ERROR"
)

// Sentinels for errors.Is; they match any RouteError with the same code.
var (
	ErrMissingParameter       = &RouteError{Code: CodeMissingParameter}
	ErrFieldNotFound          = &RouteError{Code: CodeFieldNotFound}
	ErrCoercionFailure        = &RouteError{Code: CodeCoercionFailure}
	ErrParameterCountMismatch = &RouteError{Code: CodeParameterCountMismatch}
	ErrInvalidRule            = &RouteError{Code: CodeInvalidRule}
	ErrInvalidDeclaration     = &RouteError{Code: CodeInvalidDeclaration}
	ErrHandler                = &RouteError{Code: CodeHandlerError}
)

// RouteError is a structured registration or dispatch failure.
type RouteError struct {
	Code      string
	Message   string
	Method    string
	Parameter string
	// Produced and Expected are set for PARAMETER_COUNT_MISMATCH.
	Produced int
	Expected int
	Err      error
	// arg is the 1-based argument position of a typed invoker failure.
	arg int
}

func (e *RouteError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// Is matches another RouteError by code.
func (e *RouteError) Is(target error) bool {
	t, ok := target.(*RouteError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Code returns the RouteError code of err, or "" if err is not a RouteError.
func Code(err error) string {
	var re *RouteError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func missingParameter(method, param string) *RouteError {
	return &RouteError{
		Code:      CodeMissingParameter,
		Message:   fmt.Sprintf("method %s: missing parameter %q", method, param),
		Method:    method,
		Parameter: param,
	}
}

func coercionFailure(method, param string, t Type, value any, err error) *RouteError {
	return &RouteError{
		Code:      CodeCoercionFailure,
		Message:   fmt.Sprintf("method %s: parameter %q: cannot convert %T to %s", method, param, value, t),
		Method:    method,
		Parameter: param,
		Err:       err,
	}
}

func countMismatch(method string, produced, expected int) *RouteError {
	return &RouteError{
		Code:     CodeParameterCountMismatch,
		Message:  fmt.Sprintf("method %s: bound %d arguments, handler expects %d", method, produced, expected),
		Method:   method,
		Produced: produced,
		Expected: expected,
	}
}
