package workflow

import (
	"errors"
	"fmt"

	"github.com/nidhogg/overseer/internal/task"
)

// Code classifies engine failures for API mapping and for agents that
// branch on failure kind.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidOwnership  Code = "INVALID_OWNERSHIP"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeValidationFailure Code = "VALIDATION_FAILURE"
	CodeOperationFailed   Code = "OPERATION_FAILED"
)

// Error is the engine's failure type. Op names the operation that
// failed, Fields lists offending inputs for validation failures.
type Error struct {
	Code    Code
	Op      string
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on code: errors.Is(err, &Error{Code: CodeNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// errf builds an engine error without a wrapped cause.
func errf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// wrap builds an engine error around a store or downstream failure,
// translating the domain sentinels into codes.
func wrap(op string, err error) *Error {
	code := CodeOperationFailed
	if errors.Is(err, task.ErrNotFound) {
		code = CodeNotFound
	}
	return &Error{Code: code, Op: op, Err: err}
}

// validationErr reports missing or invalid inputs.
func validationErr(op, message string, fields ...string) *Error {
	return &Error{Code: CodeValidationFailure, Op: op, Message: message, Fields: fields}
}

// engineErr passes engine errors through untouched and wraps
// everything else, so transactional callbacks can surface validation
// results directly.
func engineErr(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return wrap(op, err)
}

// CodeOf extracts the failure code from any error chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, task.ErrNotFound) {
		return CodeNotFound
	}
	return CodeOperationFailed
}

// FieldsOf returns the offending input names for validation failures.
func FieldsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
