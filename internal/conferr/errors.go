// Package conferr defines the failures that stop a conformance run before
// or outside of test execution.
//
// Each error maps to exactly one FailureClass, which determines the process
// exit code. Test failures themselves are not errors; they are outcomes.
package conferr

import (
	"errors"
	"fmt"
)

// FailureClass is a stable failure category.
type FailureClass string

const (
	TestsFailed       FailureClass = "TESTS_FAILED"
	Usage             FailureClass = "USAGE"
	ConfigInvalid     FailureClass = "CONFIG_INVALID"
	SpecNotFound      FailureClass = "SPEC_NOT_FOUND"
	SpecInvalid       FailureClass = "SPEC_INVALID"
	TargetUnreachable FailureClass = "TARGET_UNREACHABLE"
	InternalIO        FailureClass = "INTERNAL_IO"
	InternalError     FailureClass = "INTERNAL_ERROR"
)

// ExitCode returns the process exit code for this failure class.
func (fc FailureClass) ExitCode() int {
	switch fc {
	case TestsFailed:
		return 1
	case Usage, ConfigInvalid:
		return 2
	case SpecNotFound, SpecInvalid:
		return 3
	case TargetUnreachable:
		return 4
	default:
		return 10
	}
}

// Error is a classified failure.
type Error struct {
	Class   FailureClass
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(class FailureClass, message string) *Error {
	return &Error{Class: class, Message: message}
}

func Wrap(class FailureClass, message string, cause error) *Error {
	return &Error{Class: class, Message: message, Cause: cause}
}

// ExitCode returns the exit code for err: 0 for nil, the class code for a
// classified error and the internal error code otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Class.ExitCode()
	}
	return InternalError.ExitCode()
}

// ClassOf returns the failure class of err, or InternalError.
func ClassOf(err error) FailureClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return InternalError
}
