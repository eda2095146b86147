package enhancer

import (
	"errors"
	"fmt"

	"github.com/olehluchkiv/enhancer/internal/classfile"
	"github.com/olehluchkiv/enhancer/internal/instrument"
)

// ErrorCode is a stable identifier for a class-level failure.
type ErrorCode string

const (
	// ResolutionFailure: the class or a required ancestor could not be loaded.
	ResolutionFailure ErrorCode = "RESOLUTION_FAILURE"
	// UnsupportedPrimitiveSetter: a tracked setter takes a primitive.
	UnsupportedPrimitiveSetter ErrorCode = "UNSUPPORTED_PRIMITIVE_SETTER"
	// IOFailure: the enhanced class or its ledger entry could not be written.
	IOFailure ErrorCode = "IO_FAILURE"
	// MalformedClass: the input is not a class file this tool can rewrite.
	MalformedClass ErrorCode = "MALFORMED_CLASS"
)

// Error aborts the enhancement of one class.
type Error struct {
	Code    ErrorCode `json:"code" yaml:"code"`
	Class   string    `json:"class" yaml:"class"`
	Message string    `json:"message" yaml:"message"`
	cause   error
}

func newError(code ErrorCode, class, message string, cause error) *Error {
	return &Error{Code: code, Class: class, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Class, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Class, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// resolutionError distinguishes unreadable bytes from missing classes.
func resolutionError(class string, err error) *Error {
	if errors.Is(err, classfile.ErrMalformed) {
		return newError(MalformedClass, class, "class file could not be parsed", err)
	}
	return newError(ResolutionFailure, class, "class could not be resolved", err)
}

func instrumentError(class string, err error) *Error {
	var prim *instrument.PrimitiveSetterError
	if errors.As(err, &prim) {
		return newError(UnsupportedPrimitiveSetter, class, "tracked setter has a primitive parameter", err)
	}
	return newError(MalformedClass, class, "class could not be instrumented", err)
}
