// Package errs defines the error kinds surfaced by the resource runtime.
//
// Every failure raised by the core carries a Code. Callers match on the code
// with errors.Is against the exported sentinels:
//
//	if errors.Is(err, errs.ErrTypeMismatch) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Code identifies the kind of a runtime error.
type Code string

const (
	// CodeDefinition is a malformed or contradictory raw definition.
	CodeDefinition Code = "DefinitionError"

	// CodeTypeMismatch is a value/kind or redefinition incompatibility.
	CodeTypeMismatch Code = "TypeMismatch"

	// CodeParse is a string-to-value coercion failure.
	CodeParse Code = "ParseError"

	// CodeInference is a literal whose kind cannot be inferred.
	CodeInference Code = "InferenceError"

	// CodeUnknownParameter is a named argument no parameter accepts.
	CodeUnknownParameter Code = "UnknownParameter"

	// CodeArity is a positional argument no parameter accepts.
	CodeArity Code = "ArityError"

	// CodeAmbiguousProperty is an unresolved multi-base name collision.
	CodeAmbiguousProperty Code = "AmbiguousProperty"

	// CodeNotFound is a missing import, file or remote method.
	CodeNotFound Code = "NotFoundError"

	// CodeProtocol is a malformed remote response.
	CodeProtocol Code = "ProtocolError"
)

// Sentinels for errors.Is comparisons.
var (
	ErrDefinition        = &Error{Code: CodeDefinition}
	ErrTypeMismatch      = &Error{Code: CodeTypeMismatch}
	ErrParse             = &Error{Code: CodeParse}
	ErrInference         = &Error{Code: CodeInference}
	ErrUnknownParameter  = &Error{Code: CodeUnknownParameter}
	ErrArity             = &Error{Code: CodeArity}
	ErrAmbiguousProperty = &Error{Code: CodeAmbiguousProperty}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrProtocol          = &Error{Code: CodeProtocol}
)

// Error is a coded runtime error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error that wraps a cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if d := e.detail(); d != "" {
		return string(e.Code) + ": " + d
	}
	return string(e.Code)
}

// detail renders the message chain. A wrapped error with the same code is
// rendered without repeating the code.
func (e *Error) detail() string {
	msg := e.Message
	if e.Err == nil {
		return msg
	}
	cause := e.Err.Error()
	if inner, ok := e.Err.(*Error); ok && inner.Code == e.Code {
		cause = inner.detail()
	}
	if msg == "" {
		return cause
	}
	return msg + ": " + cause
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With adds context to err, keeping its code when it has one.
func With(err error, format string, args ...any) error {
	code := CodeOf(err)
	if code == "" {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	}
	return Wrap(code, err, format, args...)
}

// CodeOf returns the code of the first coded error in err's chain,
// or an empty code if there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
