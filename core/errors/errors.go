package errors

import (
	stderrors "errors"
	"fmt"
)

// Class groups failures by how a caller should react to them.
type Class string

const (
	// ClassUnknown covers internal failures that carry no classification.
	ClassUnknown Class = "unknown"
	// ClassValidation marks caller-supplied values or account bindings that
	// failed a structural check. Retrying with the same input fails again.
	ClassValidation Class = "validation"
	// ClassDerivation marks an account that does not match its deterministic
	// derivation. Never retried automatically.
	ClassDerivation Class = "derivation"
	// ClassResource marks balance or allocation conflicts that may clear once
	// ledger state changes.
	ClassResource Class = "resource"
)

// Error attaches a class to a sentinel condition.
type Error struct {
	class Class
	code  string
	msg   string
}

// New returns a classified sentinel error. Code is a stable identifier
// exposed to RPC clients.
func New(class Class, code, msg string) *Error {
	return &Error{class: class, code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Class returns the classification of the error.
func (e *Error) Class() Class { return e.class }

// Code returns the stable identifier of the condition.
func (e *Error) Code() string { return e.code }

// Wrap decorates err with context while keeping it matchable by errors.Is.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Classify returns the class of the first classified error in err's chain.
func Classify(err error) Class {
	var classified *Error
	if stderrors.As(err, &classified) {
		return classified.class
	}
	return ClassUnknown
}

// Code returns the stable code of the first classified error in err's chain.
func Code(err error) string {
	var classified *Error
	if stderrors.As(err, &classified) {
		return classified.code
	}
	return ""
}

// Retryable reports whether resubmitting the same request may succeed later.
func Retryable(err error) bool {
	return Classify(err) == ClassResource
}
