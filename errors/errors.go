package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error is a structured error carrying a code, a human-readable message,
// optional key/value context, and an optional wrapped cause.
type Error struct {
	// Code classifies the error condition.
	Code Code

	// Message is the human-readable description.
	Message string

	// Context carries additional structured detail (stage name, pattern,
	// target, ...). May be nil.
	Context map[string]interface{}

	cause error
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message. Returns nil if err
// is nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// WrapWithContext wraps an existing error with a code, message and context
// map. Returns nil if err is nil.
func WrapWithContext(err error, code Code, message string, context map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Context: context, cause: err}
}

// WithContext returns a copy of e with the given key set in its context.
func (e *Error) WithContext(key string, value interface{}) *Error {
	clone := *e
	clone.Context = make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		clone.Context[k] = v
	}
	clone.Context[key] = value
	return &clone
}

// Error implements the error interface. Context keys render sorted for
// stable output.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code, which lets
// call sites match on classification with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// GetCode extracts the Code from an error chain. Returns CodeUnknown for
// nil or unclassified errors.
func GetCode(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
