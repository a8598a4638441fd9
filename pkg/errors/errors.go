// Package errors provides structured error handling for neventgen
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors, including conflicting options
	ErrorTypeConfig ErrorType = "configuration"
	// ErrorTypeAllocation represents event storage that could not be allocated
	ErrorTypeAllocation ErrorType = "allocation"
	// ErrorTypeSourceUnavailable represents a source identifier that cannot be resolved
	ErrorTypeSourceUnavailable ErrorType = "source_unavailable"
	// ErrorTypeMalformedSource represents a structurally invalid source description
	ErrorTypeMalformedSource ErrorType = "malformed_source"
	// ErrorTypeEncoding represents a wire buffer construction failure
	ErrorTypeEncoding ErrorType = "encoding"
	// ErrorTypeTransmission represents a failure to deliver a message to the broker
	ErrorTypeTransmission ErrorType = "transmission"
	// ErrorTypeMissingField represents a process-variable field absent on its channel
	ErrorTypeMissingField ErrorType = "missing_field"
	// ErrorTypeFieldType represents a process-variable field read with the wrong shape
	ErrorTypeFieldType ErrorType = "field_type"
	// ErrorTypeCancelled represents a run stopped by its context
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Error represents a structured error with context
type Error struct {
	Type      ErrorType
	Message   string
	Cause     error
	Details   map[string]interface{}
	Stack     []StackFrame
	retryable bool
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports the retryability hint attached by the producer of the error.
func (e *Error) Retryable() bool {
	return e.retryable
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack and retry hint
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:      errType,
			Message:   message,
			Cause:     err,
			Stack:     existingErr.Stack,
			retryable: existingErr.retryable,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Transmission builds a transmission failure carrying a retryability hint.
func Transmission(err error, retryable bool, message string) *Error {
	e := &Error{
		Type:      ErrorTypeTransmission,
		Message:   message,
		Cause:     err,
		Stack:     captureStack(2),
		retryable: retryable,
	}
	return e
}

// IsRetryable returns true if the error is a transmission failure marked retryable
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == ErrorTypeTransmission && e.retryable
}

// IsType checks if the error, or any error it wraps, is of the given type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the outermost structured error type, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
