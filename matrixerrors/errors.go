// Package matrixerrors provides error classification and wrapping helpers
// shared across every Matrix subsystem (Keymaster, transport, Architect).
package matrixerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Class classifies an error for handling purposes.
type Class int

const (
	// Transient errors are temporary and may be retried.
	Transient Class = iota
	// Invalid errors stem from bad input or configuration.
	Invalid
	// Fatal errors are unrecoverable and should stop the affected subsystem.
	Fatal
)

// String implements fmt.Stringer for Class.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Invalid:
		return "invalid"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard sentinel errors used across Matrix's core subsystems. NotFound
// and Conflict are returned as result records by the tree package, never
// wrapped as one of these, since callers treat them as ordinary outcomes
// rather than failures.
var (
	ErrNotFound        = errors.New("path not found")
	ErrConflict        = errors.New("put without create into missing path")
	ErrUnsupportedScheme = errors.New("unsupported transport scheme")
	ErrMixedSchemes    = errors.New("specified URLs resolve to different transport factories")
	ErrBind            = errors.New("transport bind failed")
	ErrTimeout         = errors.New("operation timed out")
	ErrClosed          = errors.New("handle already released")
	ErrUnknownCommand  = errors.New("unknown RPC command")
)

// ClassifiedError wraps an error with the subsystem, operation, and class
// that produced it, following the teacher's Component.Method pattern.
type ClassifiedError struct {
	Class     Class
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	if ce.Err != nil {
		return ce.Err.Error()
	}
	return "matrix: classified error"
}

// Unwrap returns the underlying error for errors.Is/As.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

func newClassified(class Class, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{Class: class, Err: err, Message: message, Component: component, Operation: operation}
}

// Wrap produces a standardized "component.operation: action failed: err" message.
func Wrap(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, operation, action, err)
}

// WrapTransient classifies err as Transient.
func WrapTransient(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, operation, action)
	return newClassified(Transient, wrapped, component, operation, wrapped.Error())
}

// WrapFatal classifies err as Fatal.
func WrapFatal(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, operation, action)
	return newClassified(Fatal, wrapped, component, operation, wrapped.Error())
}

// WrapInvalid classifies err as Invalid.
func WrapInvalid(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, operation, action)
	return newClassified(Invalid, wrapped, component, operation, wrapped.Error())
}

// Classify returns the class for err, defaulting unknown errors to Transient
// so callers retry rather than give up prematurely.
func Classify(err error) Class {
	if err == nil {
		return Transient
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if IsFatal(err) {
		return Fatal
	}
	if IsInvalid(err) {
		return Invalid
	}
	return Transient
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == Transient
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "network", "temporary", "unavailable", "busy", "retry"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err should abort the affected subsystem.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == Fatal
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"fatal", "panic", "corrupted", "unrecoverable"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IsInvalid reports whether err stems from bad input or configuration.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == Invalid
	}
	return errors.Is(err, ErrUnsupportedScheme) || errors.Is(err, ErrMixedSchemes) || errors.Is(err, ErrConflict)
}

// RetryConfig configures retry behavior; ToRetryConfig adapts it to pkg/retry.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns sane defaults for transport and RPC retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ShouldRetry reports whether attempt should be retried given err and config.
func (rc RetryConfig) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rc.MaxRetries {
		return false
	}
	return IsTransient(err)
}
