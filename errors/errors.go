// Package errors provides standardized error handling for the requeue engine.
// It defines the closed set of terminal engine errors, an error classification
// scheme, and helper functions for consistent error wrapping across packages.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Envelope errors
	ErrInvalidEnvelope = errors.New("invalid retry envelope")

	// Connection errors
	ErrNotConnected = errors.New("not connected to messaging backend")
)

// UnknownStrategyError reports a backoff strategy the calculator does not
// recognize. It is fatal: the configuration is wrong and no amount of
// retrying will fix it.
type UnknownStrategyError struct {
	Strategy string
}

// Error implements the error interface
func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown backoff strategy %q", e.Strategy)
}

// MessageExpiredError reports that a message's original deadline has passed
// at the moment a retry would be scheduled. OriginalID identifies the first
// delivery of the logical message, CurrentID the delivery that just failed.
type MessageExpiredError struct {
	OriginalID string
	CurrentID  string
}

// Error implements the error interface
func (e *MessageExpiredError) Error() string {
	return fmt.Sprintf("message expired: original id %q, current id %q", e.OriginalID, e.CurrentID)
}

// MaxRetriesReachedError reports that a message has exhausted its retry
// budget. The surrounding runtime should treat the message as unrecoverable
// (typically routing it to a dead-letter path).
type MaxRetriesReachedError struct {
	OriginalID string
	CurrentID  string
}

// Error implements the error interface
func (e *MaxRetriesReachedError) Error() string {
	return fmt.Sprintf("max retries reached: original id %q, current id %q", e.OriginalID, e.CurrentID)
}

// IsUnknownStrategy reports whether err is an UnknownStrategyError
func IsUnknownStrategy(err error) bool {
	var use *UnknownStrategyError
	return errors.As(err, &use)
}

// IsMessageExpired reports whether err is a MessageExpiredError
func IsMessageExpired(err error) bool {
	var mee *MessageExpiredError
	return errors.As(err, &mee)
}

// IsMaxRetriesReached reports whether err is a MaxRetriesReachedError
func IsMaxRetriesReached(err error) bool {
	var mre *MaxRetriesReachedError
	return errors.As(err, &mre)
}

// IsTerminal reports whether err is one of the engine's terminal errors.
// Terminal errors escape the orchestrator so the host runtime's native
// failure path (dead-lettering) takes over; they are never retried.
func IsTerminal(err error) bool {
	return IsUnknownStrategy(err) || IsMessageExpired(err) || IsMaxRetriesReached(err)
}

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	switch {
	case IsUnknownStrategy(err), errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrMissingConfig):
		return ErrorFatal
	case IsMessageExpired(err), IsMaxRetriesReached(err), errors.Is(err, ErrInvalidEnvelope):
		// Terminal for the message, not for the process
		return ErrorInvalid
	}

	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ErrorTransient
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	return err != nil && Classify(err) == ErrorFatal
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	return err != nil && Classify(err) == ErrorInvalid
}

// newClassified creates a new classified error.
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       fmt.Errorf("%s.%s: %w", component, operation, err),
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorTransient, err, component, operation)
}

// WrapInvalid wraps an error as invalid input with context
func WrapInvalid(err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorInvalid, err, component, operation)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorFatal, err, component, operation)
}

// As is a convenience re-export of the standard library errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience re-export of the standard library errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New is a convenience re-export of the standard library errors.New
func New(text string) error {
	return errors.New(text)
}
