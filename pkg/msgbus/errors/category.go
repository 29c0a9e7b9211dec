// Package errors provides the msgbus error taxonomy and the retry helper
// used by transport adapters.
//
// The taxonomy separates setup mistakes from runtime failures:
//   - Configuration: invalid arguments, duplicate ids, missing callbacks
//   - Resolution: the resolver cannot produce a requested type
//   - Transmission: a transmitter failed during send
//   - Transient / Permanent: retry classification for transport code
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryPermanent indicates retry won't help.
	CategoryPermanent Category = iota

	// CategoryTransient indicates retry will likely help.
	// Examples: dropped connections, timeouts, temporary broker unavailability.
	CategoryTransient

	// CategoryConfiguration indicates the caller set something up incorrectly.
	CategoryConfiguration

	// CategoryResolution indicates a type could not be resolved.
	CategoryResolution

	// CategoryTransmission indicates a transmitter failed to send.
	CategoryTransmission
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPermanent:
		return "permanent"
	case CategoryTransient:
		return "transient"
	case CategoryConfiguration:
		return "configuration"
	case CategoryResolution:
		return "resolution"
	case CategoryTransmission:
		return "transmission"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var aggErr *AggregateError
	if errors.As(err, &aggErr) {
		return CategoryTransmission
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return CategoryConfiguration
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return CategoryResolution
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	var txErr *TransmissionError
	if errors.As(err, &txErr) {
		return CategoryTransmission
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsConfiguration reports whether the error is a setup mistake.
func IsConfiguration(err error) bool {
	return Categorize(err) == CategoryConfiguration
}

// IsResolution reports whether the error came from the resolver.
func IsResolution(err error) bool {
	return Categorize(err) == CategoryResolution
}
