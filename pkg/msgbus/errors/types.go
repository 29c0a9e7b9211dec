package errors

import (
	"fmt"
	"strings"
	"time"
)

// ConfigurationError reports invalid setup: nil callbacks, blank or duplicate
// ids, unknown receiver variants. It is always returned synchronously.
type ConfigurationError struct {
	// Field names the argument or setting at fault.
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Configuration creates a ConfigurationError.
func Configuration(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ResolutionError reports that the resolver could not produce an instance.
type ResolutionError struct {
	// Kind is what was being resolved ("transmitter", "receiver", "service").
	Kind string
	// Type is the registered type key that was requested.
	Type string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s %q: %v", e.Kind, e.Type, e.Err)
	}
	return fmt.Sprintf("resolve %s %q: not registered", e.Kind, e.Type)
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// TransmissionError reports that a transport accepted a message but could not
// hand it to its destination (a channel, topic or table).
type TransmissionError struct {
	// Transport names the transmitter kind, e.g. "redis".
	Transport   string
	Destination string
	Err         error
}

// Error implements the error interface.
func (e *TransmissionError) Error() string {
	return fmt.Sprintf("%s transmit to %s: %v", e.Transport, e.Destination, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransmissionError) Unwrap() error {
	return e.Err
}

// AggregateError bundles every error captured when all targeted transmitters
// failed. Errs keeps attempt order.
type AggregateError struct {
	Errs []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("all %d transmissions failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

// Unwrap exposes every captured error for errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errs
}

// TimeoutError indicates an operation gave up waiting after Duration.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
	Err       error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout after %s", e.Operation, e.Duration)
}

// Unwrap returns the underlying error, usually context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic recovered while processing a transmission.
type PanicError struct {
	ReceiverID string
	Value      any
	Stack      string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("receiver %s panicked: %v", e.ReceiverID, e.Value)
}
