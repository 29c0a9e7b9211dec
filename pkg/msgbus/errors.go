package msgbus

import (
	"errors"

	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
)

// Sentinel errors for delivery.
var (
	// ErrUnexpectedMessage indicates a typed handler received a message of another type.
	ErrUnexpectedMessage = errors.New("unexpected message type")

	// ErrScopeClosed indicates Resolve was called on a scope after Close.
	ErrScopeClosed = errors.New("scope is closed")

	// ErrNilMessage indicates Broadcast was called without a message.
	ErrNilMessage = errors.New("message cannot be nil")
)

// Error types re-exported from the errors package so callers of the core API
// can use errors.As without a second import.
type (
	ConfigurationError = bserrors.ConfigurationError
	ResolutionError    = bserrors.ResolutionError
	TransmissionError  = bserrors.TransmissionError
	AggregateError     = bserrors.AggregateError
	PanicError         = bserrors.PanicError
)
