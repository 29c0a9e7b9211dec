package msgbus

import (
	"context"
	"errors"
	"log/slog"

	"github.com/randalmurphal/msgbus/pkg/msgbus/observability"
)

// Receiver is a long-running consumer that turns transport events into
// messages and runs them through its composed delegate.
type Receiver interface {
	// ReceiverID returns the id the receiver was registered under.
	ReceiverID() string

	// Start begins consuming. It returns once the receiver is subscribed;
	// consumption continues until ctx is cancelled or Close is called.
	Start(ctx context.Context) error

	// Close stops consumption and releases transport resources.
	Close() error
}

// ReceiverActivation carries everything a ReceiverFactory needs to construct
// a receiver.
type ReceiverActivation struct {
	Descriptor ReceiverDescriptor
	Delegate   TransmissionDelegate
	Resolver   Resolver
	Logger     *slog.Logger
}

// ReceiverBase implements the per-event processing shared by all receivers.
// Transport receivers embed it and call ProcessTransmission for each event.
type ReceiverBase struct {
	id       string
	delegate TransmissionDelegate
	resolver Resolver
	logger   *slog.Logger
}

// NewReceiverBase creates a ReceiverBase from an activation.
func NewReceiverBase(activation ReceiverActivation) ReceiverBase {
	delegate := activation.Delegate
	if delegate == nil {
		delegate = noopDelegate
	}
	logger := activation.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return ReceiverBase{
		id:       activation.Descriptor.ID,
		delegate: delegate,
		resolver: activation.Resolver,
		logger:   logger,
	}
}

// ReceiverID returns the receiver id.
func (b *ReceiverBase) ReceiverID() string {
	return b.id
}

// Logger returns the receiver's logger.
func (b *ReceiverBase) Logger() *slog.Logger {
	return b.logger
}

// ProcessTransmission runs one event through the delegate.
//
// Each call gets a fresh scope, closed when the delegate returns or panics.
// A scope close error is joined with the delegate's error.
func (b *ReceiverBase) ProcessTransmission(ctx context.Context, msg Message, raw any) (err error) {
	if isNilMessage(msg) {
		return ErrNilMessage
	}

	scope := b.newScope()
	defer func() {
		if closeErr := scope.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	logger := observability.EnrichLogger(b.logger, b.id, msg.MessageID())
	tc := newTransmissionContext(ctx, msg, raw, scope, b.id, logger)
	return b.delegate(tc)
}

func (b *ReceiverBase) newScope() Scope {
	if b.resolver == nil {
		return emptyScope{}
	}
	return b.resolver.NewScope()
}

// emptyScope is used when a receiver was built without a resolver.
type emptyScope struct{}

func (emptyScope) Resolve(name string) (any, error) {
	return nil, &ResolutionError{Kind: "service", Type: name}
}

func (emptyScope) Close() error { return nil }
