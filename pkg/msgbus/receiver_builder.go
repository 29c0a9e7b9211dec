package msgbus

import (
	"log/slog"
	"slices"
	"sync"
)

// ReceiverBuilder accumulates the middleware and terminal handler for one
// receiver, then asks the resolver to activate it.
type ReceiverBuilder interface {
	// Descriptor returns the receiver's descriptor.
	Descriptor() ReceiverDescriptor

	// Use appends middleware. Middleware added first runs outermost.
	// Panics if mw is nil.
	Use(mw Middleware) ReceiverBuilder

	// Handle sets the terminal delegate. The default does nothing.
	// Panics if fn is nil.
	Handle(fn TransmissionDelegate) ReceiverBuilder

	// BuildReceiver composes the chain and activates the receiver.
	BuildReceiver() (Receiver, error)
}

// ReceiverBuilderOption configures a ReceiverBuilder.
type ReceiverBuilderOption func(*receiverBuilder)

// WithReceiverLogger sets the logger handed to the activated receiver.
func WithReceiverLogger(logger *slog.Logger) ReceiverBuilderOption {
	return func(b *receiverBuilder) {
		b.logger = logger
	}
}

type receiverBuilder struct {
	resolver   Resolver
	descriptor ReceiverDescriptor
	logger     *slog.Logger

	mu         sync.Mutex
	middleware []Middleware
	terminal   TransmissionDelegate
}

// NewReceiverBuilder creates a builder for descriptor.
// Panics if resolver is nil.
func NewReceiverBuilder(resolver Resolver, descriptor ReceiverDescriptor, opts ...ReceiverBuilderOption) ReceiverBuilder {
	if resolver == nil {
		panic("msgbus: resolver cannot be nil")
	}
	b := &receiverBuilder{
		resolver:   resolver,
		descriptor: descriptor,
		terminal:   noopDelegate,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

func (b *receiverBuilder) Descriptor() ReceiverDescriptor {
	return b.descriptor
}

func (b *receiverBuilder) Use(mw Middleware) ReceiverBuilder {
	if mw == nil {
		panic("msgbus: middleware cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
	return b
}

func (b *receiverBuilder) Handle(fn TransmissionDelegate) ReceiverBuilder {
	if fn == nil {
		panic("msgbus: handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminal = fn
	return b
}

func (b *receiverBuilder) BuildReceiver() (Receiver, error) {
	b.mu.Lock()
	middleware := slices.Clone(b.middleware)
	terminal := b.terminal
	b.mu.Unlock()

	return b.resolver.ActivateReceiver(ReceiverActivation{
		Descriptor: b.descriptor,
		Delegate:   Chain(terminal, middleware...),
		Resolver:   b.resolver,
		Logger:     b.logger,
	})
}
