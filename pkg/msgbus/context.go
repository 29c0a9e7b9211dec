package msgbus

import (
	"context"
	"log/slog"
)

// TransmissionContext is handed to every delegate in a receiver's chain.
// It extends context.Context with the message being processed and the
// per-event scope.
//
// A TransmissionContext belongs to a single chain invocation. Do not retain
// it after the delegate returns; its scope is closed at that point.
type TransmissionContext interface {
	context.Context

	// Message returns the decoded message.
	Message() Message

	// RawEvent returns the transport-specific event the message was decoded
	// from (a *redis.Message, a local.Delivery, an outbox record). May be nil.
	RawEvent() any

	// Scope returns the per-event service scope.
	Scope() Scope

	// ReceiverID returns the id of the receiver processing the event.
	ReceiverID() string

	// Logger returns a logger enriched with receiver and message ids.
	// Never returns nil.
	Logger() *slog.Logger
}

type transmissionContext struct {
	context.Context

	message    Message
	rawEvent   any
	scope      Scope
	receiverID string
	logger     *slog.Logger
}

func newTransmissionContext(
	ctx context.Context,
	msg Message,
	raw any,
	scope Scope,
	receiverID string,
	logger *slog.Logger,
) *transmissionContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &transmissionContext{
		Context:    ctx,
		message:    msg,
		rawEvent:   raw,
		scope:      scope,
		receiverID: receiverID,
		logger:     logger,
	}
}

func (c *transmissionContext) Message() Message     { return c.message }
func (c *transmissionContext) RawEvent() any        { return c.rawEvent }
func (c *transmissionContext) Scope() Scope         { return c.scope }
func (c *transmissionContext) ReceiverID() string   { return c.receiverID }
func (c *transmissionContext) Logger() *slog.Logger { return c.logger }

// WithContext returns a copy of tc whose embedded context.Context is ctx.
// Middleware uses it to pass a derived context (a span, a deadline) down
// the chain.
func WithContext(ctx context.Context, tc TransmissionContext) TransmissionContext {
	if c, ok := tc.(*transmissionContext); ok {
		clone := *c
		clone.Context = ctx
		return &clone
	}
	return &transmissionContext{
		Context:    ctx,
		message:    tc.Message(),
		rawEvent:   tc.RawEvent(),
		scope:      tc.Scope(),
		receiverID: tc.ReceiverID(),
		logger:     tc.Logger(),
	}
}

// MessageAs returns the context's message as M.
func MessageAs[M Message](tc TransmissionContext) (M, bool) {
	m, ok := tc.Message().(M)
	return m, ok
}
