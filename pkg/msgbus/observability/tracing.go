package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the msgbus tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("msgbus")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartBroadcastSpan starts a span covering one whole broadcast.
	StartBroadcastSpan(ctx context.Context, messageID string, targets int) (context.Context, trace.Span)

	// StartTransmissionSpan starts a child span for one transmitter.
	StartTransmissionSpan(ctx context.Context, transmitterID string) (context.Context, trace.Span)

	// StartReceiveSpan starts a span for one incoming event on a receiver.
	StartReceiveSpan(ctx context.Context, receiverID, messageID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

// StartBroadcastSpan starts a span for a broadcast.
func (otelSpanManager) StartBroadcastSpan(ctx context.Context, messageID string, targets int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "msgbus.broadcast",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.Int("broadcast.targets", targets),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// StartTransmissionSpan starts a span for one transmitter.
func (otelSpanManager) StartTransmissionSpan(ctx context.Context, transmitterID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "msgbus.transmit."+transmitterID,
		trace.WithAttributes(
			attribute.String("transmitter.id", transmitterID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartReceiveSpan starts a span for an incoming event.
func (otelSpanManager) StartReceiveSpan(ctx context.Context, receiverID, messageID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "msgbus.receive."+receiverID,
		trace.WithAttributes(
			attribute.String("receiver.id", receiverID),
			attribute.String("message.id", messageID),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
