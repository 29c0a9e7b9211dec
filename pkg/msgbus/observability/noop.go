package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordTransmission does nothing.
func (NoopMetrics) RecordTransmission(context.Context, string, time.Duration, error) {}

// RecordBroadcast does nothing.
func (NoopMetrics) RecordBroadcast(context.Context, string, time.Duration) {}

// RecordReceive does nothing.
func (NoopMetrics) RecordReceive(context.Context, string, time.Duration, error) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartBroadcastSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartBroadcastSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartTransmissionSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartTransmissionSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartReceiveSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartReceiveSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}
