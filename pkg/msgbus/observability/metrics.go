package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records msgbus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordTransmission records one send attempt to one transmitter.
	RecordTransmission(ctx context.Context, transmitterID string, duration time.Duration, err error)

	// RecordBroadcast records the aggregated outcome of a broadcast.
	RecordBroadcast(ctx context.Context, status string, duration time.Duration)

	// RecordReceive records one incoming event processed by a receiver.
	RecordReceive(ctx context.Context, receiverID string, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	transmissions      metric.Int64Counter
	transmissionErrors metric.Int64Counter
	transmissionTime   metric.Float64Histogram
	broadcasts         metric.Int64Counter
	broadcastTime      metric.Float64Histogram
	receives           metric.Int64Counter
	receiveErrors      metric.Int64Counter
	receiveTime        metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the shared OTel instruments.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter("msgbus"))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	if m.transmissions, err = meter.Int64Counter("msgbus.transmission.count",
		metric.WithDescription("Number of transmission attempts"),
	); err != nil {
		return nil, err
	}
	if m.transmissionErrors, err = meter.Int64Counter("msgbus.transmission.errors",
		metric.WithDescription("Number of failed transmission attempts"),
	); err != nil {
		return nil, err
	}
	if m.transmissionTime, err = meter.Float64Histogram("msgbus.transmission.latency_ms",
		metric.WithDescription("Transmission latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.broadcasts, err = meter.Int64Counter("msgbus.broadcast.count",
		metric.WithDescription("Number of broadcasts by outcome"),
	); err != nil {
		return nil, err
	}
	if m.broadcastTime, err = meter.Float64Histogram("msgbus.broadcast.latency_ms",
		metric.WithDescription("Broadcast latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.receives, err = meter.Int64Counter("msgbus.receive.count",
		metric.WithDescription("Number of processed incoming events"),
	); err != nil {
		return nil, err
	}
	if m.receiveErrors, err = meter.Int64Counter("msgbus.receive.errors",
		metric.WithDescription("Number of incoming events whose processing failed"),
	); err != nil {
		return nil, err
	}
	if m.receiveTime, err = meter.Float64Histogram("msgbus.receive.latency_ms",
		metric.WithDescription("Receive processing latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderFromMeter builds a recorder on a specific meter.
// Mostly useful in tests, where the global provider is swapped per test.
func NewMetricsRecorderFromMeter(meter metric.Meter) (MetricsRecorder, error) {
	return newOtelMetrics(meter)
}

// RecordTransmission records one send attempt.
func (m *otelMetrics) RecordTransmission(ctx context.Context, transmitterID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("transmitter_id", transmitterID))

	m.transmissions.Add(ctx, 1, attrs)
	m.transmissionTime.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.transmissionErrors.Add(ctx, 1, attrs)
	}
}

// RecordBroadcast records a broadcast outcome.
func (m *otelMetrics) RecordBroadcast(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.broadcasts.Add(ctx, 1, attrs)
	m.broadcastTime.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordReceive records one processed incoming event.
func (m *otelMetrics) RecordReceive(ctx context.Context, receiverID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("receiver_id", receiverID))

	m.receives.Add(ctx, 1, attrs)
	m.receiveTime.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.receiveErrors.Add(ctx, 1, attrs)
	}
}
