// Package observability provides structured logging helpers, metrics, and
// distributed tracing for msgbus broadcasts and receivers.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// EnrichLogger adds receiver and message context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "orders-queue", msg.MessageID())
//	enriched.Info("processing") // includes receiver_id and message_id
func EnrichLogger(logger *slog.Logger, receiverID, messageID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("receiver_id", receiverID),
		slog.String("message_id", messageID),
	)
}

// LogBroadcastStart logs the start of a broadcast.
func LogBroadcastStart(logger *slog.Logger, messageID string, targets int) {
	if logger == nil {
		return
	}
	logger.Debug("broadcast starting",
		slog.String("message_id", messageID),
		slog.Int("targets", targets),
	)
}

// LogBroadcastComplete logs the aggregated outcome of a broadcast.
func LogBroadcastComplete(logger *slog.Logger, messageID, status string, failed, total int, durationMs float64) {
	if logger == nil {
		return
	}
	level := slog.LevelInfo
	if failed > 0 {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "broadcast completed",
		slog.String("message_id", messageID),
		slog.String("status", status),
		slog.Int("failed", failed),
		slog.Int("total", total),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogTransmissionError logs a single transmitter failure. The broadcast continues.
func LogTransmissionError(logger *slog.Logger, transmitterID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("transmission failed",
		slog.String("transmitter_id", transmitterID),
		slog.String("error", err.Error()),
	)
}

// LogResolutionError logs a resolver failure that aborts a broadcast.
func LogResolutionError(logger *slog.Logger, transmitterID, transmitterType string, err error) {
	if logger == nil {
		return
	}
	logger.Error("transmitter resolution failed",
		slog.String("transmitter_id", transmitterID),
		slog.String("transmitter_type", transmitterType),
		slog.String("error", err.Error()),
	)
}

// LogReceiveComplete logs a processed incoming event.
func LogReceiveComplete(logger *slog.Logger, receiverID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("transmission processed",
		slog.String("receiver_id", receiverID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogReceiveError logs a failed incoming event.
func LogReceiveError(logger *slog.Logger, receiverID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("transmission processing failed",
		slog.String("receiver_id", receiverID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
