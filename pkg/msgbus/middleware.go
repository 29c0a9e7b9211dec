package msgbus

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"github.com/randalmurphal/msgbus/pkg/msgbus/observability"
)

// Common middleware implementations

// RecoveryMiddleware turns a panic further down the chain into a *PanicError.
func RecoveryMiddleware() Middleware {
	return func(next TransmissionDelegate) TransmissionDelegate {
		return func(tc TransmissionContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{
						ReceiverID: tc.ReceiverID(),
						Value:      r,
						Stack:      string(debug.Stack()),
					}
				}
			}()
			return next(tc)
		}
	}
}

// LoggingMiddleware logs the outcome of every delivery. A nil logger uses
// the context's logger.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next TransmissionDelegate) TransmissionDelegate {
		return func(tc TransmissionContext) error {
			l := logger
			if l == nil {
				l = tc.Logger()
			}
			done := observability.TimedOperation()
			err := next(tc)
			if err != nil {
				observability.LogReceiveError(l, tc.ReceiverID(), err)
			} else {
				observability.LogReceiveComplete(l, tc.ReceiverID(), done())
			}
			return err
		}
	}
}

// MetricsMiddleware records receive count, errors and latency.
func MetricsMiddleware(recorder observability.MetricsRecorder) Middleware {
	if recorder == nil {
		recorder = observability.NoopMetrics{}
	}
	return func(next TransmissionDelegate) TransmissionDelegate {
		return func(tc TransmissionContext) error {
			start := time.Now()
			err := next(tc)
			recorder.RecordReceive(tc, tc.ReceiverID(), time.Since(start), err)
			return err
		}
	}
}

// TracingMiddleware wraps the rest of the chain in a receive span.
func TracingMiddleware(spans observability.SpanManager) Middleware {
	if spans == nil {
		spans = observability.NoopSpanManager{}
	}
	return func(next TransmissionDelegate) TransmissionDelegate {
		return func(tc TransmissionContext) error {
			ctx, span := spans.StartReceiveSpan(tc, tc.ReceiverID(), tc.Message().MessageID())
			err := next(WithContext(ctx, tc))
			spans.EndSpanWithError(span, err)
			return err
		}
	}
}

// RateLimitMiddleware waits on limiter before each delivery. If the wait is
// cancelled the delivery fails without reaching the rest of the chain.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	if limiter == nil {
		panic("msgbus: rate limiter cannot be nil")
	}
	return func(next TransmissionDelegate) TransmissionDelegate {
		return func(tc TransmissionContext) error {
			if err := limiter.Wait(tc); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
			return next(tc)
		}
	}
}
