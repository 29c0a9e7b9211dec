package deadletter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/randalmurphal/msgbus/pkg/msgbus"
)

// Option configures Middleware.
type Option func(*middlewareConfig)

type middlewareConfig struct {
	skip func(error) bool
}

// SkipIf leaves errors matching fn out of the queue. They still propagate.
func SkipIf(fn func(error) bool) Option {
	return func(c *middlewareConfig) {
		c.skip = fn
	}
}

// Middleware records every failed delivery in queue and returns the
// original error unchanged. A failure to enqueue is logged, not returned.
func Middleware(queue Queue, opts ...Option) msgbus.Middleware {
	if queue == nil {
		panic("deadletter: queue cannot be nil")
	}
	cfg := &middlewareConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next msgbus.TransmissionDelegate) msgbus.TransmissionDelegate {
		return func(tc msgbus.TransmissionContext) error {
			err := next(tc)
			if err == nil || (cfg.skip != nil && cfg.skip(err)) {
				return err
			}

			entry := NewEntry(tc.ReceiverID(), tc.Message(), err)
			// Record even when the delivery failed because tc was cancelled.
			if qErr := queue.Enqueue(context.WithoutCancel(tc), entry); qErr != nil {
				tc.Logger().Error("dead letter enqueue failed",
					slog.String("error", qErr.Error()),
				)
			}
			return err
		}
	}
}

// ReplayFunc re-delivers one dead-lettered message.
type ReplayFunc func(ctx context.Context, entry *Entry) error

// ReplayStats reports the outcome of a Replay call.
type ReplayStats struct {
	Replayed  int
	Succeeded int
	Failed    int
}

// failureRecorder is implemented by queues that track replay attempts.
type failureRecorder interface {
	RecordFailure(ctx context.Context, id string, err error) error
}

// Replay re-delivers up to limit queued entries through fn, oldest first.
// Successful entries are acknowledged. Failed entries stay queued; queues
// that track attempts (MemoryQueue) count the failure and may park them.
func Replay(ctx context.Context, queue Queue, fn ReplayFunc, limit int) (ReplayStats, error) {
	var stats ReplayStats

	entries, err := queue.List(ctx, limit)
	if err != nil {
		return stats, err
	}

	recorder, tracksFailures := queue.(failureRecorder)
	var errs []error
	for _, entry := range entries {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Replayed++

		if replayErr := fn(ctx, entry); replayErr != nil {
			stats.Failed++
			if tracksFailures {
				if rErr := recorder.RecordFailure(ctx, entry.ID, replayErr); rErr != nil {
					errs = append(errs, rErr)
				}
			}
			continue
		}

		stats.Succeeded++
		if ackErr := queue.Acknowledge(ctx, entry.ID); ackErr != nil {
			errs = append(errs, ackErr)
		}
	}
	return stats, errors.Join(errs...)
}
