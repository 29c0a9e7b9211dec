package msgbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/msgbus/pkg/msgbus/config"
	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
	"github.com/randalmurphal/msgbus/pkg/msgbus/observability"
)

// Transmitter sends a message over one transport.
type Transmitter interface {
	Transmit(ctx context.Context, msg Message, opts config.Config) error
}

// TransmitterFunc adapts a function to the Transmitter interface.
type TransmitterFunc func(ctx context.Context, msg Message, opts config.Config) error

// Transmit calls f.
func (f TransmitterFunc) Transmit(ctx context.Context, msg Message, opts config.Config) error {
	return f(ctx, msg, opts)
}

// BroadcastOptions selects the transmitters for one broadcast and carries
// options passed through to each of them.
type BroadcastOptions struct {
	// TargetTransmitterIDs limits the broadcast to these ids. Nil means all.
	TargetTransmitterIDs []string

	// TransmissionOptions is handed unmodified to every transmitter.
	TransmissionOptions config.Config
}

// BroadcastConfigurator fills in BroadcastOptions for one broadcast.
type BroadcastConfigurator func(opts *BroadcastOptions)

// All targets every registered transmitter with no transport options.
func All() BroadcastConfigurator {
	return func(*BroadcastOptions) {}
}

// Targets limits a broadcast to the given transmitter ids. Targets() with
// no ids selects nothing.
func Targets(ids ...string) BroadcastConfigurator {
	selected := append([]string{}, ids...)
	return func(opts *BroadcastOptions) {
		opts.TargetTransmitterIDs = selected
	}
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBroadcastLogger sets the logger. Defaults to slog.Default().
func WithBroadcastLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithBroadcastMetrics enables metrics recording.
func WithBroadcastMetrics(recorder observability.MetricsRecorder) BroadcasterOption {
	return func(b *Broadcaster) {
		b.metrics = recorder
	}
}

// WithBroadcastSpans enables tracing.
func WithBroadcastSpans(spans observability.SpanManager) BroadcasterOption {
	return func(b *Broadcaster) {
		b.spans = spans
	}
}

// Broadcaster fans a message out to registered transmitters and aggregates
// the outcomes.
//
// A Broadcaster holds no per-call state and is safe for concurrent use once
// the transmitter registry is populated.
type Broadcaster struct {
	transmitters *TransmitterRegistry
	resolver     Resolver
	logger       *slog.Logger
	metrics      observability.MetricsRecorder
	spans        observability.SpanManager
}

// NewBroadcaster creates a broadcaster over the given registry.
// Panics if transmitters or resolver is nil.
func NewBroadcaster(transmitters *TransmitterRegistry, resolver Resolver, opts ...BroadcasterOption) *Broadcaster {
	if transmitters == nil {
		panic("msgbus: transmitter registry cannot be nil")
	}
	if resolver == nil {
		panic("msgbus: resolver cannot be nil")
	}
	b := &Broadcaster{
		transmitters: transmitters,
		resolver:     resolver,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.metrics == nil {
		b.metrics = observability.NoopMetrics{}
	}
	if b.spans == nil {
		b.spans = observability.NoopSpanManager{}
	}
	return b
}

// Broadcast sends msg to the transmitters selected by configure, one at a
// time in registration order.
//
// Outcomes:
//   - every transmitter succeeded: StatusSuccess, all results, nil error
//   - some failed: StatusPartial, all results, nil error
//   - all failed: StatusFailed, no results, *AggregateError with every cause
//
// A transmitter error is recorded and the broadcast moves on. A resolver
// error is not: it aborts the broadcast and is returned as-is with a nil
// result. ctx is forwarded to each transmitter and not otherwise inspected.
func (b *Broadcaster) Broadcast(ctx context.Context, msg Message, configure BroadcastConfigurator) (*BroadcastResult, error) {
	if configure == nil {
		return nil, bserrors.Configuration("configure", "must not be nil")
	}
	if isNilMessage(msg) {
		return nil, ErrNilMessage
	}

	opts := BroadcastOptions{TransmissionOptions: config.New(nil)}
	configure(&opts)

	targets := b.targets(opts.TargetTransmitterIDs)
	messageID := msg.MessageID()

	start := time.Now()
	ctx, span := b.spans.StartBroadcastSpan(ctx, messageID, len(targets))
	observability.LogBroadcastStart(b.logger, messageID, len(targets))

	results := make([]TransmissionResult, 0, len(targets))
	var failures []error

	for _, desc := range targets {
		transmitter, err := b.resolver.ResolveTransmitter(desc.Type)
		if err != nil {
			observability.LogResolutionError(b.logger, desc.ID, desc.Type, err)
			b.spans.EndSpanWithError(span, err)
			return nil, err
		}

		result := b.transmit(ctx, transmitter, desc.ID, msg, opts.TransmissionOptions)
		if result.Err != nil {
			failures = append(failures, result.Err)
		}
		results = append(results, result)
	}

	result, err := aggregate(results, failures)

	elapsed := time.Since(start)
	b.metrics.RecordBroadcast(ctx, result.Status.String(), elapsed)
	observability.LogBroadcastComplete(b.logger, messageID, result.Status.String(),
		len(failures), len(targets), float64(elapsed.Microseconds())/1000)
	b.spans.EndSpanWithError(span, err)

	return result, err
}

func (b *Broadcaster) transmit(
	ctx context.Context,
	transmitter Transmitter,
	id string,
	msg Message,
	opts config.Config,
) TransmissionResult {
	txCtx, span := b.spans.StartTransmissionSpan(ctx, id)
	start := time.Now()

	err := transmitter.Transmit(txCtx, msg, opts)

	elapsed := time.Since(start)
	b.metrics.RecordTransmission(ctx, id, elapsed, err)
	b.spans.EndSpanWithError(span, err)
	if err != nil {
		observability.LogTransmissionError(b.logger, id, err)
	}

	return TransmissionResult{TransmitterID: id, Err: err, Duration: elapsed}
}

// targets returns registered descriptors filtered by ids, in registration order.
func (b *Broadcaster) targets(ids []string) []TransmitterDescriptor {
	all := b.transmitters.Descriptors()
	if ids == nil {
		return all
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	filtered := make([]TransmitterDescriptor, 0, len(wanted))
	for _, desc := range all {
		if _, ok := wanted[desc.ID]; ok {
			filtered = append(filtered, desc)
		}
	}
	return filtered
}

func aggregate(results []TransmissionResult, failures []error) (*BroadcastResult, error) {
	switch {
	case len(failures) == 0:
		return &BroadcastResult{Status: StatusSuccess, TransmissionResults: results}, nil
	case len(failures) == len(results):
		return &BroadcastResult{Status: StatusFailed}, &bserrors.AggregateError{Errs: failures}
	default:
		return &BroadcastResult{Status: StatusPartial, TransmissionResults: results}, nil
	}
}
