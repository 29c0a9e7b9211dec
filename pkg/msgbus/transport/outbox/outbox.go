package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/msgbus/pkg/msgbus"
	"github.com/randalmurphal/msgbus/pkg/msgbus/config"
	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
	"github.com/randalmurphal/msgbus/pkg/msgbus/transport"
)

// Type keys registered by Register.
const (
	TransmitterType = "outbox.transmitter"
	ReceiverType    = "outbox.relay"
)

// TopicOption is the transmission option naming the outbox topic.
const TopicOption = "topic"

// Relay defaults.
const (
	DefaultPollInterval = time.Second
	DefaultBatchSize    = 100
	DefaultMaxAttempts  = 10
)

// Transmitter appends encoded messages to a Store. Transmit returning nil
// means the message is durable, not that anyone has received it.
type Transmitter struct {
	store        Store
	codec        *transport.Codec
	defaultTopic string
}

var _ msgbus.Transmitter = (*Transmitter)(nil)

// NewTransmitter creates a transmitter.
func NewTransmitter(store Store, codec *transport.Codec, defaultTopic string) *Transmitter {
	return &Transmitter{store: store, codec: codec, defaultTopic: defaultTopic}
}

// Transmit implements msgbus.Transmitter.
func (t *Transmitter) Transmit(ctx context.Context, msg msgbus.Message, opts config.Config) error {
	topic := opts.String(TopicOption, t.defaultTopic)
	if topic == "" {
		return bserrors.Configuration(TopicOption, "no topic in transmission options and no default topic")
	}
	data, err := t.codec.Encode(msg)
	if err != nil {
		return bserrors.Permanent(err, "encode")
	}
	if _, err := t.store.Append(ctx, topic, data); err != nil {
		return &bserrors.TransmissionError{Transport: "outbox", Destination: topic, Err: err}
	}
	return nil
}

// ErrorHandler receives records whose decode or chain returned an error.
type ErrorHandler func(receiverID string, rec Record, err error)

// RelayConfig tunes a Relay.
type RelayConfig struct {
	// PollInterval is the wait after a poll that found nothing or had a
	// failed record.
	// Default: 1s
	PollInterval time.Duration

	// BatchSize caps records fetched per topic per poll.
	// Default: 100
	BatchSize int

	// MaxAttempts stops retrying a record after this many failures.
	// Default: 10
	MaxAttempts int

	OnError ErrorHandler
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Relay is a receiver that drains pending outbox records for the topics in
// its descriptor parameters. A record is marked delivered only after its
// chain succeeds, so delivery is at-least-once. The Record is the raw event.
type Relay struct {
	msgbus.ReceiverBase

	store   Store
	decoder transport.Decoder
	topics  []string
	config  RelayConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ msgbus.Receiver = (*Relay)(nil)

// NewRelay creates a relay for activation. Every descriptor parameter must
// be a topic name.
func NewRelay(activation msgbus.ReceiverActivation, store Store, decoder transport.Decoder, cfg RelayConfig) (*Relay, error) {
	params := activation.Descriptor.Parameters()
	if len(params) == 0 {
		return nil, bserrors.Configuration("parameters",
			"relay %s needs at least one topic", activation.Descriptor.ID)
	}
	topics := make([]string, 0, len(params))
	for i, p := range params {
		topic, ok := p.(string)
		if !ok || topic == "" {
			return nil, bserrors.Configuration("parameters",
				"relay %s parameter %d must be a topic name, got %T", activation.Descriptor.ID, i, p)
		}
		topics = append(topics, topic)
	}
	if store == nil {
		return nil, bserrors.Configuration("store", "must not be nil")
	}
	if decoder == nil {
		return nil, bserrors.Configuration("decoder", "must not be nil")
	}

	return &Relay{
		ReceiverBase: msgbus.NewReceiverBase(activation),
		store:        store,
		decoder:      decoder,
		topics:       topics,
		config:       cfg.withDefaults(),
	}, nil
}

// Topics returns the relayed topic names.
func (r *Relay) Topics() []string {
	return append([]string(nil), r.topics...)
}

// Start begins polling in the background until ctx is done or Close is
// called.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return fmt.Errorf("outbox relay %s already started", r.ReceiverID())
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.poll(ctx, r.done)
	return nil
}

func (r *Relay) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		delivered, failed, err := r.drain(ctx)
		if err != nil && ctx.Err() == nil {
			r.Logger().Warn("outbox poll failed",
				slog.String("receiver_id", r.ReceiverID()),
				slog.String("error", err.Error()),
			)
		}
		// A clean batch may have more behind it. Failed records wait for
		// the next tick so their attempts are spread over PollInterval.
		if delivered > 0 && failed == 0 && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain processes one batch per topic and returns how many records were
// delivered. Failed records stay pending until MaxAttempts.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	delivered, _, err := r.drain(ctx)
	return delivered, err
}

func (r *Relay) drain(ctx context.Context) (delivered, failed int, err error) {
	for _, topic := range r.topics {
		if err := ctx.Err(); err != nil {
			return delivered, failed, err
		}

		records, err := r.store.Pending(ctx, Query{
			Topic:       topic,
			Limit:       r.config.BatchSize,
			MaxAttempts: r.config.MaxAttempts,
		})
		if err != nil {
			return delivered, failed, fmt.Errorf("load pending for %s: %w", topic, err)
		}

		for _, rec := range records {
			ok, err := r.deliver(ctx, rec)
			if err != nil {
				return delivered, failed, err
			}
			if ok {
				delivered++
			} else {
				failed++
			}
		}
	}
	return delivered, failed, nil
}

// deliver runs one record. The returned error is a store failure; chain
// failures are recorded on the record and reported.
func (r *Relay) deliver(ctx context.Context, rec Record) (bool, error) {
	msg, err := r.decoder.Decode(rec.Data)
	if err == nil {
		err = r.ProcessTransmission(ctx, msg, rec)
	} else {
		err = fmt.Errorf("decode: %w", err)
	}

	if err != nil {
		r.reportError(rec, err)
		if markErr := r.store.MarkFailed(ctx, rec.ID, err); markErr != nil {
			return false, fmt.Errorf("mark %s failed: %w", rec.ID, markErr)
		}
		return false, nil
	}

	if err := r.store.MarkDelivered(ctx, rec.ID); err != nil {
		return false, fmt.Errorf("mark %s delivered: %w", rec.ID, err)
	}
	return true, nil
}

func (r *Relay) reportError(rec Record, err error) {
	if r.config.OnError != nil {
		r.config.OnError(r.ReceiverID(), rec, err)
		return
	}
	r.Logger().Error("outbox delivery failed",
		slog.String("receiver_id", r.ReceiverID()),
		slog.String("record_id", rec.ID),
		slog.String("topic", rec.Topic),
		slog.Int("attempts", rec.Attempts+1),
		slog.String("error", err.Error()),
	)
}

// Close stops polling and waits for the current batch to finish.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done == nil {
		return nil
	}
	r.cancel()
	<-r.done
	r.done = nil
	r.cancel = nil
	return nil
}

// Option configures Register.
type Option func(*options)

type options struct {
	defaultTopic string
	relay        RelayConfig
}

// WithDefaultTopic sets the topic transmitters use when a broadcast names none.
func WithDefaultTopic(topic string) Option {
	return func(o *options) {
		o.defaultTopic = topic
	}
}

// WithRelayConfig sets the configuration every relay is created with.
func WithRelayConfig(cfg RelayConfig) Option {
	return func(o *options) {
		o.relay = cfg
	}
}

// Register adds the outbox transmitter and relay types to container.
func Register(container *msgbus.Container, store Store, codec *transport.Codec, opts ...Option) error {
	if store == nil {
		return bserrors.Configuration("store", "must not be nil")
	}
	if codec == nil {
		return bserrors.Configuration("codec", "must not be nil")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	err := container.RegisterTransmitter(TransmitterType, func() (msgbus.Transmitter, error) {
		return NewTransmitter(store, codec, o.defaultTopic), nil
	})
	if err != nil {
		return err
	}

	return container.RegisterReceiver(ReceiverType, func(a msgbus.ReceiverActivation) (msgbus.Receiver, error) {
		return NewRelay(a, store, codec, o.relay)
	})
}
