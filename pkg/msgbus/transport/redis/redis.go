package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/msgbus/pkg/msgbus"
	"github.com/randalmurphal/msgbus/pkg/msgbus/config"
	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
	"github.com/randalmurphal/msgbus/pkg/msgbus/transport"
)

// Type keys registered by Register.
const (
	TransmitterType = "redis.transmitter"
	ReceiverType    = "redis.receiver"
)

// ChannelOption is the transmission option naming the PUBLISH channel.
const ChannelOption = "channel"

// Transmitter publishes JSON envelopes on a redis channel.
type Transmitter struct {
	client         redis.UniversalClient
	codec          *transport.Codec
	defaultChannel string
	retry          bserrors.RetryConfig
}

var _ msgbus.Transmitter = (*Transmitter)(nil)

// NewTransmitter creates a transmitter using bserrors.DefaultRetry.
func NewTransmitter(client redis.UniversalClient, codec *transport.Codec, defaultChannel string) *Transmitter {
	return &Transmitter{
		client:         client,
		codec:          codec,
		defaultChannel: defaultChannel,
		retry:          bserrors.DefaultRetry,
	}
}

// Transmit encodes msg and publishes it. Network failures are retried;
// encoding and server errors are not.
func (t *Transmitter) Transmit(ctx context.Context, msg msgbus.Message, opts config.Config) error {
	channel := opts.String(ChannelOption, t.defaultChannel)
	if channel == "" {
		return bserrors.Configuration(ChannelOption, "no channel in transmission options and no default channel")
	}

	data, err := t.codec.Encode(msg)
	if err != nil {
		return bserrors.Permanent(err, "encode")
	}

	result := bserrors.WithRetryContext(ctx, t.retry, func(ctx context.Context) (int64, error) {
		n, err := t.client.Publish(ctx, channel, data).Result()
		if err != nil {
			return 0, classify(err)
		}
		return n, nil
	})
	if result.Err != nil {
		return &bserrors.TransmissionError{Transport: "redis", Destination: channel, Err: result.Err}
	}
	return nil
}

// classify marks connection-level failures transient.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		return bserrors.Transient(err, "redis connection")
	}
	return err
}

// ErrorHandler receives messages whose decode or chain returned an error.
type ErrorHandler func(receiverID string, m *redis.Message, err error)

// Receiver subscribes to the channels named by its descriptor parameters.
// Each *redis.Message is decoded and run through the composed delegate; the
// *redis.Message is the raw event.
type Receiver struct {
	msgbus.ReceiverBase

	client   redis.UniversalClient
	decoder  transport.Decoder
	channels []string
	onError  ErrorHandler

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

var _ msgbus.Receiver = (*Receiver)(nil)

// NewReceiver creates a receiver for activation. Every descriptor parameter
// must be a channel name.
func NewReceiver(
	activation msgbus.ReceiverActivation,
	client redis.UniversalClient,
	decoder transport.Decoder,
	onError ErrorHandler,
) (*Receiver, error) {
	params := activation.Descriptor.Parameters()
	if len(params) == 0 {
		return nil, bserrors.Configuration("parameters",
			"receiver %s needs at least one channel", activation.Descriptor.ID)
	}
	channels := make([]string, 0, len(params))
	for i, p := range params {
		ch, ok := p.(string)
		if !ok || ch == "" {
			return nil, bserrors.Configuration("parameters",
				"receiver %s parameter %d must be a channel name, got %T", activation.Descriptor.ID, i, p)
		}
		channels = append(channels, ch)
	}
	if decoder == nil {
		return nil, bserrors.Configuration("decoder", "must not be nil")
	}

	return &Receiver{
		ReceiverBase: msgbus.NewReceiverBase(activation),
		client:       client,
		decoder:      decoder,
		channels:     channels,
		onError:      onError,
	}, nil
}

// Channels returns the subscribed channel names.
func (r *Receiver) Channels() []string {
	return append([]string(nil), r.channels...)
}

// Start subscribes and waits for the subscription to be confirmed.
// Messages are then processed on a background goroutine until ctx is done
// or Close is called.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubsub != nil {
		return fmt.Errorf("redis receiver %s already started", r.ReceiverID())
	}

	pubsub := r.client.Subscribe(ctx, r.channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe receiver %s: %w", r.ReceiverID(), err)
	}

	r.pubsub = pubsub
	r.done = make(chan struct{})
	go r.run(ctx, pubsub.Channel(), r.done)
	return nil
}

func (r *Receiver) run(ctx context.Context, ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, m)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Receiver) handle(ctx context.Context, m *redis.Message) {
	msg, err := r.decoder.Decode([]byte(m.Payload))
	if err != nil {
		r.reportError(m, fmt.Errorf("decode: %w", err))
		return
	}
	if err := r.ProcessTransmission(ctx, msg, m); err != nil {
		r.reportError(m, err)
	}
}

func (r *Receiver) reportError(m *redis.Message, err error) {
	if r.onError != nil {
		r.onError(r.ReceiverID(), m, err)
		return
	}
	r.Logger().Error("redis delivery failed",
		slog.String("receiver_id", r.ReceiverID()),
		slog.String("channel", m.Channel),
		slog.String("error", err.Error()),
	)
}

// Close unsubscribes and waits for the processing goroutine to exit.
func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubsub == nil {
		return nil
	}
	err := r.pubsub.Close()
	<-r.done
	r.pubsub = nil
	return err
}

// Option configures Register.
type Option func(*options)

type options struct {
	defaultChannel string
	retry          *bserrors.RetryConfig
	onError        ErrorHandler
}

// WithDefaultChannel sets the channel transmitters use when a broadcast
// names none.
func WithDefaultChannel(channel string) Option {
	return func(o *options) {
		o.defaultChannel = channel
	}
}

// WithRetry overrides the publish retry policy.
func WithRetry(cfg bserrors.RetryConfig) Option {
	return func(o *options) {
		o.retry = &cfg
	}
}

// WithErrorHandler sets the hook receivers call when a message fails.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// Register adds the redis transmitter and receiver types to container.
func Register(container *msgbus.Container, client redis.UniversalClient, codec *transport.Codec, opts ...Option) error {
	if client == nil {
		return bserrors.Configuration("client", "must not be nil")
	}
	if codec == nil {
		return bserrors.Configuration("codec", "must not be nil")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	err := container.RegisterTransmitter(TransmitterType, func() (msgbus.Transmitter, error) {
		t := NewTransmitter(client, codec, o.defaultChannel)
		if o.retry != nil {
			t.retry = *o.retry
		}
		return t, nil
	})
	if err != nil {
		return err
	}

	return container.RegisterReceiver(ReceiverType, func(a msgbus.ReceiverActivation) (msgbus.Receiver, error) {
		return NewReceiver(a, client, codec, o.onError)
	})
}
