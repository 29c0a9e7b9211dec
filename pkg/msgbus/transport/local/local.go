package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randalmurphal/msgbus/pkg/msgbus"
	"github.com/randalmurphal/msgbus/pkg/msgbus/config"
	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
)

// Type keys registered by Register.
const (
	TransmitterType = "local.transmitter"
	ReceiverType    = "local.receiver"
)

// TopicOption is the transmission option naming the destination topic.
const TopicOption = "topic"

// Transmitter publishes messages to a Hub topic.
type Transmitter struct {
	hub          *Hub
	defaultTopic string
}

var _ msgbus.Transmitter = (*Transmitter)(nil)

// NewTransmitter creates a transmitter. defaultTopic is used when the
// broadcast's transmission options carry no "topic".
func NewTransmitter(hub *Hub, defaultTopic string) *Transmitter {
	return &Transmitter{hub: hub, defaultTopic: defaultTopic}
}

// Transmit publishes msg.
func (t *Transmitter) Transmit(ctx context.Context, msg msgbus.Message, opts config.Config) error {
	topic := opts.String(TopicOption, t.defaultTopic)
	if topic == "" {
		return bserrors.Configuration(TopicOption, "no topic in transmission options and no default topic")
	}
	if err := t.hub.Publish(ctx, topic, msg); err != nil {
		return &bserrors.TransmissionError{Transport: "local", Destination: topic, Err: err}
	}
	return nil
}

// ErrorHandler receives deliveries whose chain returned an error.
type ErrorHandler func(receiverID string, d Delivery, err error)

// Receiver subscribes to Hub topics and runs each delivery through its
// composed delegate. Topics come from the descriptor parameters.
type Receiver struct {
	msgbus.ReceiverBase

	hub     *Hub
	topics  []string
	onError ErrorHandler

	mu  sync.Mutex
	sub *Subscription
}

var _ msgbus.Receiver = (*Receiver)(nil)

// NewReceiver creates a receiver for activation. Every descriptor
// parameter must be a topic name.
func NewReceiver(activation msgbus.ReceiverActivation, hub *Hub, onError ErrorHandler) (*Receiver, error) {
	params := activation.Descriptor.Parameters()
	if len(params) == 0 {
		return nil, bserrors.Configuration("parameters",
			"receiver %s needs at least one topic", activation.Descriptor.ID)
	}
	topics := make([]string, 0, len(params))
	for i, p := range params {
		topic, ok := p.(string)
		if !ok || topic == "" {
			return nil, bserrors.Configuration("parameters",
				"receiver %s parameter %d must be a topic name, got %T", activation.Descriptor.ID, i, p)
		}
		topics = append(topics, topic)
	}

	return &Receiver{
		ReceiverBase: msgbus.NewReceiverBase(activation),
		hub:          hub,
		topics:       topics,
		onError:      onError,
	}, nil
}

// Topics returns the subscribed topic names.
func (r *Receiver) Topics() []string {
	return append([]string(nil), r.topics...)
}

// Start subscribes to the receiver's topics. Deliveries are processed on
// the subscription goroutine until ctx is done or Close is called.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		return fmt.Errorf("local receiver %s already started", r.ReceiverID())
	}

	sub, err := r.hub.Subscribe(ctx, r.topics, r.handle, r.reportError)
	if err != nil {
		return fmt.Errorf("subscribe receiver %s: %w", r.ReceiverID(), err)
	}
	r.sub = sub
	return nil
}

func (r *Receiver) handle(ctx context.Context, d Delivery) error {
	return r.ProcessTransmission(ctx, d.Message, d)
}

func (r *Receiver) reportError(d Delivery, err error) {
	if r.onError != nil {
		r.onError(r.ReceiverID(), d, err)
		return
	}
	r.Logger().Error("local delivery failed",
		slog.String("receiver_id", r.ReceiverID()),
		slog.String("topic", d.Topic),
		slog.String("error", err.Error()),
	)
}

// Close unsubscribes and waits for an in-flight delivery to finish. Safe to
// call before Start and more than once.
func (r *Receiver) Close() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		<-sub.Done()
	}
	return nil
}

// Option configures Register.
type Option func(*options)

type options struct {
	defaultTopic string
	onError      ErrorHandler
}

// WithDefaultTopic sets the topic transmitters use when a broadcast names none.
func WithDefaultTopic(topic string) Option {
	return func(o *options) {
		o.defaultTopic = topic
	}
}

// WithErrorHandler sets the hook receivers call when a delivery fails.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// Register adds the local transmitter and receiver types to container.
func Register(container *msgbus.Container, hub *Hub, opts ...Option) error {
	if hub == nil {
		return bserrors.Configuration("hub", "must not be nil")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	err := container.RegisterTransmitter(TransmitterType, func() (msgbus.Transmitter, error) {
		return NewTransmitter(hub, o.defaultTopic), nil
	})
	if err != nil {
		return err
	}

	return container.RegisterReceiver(ReceiverType, func(a msgbus.ReceiverActivation) (msgbus.Receiver, error) {
		return NewReceiver(a, hub, o.onError)
	})
}
