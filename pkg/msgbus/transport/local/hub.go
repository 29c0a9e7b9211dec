package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/msgbus/pkg/msgbus"
	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
)

// ErrHubClosed indicates the hub was closed.
var ErrHubClosed = errors.New("local hub is closed")

// Delivery is what a subscriber receives for each published message. It is
// the raw event handed to receivers.
type Delivery struct {
	Topic          string
	Message        msgbus.Message
	PublishedAt    time.Time
	SubscriptionID string
}

// DeliveryHandler processes one delivery.
type DeliveryHandler func(ctx context.Context, d Delivery) error

// HubConfig configures hub behavior.
type HubConfig struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// NonBlocking makes Publish drop deliveries to full subscriptions
	// instead of waiting.
	// Default: false (blocking)
	NonBlocking bool

	// OnDrop is called when a delivery is dropped (non-blocking mode).
	OnDrop func(d Delivery)

	// OnError is called when a handler returns an error and the
	// subscription has no handler-specific error hook.
	OnError func(d Delivery, err error)
}

// DefaultHubConfig provides reasonable defaults.
var DefaultHubConfig = HubConfig{
	BufferSize: 256,
}

// Hub is an in-process pub/sub fan-out keyed by topic. Every subscription
// has its own buffered channel and goroutine.
type Hub struct {
	config HubConfig

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	byTopic       map[string]map[string]*Subscription

	wg      sync.WaitGroup
	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
}

// NewHub creates a hub.
func NewHub(config HubConfig) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultHubConfig.BufferSize
	}
	return &Hub{
		config:        config,
		subscriptions: make(map[string]*Subscription),
		byTopic:       make(map[string]map[string]*Subscription),
		closeCh:       make(chan struct{}),
	}
}

// Subscription is an active subscription to one or more topics.
type Subscription struct {
	id      string
	topics  []string
	handler DeliveryHandler
	onError func(d Delivery, err error)
	queue   chan Delivery
	done    chan struct{}
	exited  chan struct{}
	once    sync.Once
	hub     *Hub
}

// ID returns the subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// Done is closed once the subscription goroutine has returned, after any
// in-flight handler call.
func (s *Subscription) Done() <-chan struct{} {
	return s.exited
}

// Publish delivers msg to every subscription on topic.
//
// In blocking mode Publish waits for buffer space. If ctx's deadline passes
// first it returns a *TimeoutError wrapping context.DeadlineExceeded; on
// cancellation it returns ctx.Err().
func (h *Hub) Publish(ctx context.Context, topic string, msg msgbus.Message) error {
	if h.closed.Load() {
		return ErrHubClosed
	}

	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.byTopic[topic]))
	for _, sub := range h.byTopic[topic] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	now := time.Now()
	for _, sub := range subs {
		d := Delivery{Topic: topic, Message: msg, PublishedAt: now, SubscriptionID: sub.id}

		if h.config.NonBlocking {
			select {
			case sub.queue <- d:
			default:
				if h.config.OnDrop != nil {
					h.config.OnDrop(d)
				}
			}
			continue
		}

		select {
		case sub.queue <- d:
		case <-sub.done:
			// Unsubscribed while publishing; skip it.
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &bserrors.TimeoutError{
					Operation: "publish to " + topic,
					Duration:  time.Since(now),
					Err:       ctx.Err(),
				}
			}
			return ctx.Err()
		case <-h.closeCh:
			return ErrHubClosed
		}
	}
	return nil
}

// Subscribe starts delivering messages published on topics to handler.
// The subscription ends on Unsubscribe, hub Close, or when ctx is done.
// onError, if non-nil, receives handler errors for this subscription.
func (h *Hub) Subscribe(
	ctx context.Context,
	topics []string,
	handler DeliveryHandler,
	onError func(d Delivery, err error),
) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, errors.New("local: at least one topic is required")
	}
	if handler == nil {
		return nil, errors.New("local: handler cannot be nil")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Checked under the lock so Close cannot miss this subscription.
	if h.closed.Load() {
		return nil, ErrHubClosed
	}

	sub := &Subscription{
		id:      fmt.Sprintf("sub-%d", h.nextID.Add(1)),
		topics:  append([]string(nil), topics...),
		handler: handler,
		onError: onError,
		queue:   make(chan Delivery, h.config.BufferSize),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		hub:     h,
	}

	h.subscriptions[sub.id] = sub
	for _, t := range sub.topics {
		if h.byTopic[t] == nil {
			h.byTopic[t] = make(map[string]*Subscription)
		}
		h.byTopic[t][sub.id] = sub
	}

	h.wg.Add(1)
	go sub.process(ctx)

	return sub, nil
}

// SubscriberCount returns the number of subscriptions on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[topic])
}

// Close stops every subscription and waits for in-flight handlers.
func (h *Hub) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(h.closeCh)

	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	h.wg.Wait()
	return nil
}

func (s *Subscription) process(ctx context.Context) {
	defer s.hub.wg.Done()
	defer close(s.exited)
	defer s.Unsubscribe()

	for {
		select {
		case d := <-s.queue:
			if err := s.handler(ctx, d); err != nil {
				s.reportError(d, err)
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscription) reportError(d Delivery, err error) {
	switch {
	case s.onError != nil:
		s.onError(d, err)
	case s.hub.config.OnError != nil:
		s.hub.config.OnError(d, err)
	}
}

// Unsubscribe removes the subscription. Pending deliveries are discarded.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subscriptions, s.id)
		for _, t := range s.topics {
			if topicSubs, ok := s.hub.byTopic[t]; ok {
				delete(topicSubs, s.id)
				if len(topicSubs) == 0 {
					delete(s.hub.byTopic, t)
				}
			}
		}
		s.hub.mu.Unlock()

		close(s.done)
	})
}
