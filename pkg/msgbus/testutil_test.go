package msgbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/msgbus/pkg/msgbus/config"
)

// Test message and receiver types used across tests

type orderPayload struct {
	OrderID string
}

type otherPayload struct {
	Value int
}

func newOrder(id string) *BaseMessage[orderPayload] {
	return NewMessage(orderPayload{OrderID: id}, WithMessageID("msg-"+id))
}

const (
	baseReceiverType   = "test.receiver"
	narrowReceiverType = "test.receiver.narrow"
	otherReceiverType  = "test.other"
)

// stubReceiver records its activation and lets tests push events through
// the composed delegate.
type stubReceiver struct {
	ReceiverBase
	descriptor ReceiverDescriptor
}

func (r *stubReceiver) Start(context.Context) error { return nil }
func (r *stubReceiver) Close() error                { return nil }

func (r *stubReceiver) deliver(msg Message) error {
	return r.ProcessTransmission(context.Background(), msg, "raw-event")
}

func stubReceiverFactory(a ReceiverActivation) (Receiver, error) {
	return &stubReceiver{ReceiverBase: NewReceiverBase(a), descriptor: a.Descriptor}, nil
}

// newTestContainer registers the stub receiver types.
func newTestContainer(t *testing.T) *Container {
	t.Helper()
	c := NewContainer()
	require.NoError(t, c.RegisterReceiver(baseReceiverType, stubReceiverFactory))
	require.NoError(t, c.RegisterReceiver(narrowReceiverType, stubReceiverFactory, ExtendsReceiver(baseReceiverType)))
	require.NoError(t, c.RegisterReceiver(otherReceiverType, stubReceiverFactory))
	return c
}

// transmitLog records transmitter invocations in order.
type transmitLog struct {
	mu    sync.Mutex
	calls []string
	opts  []config.Config
}

func (l *transmitLog) record(id string, opts config.Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, id)
	l.opts = append(l.opts, opts)
}

func (l *transmitLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// registerTransmitter registers a transmitter type that records its call
// and returns err.
func registerTransmitter(t *testing.T, c *Container, typ string, log *transmitLog, err error) {
	t.Helper()
	require.NoError(t, c.RegisterTransmitter(typ, func() (Transmitter, error) {
		return TransmitterFunc(func(_ context.Context, _ Message, opts config.Config) error {
			log.record(typ, opts)
			return err
		}), nil
	}))
}

// countingResolver counts resolver calls.
type countingResolver struct {
	Resolver
	transmitterCalls atomic.Int32
}

func (r *countingResolver) ResolveTransmitter(typ string) (Transmitter, error) {
	r.transmitterCalls.Add(1)
	return r.Resolver.ResolveTransmitter(typ)
}

// callTrace records middleware entry and exit.
type callTrace struct {
	mu     sync.Mutex
	events []string
}

func (tr *callTrace) add(event string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, event)
}

func (tr *callTrace) Events() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

func (tr *callTrace) middleware(name string) Middleware {
	return func(next TransmissionDelegate) TransmissionDelegate {
		return func(tc TransmissionContext) error {
			tr.add(name + "-in")
			err := next(tc)
			tr.add(name + "-out")
			return err
		}
	}
}

func (tr *callTrace) terminal() TransmissionDelegate {
	return func(TransmissionContext) error {
		tr.add("terminal")
		return nil
	}
}

// trackedCloser is a scoped service that records Close.
type trackedCloser struct {
	name   string
	closed atomic.Bool
	order  *callTrace
	err    error
}

func (c *trackedCloser) Close() error {
	c.closed.Store(true)
	if c.order != nil {
		c.order.add(c.name)
	}
	return c.err
}
