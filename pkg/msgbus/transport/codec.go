// Package transport holds what the out-of-process transports share: the wire
// Envelope and the Codec that maps message types to names and back.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/msgbus/pkg/msgbus"
)

// ErrUnknownType is returned when decoding an envelope whose type was never
// registered, or encoding a message whose Go type was never registered.
var ErrUnknownType = errors.New("unknown message type")

// Envelope is the JSON wire form of a message.
type Envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// MessageFactory returns a new zero message to unmarshal a payload into.
type MessageFactory func() msgbus.Message

// Decoder turns wire bytes back into a message.
type Decoder interface {
	Decode(data []byte) (msgbus.Message, error)
}

// Codec maps type names to message factories. Safe for concurrent use.
type Codec struct {
	mu        sync.RWMutex
	factories map[string]MessageFactory
	names     map[reflect.Type]string
}

var _ Decoder = (*Codec)(nil)

// NewCodec creates an empty codec.
func NewCodec() *Codec {
	return &Codec{
		factories: make(map[string]MessageFactory),
		names:     make(map[reflect.Type]string),
	}
}

// Register maps name to the Go type factory produces. Names and Go types
// may each be registered once.
func (c *Codec) Register(name string, factory MessageFactory) error {
	if name == "" {
		return fmt.Errorf("message type name is required")
	}
	if factory == nil {
		return fmt.Errorf("factory for %s cannot be nil", name)
	}
	sample := factory()
	if sample == nil {
		return fmt.Errorf("factory for %s returned nil", name)
	}
	typ := reflect.TypeOf(sample)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.factories[name]; ok {
		return fmt.Errorf("message type %s already registered", name)
	}
	if existing, ok := c.names[typ]; ok {
		return fmt.Errorf("go type %s already registered as %s", typ, existing)
	}
	c.factories[name] = factory
	c.names[typ] = name
	return nil
}

// RegisterType registers M under name. M is normally a pointer type such as
// *msgbus.BaseMessage[Order]; value types decode to values.
func RegisterType[M msgbus.Message](c *Codec, name string) error {
	typ := reflect.TypeOf((*M)(nil)).Elem()
	return c.Register(name, func() msgbus.Message {
		if typ.Kind() == reflect.Pointer {
			return reflect.New(typ.Elem()).Interface().(msgbus.Message)
		}
		return reflect.New(typ).Elem().Interface().(msgbus.Message)
	})
}

// TypeName returns the registered name for msg's Go type.
func (c *Codec) TypeName(msg msgbus.Message) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[reflect.TypeOf(msg)]
	return name, ok
}

// Types returns registered names, sorted.
func (c *Codec) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Envelope wraps msg for the wire.
func (c *Codec) Envelope(msg msgbus.Message) (Envelope, error) {
	if msg == nil {
		return Envelope{}, msgbus.ErrNilMessage
	}
	name, ok := c.TypeName(msg)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", name, err)
	}
	return Envelope{
		ID:      msg.MessageID(),
		Type:    name,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	}, nil
}

// Encode returns the JSON envelope bytes for msg.
func (c *Codec) Encode(msg msgbus.Message) ([]byte, error) {
	env, err := c.Envelope(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses envelope bytes.
func (c *Codec) Decode(data []byte) (msgbus.Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return c.Open(env)
}

// Open decodes the message carried by env.
func (c *Codec) Open(env Envelope) (msgbus.Message, error) {
	c.mu.RLock()
	factory, ok := c.factories[env.Type]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	msg := factory()
	if v := reflect.ValueOf(msg); v.Kind() != reflect.Pointer {
		// Value types are decoded through a pointer and copied out.
		ptr := reflect.New(v.Type())
		if err := json.Unmarshal(env.Payload, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
		}
		return ptr.Elem().Interface().(msgbus.Message), nil
	}
	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return msg, nil
}
