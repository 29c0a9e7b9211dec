package msgbus

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Message is the minimal contract for anything the bus carries.
// Payload shape is entirely caller-defined.
type Message interface {
	MessageID() string
}

// BaseMessage is a generic Message implementation carrying a typed payload.
type BaseMessage[T any] struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   T         `json:"payload"`
}

// MessageID returns the message identifier, or "" for a nil message.
func (m *BaseMessage[T]) MessageID() string {
	if m == nil {
		return ""
	}
	return m.ID
}

// isNilMessage reports whether msg is nil or holds a nil pointer, map,
// slice, func or channel.
func isNilMessage(msg Message) bool {
	if msg == nil {
		return true
	}
	switch v := reflect.ValueOf(msg); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// MessageOption configures message creation.
type MessageOption func(*messageConfig)

type messageConfig struct {
	id        string
	timestamp time.Time
}

// WithMessageID sets a specific message ID (default: auto-generated UUID).
func WithMessageID(id string) MessageOption {
	return func(cfg *messageConfig) {
		cfg.id = id
	}
}

// WithMessageTimestamp sets a specific timestamp (default: time.Now()).
func WithMessageTimestamp(t time.Time) MessageOption {
	return func(cfg *messageConfig) {
		cfg.timestamp = t
	}
}

// NewMessage wraps payload in a BaseMessage with a fresh ID and timestamp.
func NewMessage[T any](payload T, opts ...MessageOption) *BaseMessage[T] {
	cfg := &messageConfig{
		id:        uuid.New().String(),
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &BaseMessage[T]{
		ID:        cfg.id,
		Timestamp: cfg.timestamp,
		Payload:   payload,
	}
}
