package msgbus

import (
	"slices"
	"strings"

	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
	"github.com/randalmurphal/msgbus/pkg/msgbus/registry"
)

// TransmitterDescriptor identifies a registered transmitter by a caller-chosen
// id and the type key the resolver uses to construct it.
type TransmitterDescriptor struct {
	ID   string
	Type string
}

// ReceiverDescriptor identifies a receiver within a group: its id, the type
// key to activate, and the constructor parameters handed to the factory.
type ReceiverDescriptor struct {
	ID         string
	Type       string
	parameters []any
}

// NewReceiverDescriptor creates a descriptor. parameters is copied.
func NewReceiverDescriptor(id, receiverType string, parameters []any) ReceiverDescriptor {
	return ReceiverDescriptor{
		ID:         id,
		Type:       receiverType,
		parameters: slices.Clone(parameters),
	}
}

// Parameters returns a copy of the constructor parameters.
func (d ReceiverDescriptor) Parameters() []any {
	return slices.Clone(d.parameters)
}

// Parameter returns the parameter at index i, or nil when out of range.
func (d ReceiverDescriptor) Parameter(i int) any {
	if i < 0 || i >= len(d.parameters) {
		return nil
	}
	return d.parameters[i]
}

// TransmitterRegistry holds transmitter descriptors in registration order.
//
// Registration happens while composing the process, before any broadcast.
// The registry is read-only afterwards; broadcasts read it without locking
// beyond what the underlying registry already does.
type TransmitterRegistry struct {
	descriptors *registry.Registry[string, TransmitterDescriptor]
}

// NewTransmitterRegistry creates an empty registry.
func NewTransmitterRegistry() *TransmitterRegistry {
	return &TransmitterRegistry{
		descriptors: registry.New[string, TransmitterDescriptor](),
	}
}

// Register adds a transmitter descriptor. Ids must be non-blank and unique.
func (r *TransmitterRegistry) Register(id, transmitterType string) error {
	if strings.TrimSpace(id) == "" {
		return bserrors.Configuration("transmitterId", "must not be empty")
	}
	if strings.TrimSpace(transmitterType) == "" {
		return bserrors.Configuration("transmitterType", "must not be empty for transmitter %s", id)
	}

	err := r.descriptors.Add(id, TransmitterDescriptor{ID: id, Type: transmitterType})
	if err != nil {
		return bserrors.Configuration("transmitterId",
			"transmitter id %s has already been registered", id)
	}
	return nil
}

// MustRegister is like Register but panics on error.
// Intended for composition roots where a bad registration is fatal anyway.
func (r *TransmitterRegistry) MustRegister(id, transmitterType string) *TransmitterRegistry {
	if err := r.Register(id, transmitterType); err != nil {
		panic("msgbus: " + err.Error())
	}
	return r
}

// Descriptors returns all descriptors in registration order.
func (r *TransmitterRegistry) Descriptors() []TransmitterDescriptor {
	return r.descriptors.Values()
}

// Get returns the descriptor for id.
func (r *TransmitterRegistry) Get(id string) (TransmitterDescriptor, bool) {
	return r.descriptors.Get(id)
}

// Len returns the number of registered transmitters.
func (r *TransmitterRegistry) Len() int {
	return r.descriptors.Len()
}
