package msgbus

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
	"github.com/randalmurphal/msgbus/pkg/msgbus/registry"
)

// Resolver constructs transmitters and receivers from their registered type
// keys and hands out per-event scopes.
type Resolver interface {
	// ResolveTransmitter returns a transmitter instance for the type key.
	ResolveTransmitter(transmitterType string) (Transmitter, error)

	// ActivateReceiver constructs the receiver named by activation.Descriptor.Type.
	ActivateReceiver(activation ReceiverActivation) (Receiver, error)

	// ReceiverTypeExtends reports whether receiverType is base or a declared
	// narrower variant of it.
	ReceiverTypeExtends(receiverType, base string) bool

	// NewScope opens a scope for one processed event.
	NewScope() Scope
}

// Scope resolves per-event services. Scoped services are created at most once
// per scope; Close releases everything the scope created.
type Scope interface {
	Resolve(name string) (any, error)
	Close() error
}

// TransmitterFactory constructs a transmitter.
type TransmitterFactory func() (Transmitter, error)

// ReceiverFactory constructs a receiver from its activation.
type ReceiverFactory func(activation ReceiverActivation) (Receiver, error)

// ServiceFactory constructs a service. Scoped factories receive the scope
// they are created in so they can resolve their own dependencies.
type ServiceFactory func(scope Scope) (any, error)

// ReceiverTypeOption configures a receiver type registration.
type ReceiverTypeOption func(*receiverType)

// ExtendsReceiver declares the registered type as a narrower variant of base.
// base must already be registered.
func ExtendsReceiver(base string) ReceiverTypeOption {
	return func(rt *receiverType) {
		rt.extends = base
	}
}

type receiverType struct {
	factory ReceiverFactory
	extends string
}

type serviceLifetime int

const (
	lifetimeScoped serviceLifetime = iota
	lifetimeSingleton
)

type service struct {
	factory  ServiceFactory
	lifetime serviceLifetime

	mu      sync.Mutex
	created bool
	value   any
}

// Container is the default Resolver: an explicit registry of typed factories.
//
// Register everything while composing the process. Lookups are safe for
// concurrent use.
type Container struct {
	transmitters *registry.Registry[string, TransmitterFactory]
	receivers    *registry.Registry[string, *receiverType]
	services     *registry.Registry[string, *service]
}

var _ Resolver = (*Container)(nil)

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{
		transmitters: registry.New[string, TransmitterFactory](),
		receivers:    registry.New[string, *receiverType](),
		services:     registry.New[string, *service](),
	}
}

// RegisterTransmitter registers a transmitter factory under transmitterType.
func (c *Container) RegisterTransmitter(transmitterType string, factory TransmitterFactory) error {
	if err := validateRegistration("transmitterType", transmitterType, factory == nil); err != nil {
		return err
	}
	if err := c.transmitters.Add(transmitterType, factory); err != nil {
		return bserrors.Configuration("transmitterType",
			"transmitter type %s is already registered", transmitterType)
	}
	return nil
}

// RegisterReceiver registers a receiver factory under receiverTypeKey.
func (c *Container) RegisterReceiver(receiverTypeKey string, factory ReceiverFactory, opts ...ReceiverTypeOption) error {
	if err := validateRegistration("receiverType", receiverTypeKey, factory == nil); err != nil {
		return err
	}

	rt := &receiverType{factory: factory}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.extends != "" {
		if rt.extends == receiverTypeKey {
			return bserrors.Configuration("receiverType",
				"receiver type %s cannot extend itself", receiverTypeKey)
		}
		if !c.receivers.Has(rt.extends) {
			return bserrors.Configuration("receiverType",
				"receiver type %s extends unregistered type %s", receiverTypeKey, rt.extends)
		}
	}

	if err := c.receivers.Add(receiverTypeKey, rt); err != nil {
		return bserrors.Configuration("receiverType",
			"receiver type %s is already registered", receiverTypeKey)
	}
	return nil
}

// RegisterScoped registers a service created once per scope.
func (c *Container) RegisterScoped(name string, factory ServiceFactory) error {
	return c.registerService(name, factory, lifetimeScoped)
}

// RegisterSingleton registers a service created once per container, on first use.
// The factory sees the scope that first asked for it and must not keep it.
func (c *Container) RegisterSingleton(name string, factory ServiceFactory) error {
	return c.registerService(name, factory, lifetimeSingleton)
}

func (c *Container) registerService(name string, factory ServiceFactory, lifetime serviceLifetime) error {
	if err := validateRegistration("serviceName", name, factory == nil); err != nil {
		return err
	}
	if err := c.services.Add(name, &service{factory: factory, lifetime: lifetime}); err != nil {
		return bserrors.Configuration("serviceName", "service %s is already registered", name)
	}
	return nil
}

func validateRegistration(field, key string, nilFactory bool) error {
	if strings.TrimSpace(key) == "" {
		return bserrors.Configuration(field, "must not be empty")
	}
	if nilFactory {
		return bserrors.Configuration(field, "factory for %s must not be nil", key)
	}
	return nil
}

// ResolveTransmitter implements Resolver.
func (c *Container) ResolveTransmitter(transmitterType string) (Transmitter, error) {
	factory, ok := c.transmitters.Get(transmitterType)
	if !ok {
		return nil, &bserrors.ResolutionError{Kind: "transmitter", Type: transmitterType}
	}
	t, err := factory()
	if err != nil {
		return nil, &bserrors.ResolutionError{Kind: "transmitter", Type: transmitterType, Err: err}
	}
	if t == nil {
		return nil, &bserrors.ResolutionError{
			Kind: "transmitter", Type: transmitterType,
			Err: errors.New("factory returned nil"),
		}
	}
	return t, nil
}

// ActivateReceiver implements Resolver.
func (c *Container) ActivateReceiver(activation ReceiverActivation) (Receiver, error) {
	typ := activation.Descriptor.Type
	rt, ok := c.receivers.Get(typ)
	if !ok {
		return nil, &bserrors.ResolutionError{Kind: "receiver", Type: typ}
	}
	if activation.Resolver == nil {
		activation.Resolver = c
	}
	r, err := rt.factory(activation)
	if err != nil {
		return nil, &bserrors.ResolutionError{Kind: "receiver", Type: typ, Err: err}
	}
	if r == nil {
		return nil, &bserrors.ResolutionError{
			Kind: "receiver", Type: typ,
			Err: errors.New("factory returned nil"),
		}
	}
	return r, nil
}

// ReceiverTypeExtends implements Resolver. It follows the ExtendsReceiver
// chain, so a variant of a variant extends the root.
func (c *Container) ReceiverTypeExtends(receiverTypeKey, base string) bool {
	seen := make(map[string]struct{})
	for current := receiverTypeKey; current != ""; {
		if current == base {
			return c.receivers.Has(base)
		}
		if _, loop := seen[current]; loop {
			return false
		}
		seen[current] = struct{}{}

		rt, ok := c.receivers.Get(current)
		if !ok {
			return false
		}
		current = rt.extends
	}
	return false
}

// NewScope implements Resolver.
func (c *Container) NewScope() Scope {
	return &containerScope{
		container: c,
		values:    make(map[string]any),
	}
}

// singleton creates s on first successful use. A failed factory call is not
// remembered; the next Resolve tries again.
func (c *Container) singleton(s *service, scope Scope) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.created {
		return s.value, nil
	}
	v, err := s.factory(scope)
	if err != nil {
		return nil, err
	}
	s.value = v
	s.created = true
	return v, nil
}

// containerScope tracks scoped instances for a single event.
type containerScope struct {
	container *Container

	mu        sync.Mutex
	values    map[string]any
	created   []any
	resolving map[string]struct{}
	closed    bool
}

// Resolve returns the named service, creating it if needed.
func (s *containerScope) Resolve(name string) (any, error) {
	svc, ok := s.container.services.Get(name)
	if !ok {
		return nil, &bserrors.ResolutionError{Kind: "service", Type: name}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrScopeClosed
	}
	s.mu.Unlock()

	if svc.lifetime == lifetimeSingleton {
		v, err := s.container.singleton(svc, s)
		if err != nil {
			return nil, &bserrors.ResolutionError{Kind: "service", Type: name, Err: err}
		}
		return v, nil
	}

	s.mu.Lock()
	if v, ok := s.values[name]; ok {
		s.mu.Unlock()
		return v, nil
	}
	if _, cycle := s.resolving[name]; cycle {
		s.mu.Unlock()
		return nil, &bserrors.ResolutionError{
			Kind: "service", Type: name,
			Err: errors.New("dependency cycle"),
		}
	}
	if s.resolving == nil {
		s.resolving = make(map[string]struct{})
	}
	s.resolving[name] = struct{}{}
	s.mu.Unlock()

	// Factory runs unlocked so it can resolve its own dependencies.
	v, err := svc.factory(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resolving, name)
	if err != nil {
		return nil, &bserrors.ResolutionError{Kind: "service", Type: name, Err: err}
	}
	if s.closed {
		closeValue(v)
		return nil, ErrScopeClosed
	}
	s.values[name] = v
	s.created = append(s.created, v)
	return v, nil
}

// Close releases scoped instances in reverse creation order. Safe to call
// more than once.
func (s *containerScope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	created := s.created
	s.created = nil
	s.values = nil
	s.mu.Unlock()

	var errs []error
	for i := len(created) - 1; i >= 0; i-- {
		if err := closeValue(created[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeValue(v any) error {
	closer, ok := v.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("close %T: %w", v, err)
	}
	return nil
}

// ResolveAs resolves name from scope and asserts it to T.
func ResolveAs[T any](scope Scope, name string) (T, error) {
	var zero T
	v, err := scope.Resolve(name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &bserrors.ResolutionError{
			Kind: "service", Type: name,
			Err: fmt.Errorf("resolved %T, want %T", v, zero),
		}
	}
	return typed, nil
}
