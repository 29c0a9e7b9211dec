package msgbus

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	bserrors "github.com/randalmurphal/msgbus/pkg/msgbus/errors"
	"github.com/randalmurphal/msgbus/pkg/msgbus/registry"
)

// ReceiverConfigurator customizes a receiver builder, usually by adding
// middleware or setting the terminal handler.
type ReceiverConfigurator func(b ReceiverBuilder)

// BusOptions holds process-wide receiver settings shared by every group.
type BusOptions struct {
	// GlobalReceiverConfigurators run on every receiver of every group,
	// after the group's own configurators.
	GlobalReceiverConfigurators []ReceiverConfigurator

	// Logger is handed to every activated receiver. Defaults to slog.Default().
	Logger *slog.Logger
}

type groupEntry struct {
	builder    ReceiverBuilder
	configured bool
}

// ReceiverGroupBuilder collects receivers that share a base receiver type
// and a set of group-level configurators.
//
// Middleware ordering for each receiver, outermost first: the receiver's own
// configure callback, then group configurators in the order added, then
// global configurators, then the terminal handler.
type ReceiverGroupBuilder struct {
	resolver Resolver
	baseType string
	global   []ReceiverConfigurator
	logger   *slog.Logger

	mu            sync.Mutex
	configurators []ReceiverConfigurator
	entries       *registry.Registry[string, *groupEntry]
	built         bool
}

// NewReceiverGroupBuilder creates a group whose receivers must be baseType
// or a type extending it.
// Panics if resolver is nil or baseType is empty.
func NewReceiverGroupBuilder(resolver Resolver, baseType string, bus BusOptions) *ReceiverGroupBuilder {
	if resolver == nil {
		panic("msgbus: resolver cannot be nil")
	}
	if strings.TrimSpace(baseType) == "" {
		panic("msgbus: base receiver type cannot be empty")
	}
	for _, c := range bus.GlobalReceiverConfigurators {
		if c == nil {
			panic("msgbus: global receiver configurator cannot be nil")
		}
	}
	logger := bus.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiverGroupBuilder{
		resolver: resolver,
		baseType: baseType,
		global:   slices.Clone(bus.GlobalReceiverConfigurators),
		logger:   logger,
		entries:  registry.New[string, *groupEntry](),
	}
}

// BaseType returns the group's base receiver type.
func (g *ReceiverGroupBuilder) BaseType() string {
	return g.baseType
}

// AddConfigurator appends a group-level configurator. Configurators must be
// added before the first BuildReceivers call.
func (g *ReceiverGroupBuilder) AddConfigurator(c ReceiverConfigurator) error {
	if c == nil {
		return bserrors.Configuration("configurator", "must not be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.built {
		return bserrors.Configuration("configurator",
			"cannot add configurator after receivers of group %s were built", g.baseType)
	}
	g.configurators = append(g.configurators, c)
	return nil
}

// AddMessageReceiver adds a receiver of the group's base type.
func (g *ReceiverGroupBuilder) AddMessageReceiver(id string, parameters []any, configure ReceiverConfigurator) error {
	return g.AddMessageReceiverOfType(id, g.baseType, parameters, configure)
}

// AddMessageReceiverOfType adds a receiver of receiverTypeKey, which must be
// the group's base type or extend it. configure is applied immediately.
//
// Receiver ids are unique within the group; a duplicate is rejected and the
// first registration is kept.
func (g *ReceiverGroupBuilder) AddMessageReceiverOfType(
	id, receiverTypeKey string,
	parameters []any,
	configure ReceiverConfigurator,
) error {
	if strings.TrimSpace(id) == "" {
		return bserrors.Configuration("receiverId", "must not be empty")
	}
	if parameters == nil {
		return bserrors.Configuration("parameters", "must not be nil for receiver %s", id)
	}
	if configure == nil {
		return bserrors.Configuration("configure", "must not be nil for receiver %s", id)
	}
	if strings.TrimSpace(receiverTypeKey) == "" {
		return bserrors.Configuration("receiverType", "must not be empty for receiver %s", id)
	}
	if !g.resolver.ReceiverTypeExtends(receiverTypeKey, g.baseType) {
		return bserrors.Configuration("receiverType",
			"receiver type %s does not extend %s", receiverTypeKey, g.baseType)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.entries.Has(id) {
		return bserrors.Configuration("receiverId",
			"receiver id %s has already been registered (attempted type %s)", id, receiverTypeKey)
	}

	descriptor := NewReceiverDescriptor(id, receiverTypeKey, parameters)
	builder := NewReceiverBuilder(g.resolver, descriptor, WithReceiverLogger(g.logger))
	configure(builder)

	return g.entries.Add(id, &groupEntry{builder: builder})
}

// BuildReceivers activates every receiver in registration order.
//
// Group and global configurators are applied to each builder exactly once,
// on the first call that sees it. Later calls build fresh receivers from the
// already-configured builders.
func (g *ReceiverGroupBuilder) BuildReceivers() ([]Receiver, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.built = true

	entries := g.entries.Values()
	receivers := make([]Receiver, 0, len(entries))
	for _, entry := range entries {
		if !entry.configured {
			for _, c := range g.configurators {
				c(entry.builder)
			}
			for _, c := range g.global {
				c(entry.builder)
			}
			entry.configured = true
		}

		r, err := entry.builder.BuildReceiver()
		if err != nil {
			return nil, fmt.Errorf("build receiver %s: %w", entry.builder.Descriptor().ID, err)
		}
		receivers = append(receivers, r)
	}
	return receivers, nil
}

// ReceiverIDs returns the registered receiver ids in registration order.
func (g *ReceiverGroupBuilder) ReceiverIDs() []string {
	return g.entries.Keys()
}
