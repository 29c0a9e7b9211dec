/*
Package msgbus routes messages between application code and pluggable
transports.

# Overview

msgbus does two things:
  - Broadcast one message to some or all registered transmitters and
    classify the outcome as success, partial, or failed.
  - Build receivers whose per-event processing is a chain of middleware
    around a terminal handler.

Transports (in-process, Redis pub/sub, SQLite outbox) live under
transport/ and plug in through a Resolver.

# Broadcasting

Register transmitter types with a Container, name transmitter instances in
a TransmitterRegistry, then broadcast:

	container := msgbus.NewContainer()
	local.Register(container, hub)

	transmitters := msgbus.NewTransmitterRegistry()
	transmitters.MustRegister("events", local.TransmitterType)

	broadcaster := msgbus.NewBroadcaster(transmitters, container)
	result, err := broadcaster.Broadcast(ctx, msgbus.NewMessage(order), msgbus.All())
	if err != nil {
	    var agg *msgbus.AggregateError
	    if errors.As(err, &agg) {
	        // every transmitter failed; agg.Errs has each cause
	    }
	    return err
	}
	if result.Status == msgbus.StatusPartial {
	    for _, failed := range result.Failed() {
	        log.Printf("%s: %v", failed.TransmitterID, failed.Err)
	    }
	}

Transmitters run one at a time in registration order. A transmitter error
is recorded in its result and the broadcast continues. A resolver error
aborts the broadcast and is returned unchanged.

# Receivers

Receivers are grouped by a base receiver type. Each receiver gets its own
middleware, then the group's, then the process-wide configurators:

	group := msgbus.NewReceiverGroupBuilder(container, local.ReceiverType, msgbus.BusOptions{
	    GlobalReceiverConfigurators: []msgbus.ReceiverConfigurator{
	        func(b msgbus.ReceiverBuilder) { b.Use(msgbus.RecoveryMiddleware()) },
	    },
	})
	_ = group.AddConfigurator(func(b msgbus.ReceiverBuilder) {
	    b.Use(msgbus.LoggingMiddleware(logger))
	})
	_ = group.AddMessageReceiver("orders", []any{"orders"}, func(b msgbus.ReceiverBuilder) {
	    b.Handle(msgbus.HandleMessage(func(tc msgbus.TransmissionContext, m *OrderMessage) error {
	        return process(tc, m)
	    }))
	})

	receivers, err := group.BuildReceivers()

Middleware registered first runs first on the way in and last on the way
out. Every event runs inside a fresh Scope that is closed when the chain
returns.

# Error Handling

Configuration problems (blank ids, duplicates, nil callbacks) return a
*ConfigurationError. Nil middleware or handler functions passed to a
builder panic. See the errors package for categorization and retry helpers
used by transports.
*/
package msgbus
