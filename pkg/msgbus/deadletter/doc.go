// Package deadletter keeps failed receiver deliveries for inspection and
// replay.
//
// Add Middleware to a receiver (usually through a group or global
// configurator) and every delivery whose chain returns an error is
// recorded in the Queue. The error still propagates to the transport.
//
//	dlq := deadletter.NewMemoryQueue(deadletter.DefaultConfig)
//	group.AddConfigurator(func(b msgbus.ReceiverBuilder) {
//	    b.Use(deadletter.Middleware(dlq))
//	})
//
// Replay re-delivers queued entries; entries that keep failing are parked
// after Config.MaxAttempts.
package deadletter
