// Package outbox implements the transactional-outbox pattern as a msgbus
// transport.
//
// The Transmitter appends each message to a Store; a Relay receiver polls the
// store, runs pending records through its middleware chain, and marks them
// delivered when the chain succeeds. Failures increment the record's attempt
// count and leave it pending until RelayConfig.MaxAttempts.
//
//	store, err := outbox.NewSQLiteStore("outbox.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	err = outbox.Register(container, store, codec,
//	    outbox.WithDefaultTopic("orders"),
//	    outbox.WithRelayConfig(outbox.RelayConfig{PollInterval: 500 * time.Millisecond}),
//	)
//
// Handlers behind a relay must be idempotent: a crash between a successful
// chain and MarkDelivered redelivers the record.
package outbox
