// Package local is an in-process transport: a topic-keyed Hub plus a
// Transmitter and Receiver that plug into a msgbus.Container.
//
//	hub := local.NewHub(local.DefaultHubConfig)
//	defer hub.Close()
//	if err := local.Register(container, hub, local.WithDefaultTopic("events")); err != nil {
//	    return err
//	}
//
// Receivers take their topics from the descriptor parameters:
//
//	group.AddMessageReceiver("audit", []any{"events", "orders"}, configure)
package local
