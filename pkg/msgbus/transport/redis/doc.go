// Package redis carries messages over redis pub/sub.
//
// Messages travel as transport.Envelope JSON, so both sides need a
// transport.Codec with the same type names registered:
//
//	codec := transport.NewCodec()
//	_ = transport.RegisterType[*msgbus.BaseMessage[Order]](codec, "order.placed")
//
//	client, err := redis.Connect(ctx, redis.Config{URL: settings.RedisURL})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = redis.Register(container, client, codec, redis.WithDefaultChannel("orders"))
//
// Receivers take their channel names from the descriptor parameters. Pub/sub
// is fire-and-forget: messages published while no receiver is subscribed are
// lost. Use the outbox transport when delivery must survive restarts.
package redis
