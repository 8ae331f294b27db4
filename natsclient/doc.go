// Package natsclient wraps a shared NATS connection with a circuit breaker
// and the subscription bookkeeping the NATS endpoints need.
//
// One Client is created per process and handed to endpoints through
// component.Dependencies. Each endpoint owns the Subscription values it
// creates and releases them on Close; the Client drains whatever is left
// when it is closed itself.
//
// After a configurable number of consecutive connect or stream failures
// (default 5) the circuit opens and Connect fails fast with ErrCircuitOpen
// until the backoff elapses. The backoff doubles on every further trip up to
// WithMaxBackoff (default one minute).
//
// Basic usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	sub, err := client.Subscribe(ctx, "orders.*", "", func(ctx context.Context, data []byte) ([]byte, error) {
//	    return nil, handle(ctx, data)
//	})
//
// JetStream streams are created with EnsureStream and read through durable
// consumers with ConsumeStream. Handler errors nack the message so the server
// redelivers it.
//
// Tests that need a real server use NewTestClient, which starts NATS in a
// container through testcontainers.
package natsclient
