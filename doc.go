// Package datachannel is a bidirectional message-channel runtime.
//
// A data channel pairs an outer endpoint (a network or device connection)
// with an inner endpoint (the application side) and runs every message
// through an ordered middleware chain on the way. Middleware can transform
// a payload, answer it directly, or only observe it. Failures become
// exceptions, kept in a bounded per-channel pool and served over HTTP.
//
// # Layout
//
//   - message: DataContext, the unit that flows through a channel
//   - component: endpoint and middleware contracts, the kind registry
//   - pipeline: Builder and Pipeline, routing and exception pools
//   - middleware: counter, debugger, analyzer, schema gate, codecs
//   - transport: endpoint kinds (inproc, nats, udp, tcp, webhook,
//     httppost, websocket, timer, serial, sqlstore)
//   - engine: Central, which builds and initializes every channel and
//     serves status routes
//   - config: file and environment loading, channel builders
//   - cmd/datachannel: the host process
package datachannel
