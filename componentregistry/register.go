// Package componentregistry registers every built-in endpoint and middleware
// kind with a component.Registry.
package componentregistry

import (
	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/middleware"
	"github.com/c360/datachannel/transport/httppost"
	"github.com/c360/datachannel/transport/inproc"
	"github.com/c360/datachannel/transport/nats"
	"github.com/c360/datachannel/transport/serial"
	"github.com/c360/datachannel/transport/sqlstore"
	"github.com/c360/datachannel/transport/tcp"
	"github.com/c360/datachannel/transport/timer"
	"github.com/c360/datachannel/transport/udp"
	"github.com/c360/datachannel/transport/webhook"
	"github.com/c360/datachannel/transport/websocket"
)

type registerFunc func(*component.Registry) error

// Register registers all built-in kinds:
//
// Endpoints:
//   - inproc (application code)
//   - nats (subjects and JetStream)
//   - udp, tcp (raw sockets)
//   - webhook (inbound HTTP), httppost (outbound HTTP)
//   - websocket (client)
//   - timer (periodic trigger)
//   - serial (serial ports)
//   - sqlstore (SQLite sink and poller)
//
// Middleware: counter, debugger, analyzer, schema_gate, string_bytes,
// json_encode, json_decode.
func Register(registry *component.Registry) error {
	// Nil registry is a programming error, not invalid input
	if registry == nil {
		return errors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	steps := []struct {
		name string
		fn   registerFunc
	}{
		{inproc.Kind, inproc.Register},
		{nats.Kind, nats.Register},
		{udp.Kind, udp.Register},
		{tcp.Kind, tcp.Register},
		{webhook.Kind, webhook.Register},
		{httppost.Kind, httppost.Register},
		{websocket.Kind, websocket.Register},
		{timer.Kind, timer.Register},
		{serial.Kind, serial.Register},
		{sqlstore.Kind, sqlstore.Register},
		{"middleware", middleware.Register},
	}

	for _, step := range steps {
		if err := step.fn(registry); err != nil {
			return errors.WrapInvalid(err, "ComponentRegistry", "Register", step.name+" registration")
		}
	}
	return nil
}
