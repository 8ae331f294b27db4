// Package component defines the contracts every piece of a data channel
// implements: transport endpoints (CommunicationCore), their declarative
// configuration (CommunicationMetadata), and the three middleware capabilities.
//
// # Capabilities
//
// A pipeline component is one of a closed set of capabilities, matched with a
// type switch rather than reflection:
//
//   - CommunicationCore: an endpoint backed by a transport adapter
//   - TransformMiddleware: pure DataContext to DataContext conversion
//   - EndpointMiddleware: side-effecting, may replace or drop the context
//   - MonitorMiddleware: observes a copy of the context, never mutates
//
// Every component describes itself through Meta so the monitoring API can
// report what is attached to each channel.
//
// # Writing a transport adapter
//
// Adapters embed *BaseCore parameterized by their metadata type. BaseCore
// supplies the binding to the owning pipeline, CreateData, Emit and fault
// collection; the adapter overrides Init, Close and Receive as needed:
//
//	type Core struct {
//		*component.BaseCore[*Config]
//	}
//
//	func (c *Core) Init(ctx context.Context) error {
//		// dial, subscribe, start consume loop calling c.Emit
//	}
//
//	func (c *Core) Receive(ctx context.Context, dc *message.DataContext) error {
//		// write dc.Data to the wire
//	}
//
// Configuration is validated exactly once while the pipeline is built.
// EnrichOrValidate fills defaults and fails fast on inconsistent settings.
//
// # Registration
//
// Adapters and middleware are created by name through a Registry populated
// explicitly by componentregistry.Register. There is no init() self-registration.
package component
