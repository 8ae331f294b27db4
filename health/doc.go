// Package health provides health reporting for data channels and the
// services that host them.
//
// # Health States
//
// Three states are reported:
//   - healthy: operating normally
//   - degraded: operating, but with buffered faults or still starting up
//   - unhealthy: not functioning (initialization failed or closed)
//
// # Channels
//
// A channel's lifecycle status maps onto a health state through FromChannel:
//
//	status := health.FromChannel(health.ChannelState{
//	    ID:             "orders",
//	    Status:         "ready",
//	    ExceptionCount: 2,
//	    LastError:      "conversion failed",
//	})
//	// status.Status == "degraded"
//
// Ready channels without faults are healthy. A ready channel holding
// exceptions is degraded. Uninitialized and initializing channels are
// degraded. Channels in not_available or closed are unhealthy.
//
// # Aggregation
//
// Aggregate folds a set of statuses into one. Any unhealthy sub-status makes
// the result unhealthy, otherwise any degraded sub-status makes it degraded:
//
//	overall := health.Aggregate("datachannel", []health.Status{orders, telemetry})
//
// Monitor tracks named statuses for things that are not channels, such as the
// NATS connection, and is safe for concurrent use:
//
//	monitor := health.NewMonitor()
//	monitor.UpdateDegraded("nats", "reconnecting")
//	system := monitor.AggregateHealth("platform")
//
// # Security
//
// Error text carried into a Status by FromChannel is sanitized. URLs, file
// paths, IP addresses, ports and credential-looking key/value pairs are
// replaced with placeholders:
//
//	"dial https://10.0.0.1:8443/x with token=abc" → "dial [URL] with [REDACTED]"
//
// Status values are immutable: WithMetrics and WithSubStatus return copies.
package health
