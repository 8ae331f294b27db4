package wire

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/datachannel/metric"
)

// Metrics counts traffic through one network endpoint. A nil *Metrics
// records nothing.
type Metrics struct {
	messagesReceived prometheus.Counter
	bytesReceived    prometheus.Counter
	messagesSent     prometheus.Counter
	bytesSent        prometheus.Counter
	errors           prometheus.Counter
}

// NewMetrics creates and registers counters for endpoint name of kind. It
// returns nil when registry is nil. Registration conflicts are logged and the
// unregistered counters are still returned.
func NewMetrics(registry *metric.MetricsRegistry, kind, name string, logger *slog.Logger) *Metrics {
	if registry == nil {
		return nil
	}

	counter := func(metricName, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "datachannel",
			Subsystem:   kind,
			Name:        metricName,
			Help:        help,
			ConstLabels: prometheus.Labels{"endpoint": name},
		})
	}

	m := &Metrics{
		messagesReceived: counter("messages_received_total", "Messages read from the wire"),
		bytesReceived:    counter("bytes_received_total", "Bytes read from the wire"),
		messagesSent:     counter("messages_sent_total", "Messages written to the wire"),
		bytesSent:        counter("bytes_sent_total", "Bytes written to the wire"),
		errors:           counter("errors_total", "Read and write errors"),
	}

	serviceName := fmt.Sprintf("%s_%s", kind, name)
	for metricName, c := range map[string]prometheus.Counter{
		"messages_received": m.messagesReceived,
		"bytes_received":    m.bytesReceived,
		"messages_sent":     m.messagesSent,
		"bytes_sent":        m.bytesSent,
		"errors":            m.errors,
	} {
		if err := registry.RegisterCounter(serviceName, metricName, c); err != nil && logger != nil {
			logger.Debug("Endpoint metric not registered", "metric", metricName, "error", err)
		}
	}
	return m
}

// Received records one inbound message of n bytes
func (m *Metrics) Received(n int) {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
	m.bytesReceived.Add(float64(n))
}

// Sent records one outbound message of n bytes
func (m *Metrics) Sent(n int) {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
	m.bytesSent.Add(float64(n))
}

// Error records a read or write failure
func (m *Metrics) Error() {
	if m == nil {
		return
	}
	m.errors.Inc()
}
