package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level data channel metrics
type Metrics struct {
	// Channel metrics
	ChannelStatus    *prometheus.GaugeVec
	MessagesTotal    *prometheus.CounterVec
	ExceptionsTotal  *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	InitDuration     *prometheus.HistogramVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ChannelStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "datachannel",
				Subsystem: "channel",
				Name:      "status",
				Help:      "Channel status (0=not initialized, 1=initializing, 2=available, 3=not available)",
			},
			[]string{"channel"},
		),

		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datachannel",
				Subsystem: "messages",
				Name:      "total",
				Help:      "Total number of messages dispatched through a channel",
			},
			[]string{"channel", "source", "outcome"},
		),

		ExceptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datachannel",
				Subsystem: "exceptions",
				Name:      "total",
				Help:      "Total number of exceptions recorded by a channel",
			},
			[]string{"channel", "source_type"},
		),

		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "datachannel",
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Time spent dispatching one message through a channel",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel", "source"},
		),

		InitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "datachannel",
				Subsystem: "init",
				Name:      "duration_seconds",
				Help:      "Time spent initializing a channel",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"channel"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "datachannel",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "datachannel",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordChannelStatus updates the channel status gauge
func (c *Metrics) RecordChannelStatus(channel string, status int) {
	c.ChannelStatus.WithLabelValues(channel).Set(float64(status))
}

// RecordMessage increments the dispatched message counter
func (c *Metrics) RecordMessage(channel, source, outcome string) {
	c.MessagesTotal.WithLabelValues(channel, source, outcome).Inc()
}

// RecordException increments the exception counter
func (c *Metrics) RecordException(channel, sourceType string) {
	c.ExceptionsTotal.WithLabelValues(channel, sourceType).Inc()
}

// RecordDispatchDuration records how long one dispatch took
func (c *Metrics) RecordDispatchDuration(channel, source string, duration time.Duration) {
	c.DispatchDuration.WithLabelValues(channel, source).Observe(duration.Seconds())
}

// RecordInitDuration records how long a channel initialization took
func (c *Metrics) RecordInitDuration(channel string, duration time.Duration) {
	c.InitDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
