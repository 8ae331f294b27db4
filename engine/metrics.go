package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/datachannel/metric"
)

// centralMetrics holds Prometheus metrics for channel orchestration.
type centralMetrics struct {
	channels          prometheus.Gauge         // Channels built and registered
	buildFailures     *prometheus.CounterVec   // By channel
	reinitializations *prometheus.CounterVec   // By channel and status
	operationDuration *prometheus.HistogramVec // By operation
}

// newCentralMetrics creates and registers orchestration metrics with the provided registry.
func newCentralMetrics(registry *metric.MetricsRegistry) (*centralMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &centralMetrics{
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "datachannel",
			Subsystem: "central",
			Name:      "channels",
			Help:      "Number of channels registered with the central registry",
		}),

		buildFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datachannel",
			Subsystem: "central",
			Name:      "build_failures_total",
			Help:      "Total number of pipeline builds that failed",
		}, []string{"channel"}),

		reinitializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datachannel",
			Subsystem: "central",
			Name:      "reinitializations_total",
			Help:      "Total number of channel re-initializations requested",
		}, []string{"channel", "status"}), // status: success, failure

		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "datachannel",
			Subsystem: "central",
			Name:      "operation_duration_seconds",
			Help:      "Duration of central operations in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		}, []string{"operation"}), // operation: build, init, close
	}

	if err := registry.RegisterGauge("central", "channels", m.channels); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("central", "build_failures", m.buildFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("central", "reinitializations", m.reinitializations); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("central", "operation_duration", m.operationDuration); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *centralMetrics) recordBuild(channels, failures []string, seconds float64) {
	if m == nil {
		return
	}
	m.channels.Set(float64(len(channels)))
	for _, id := range failures {
		m.buildFailures.WithLabelValues(id).Inc()
	}
	m.operationDuration.WithLabelValues("build").Observe(seconds)
}

func (m *centralMetrics) recordReinitialize(channelID string, success bool) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	m.reinitializations.WithLabelValues(channelID, status).Inc()
}

func (m *centralMetrics) recordOperation(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}
