package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/datachannel/metric"
)

type bufferMetrics struct {
	writes      prometheus.Counter
	drops       prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, name string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"buffer": name}
	counter := func(n, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datachannel", Subsystem: "buffer", Name: n, Help: help, ConstLabels: labels,
		})
	}
	gauge := func(n, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "datachannel", Subsystem: "buffer", Name: n, Help: help, ConstLabels: labels,
		})
	}

	m := &bufferMetrics{
		writes:      counter("writes_total", "Items written to the buffer"),
		drops:       counter("drops_total", "Items dropped by the overflow policy"),
		size:        gauge("size", "Items currently held"),
		utilization: gauge("utilization", "Held items as a fraction of capacity"),
	}

	if err := registry.RegisterCounter(name, "buffer_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "buffer_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "buffer_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordDrop() { m.drops.Inc() }

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
