// Package metric owns the Prometheus registry shared by every channel, endpoint
// and middleware in the process.
//
// Core channel metrics are registered on construction. Components add their own
// collectors keyed by (owner, name) so that a second registration under the
// same key fails with an invalid-class error instead of panicking.
package metric

import (
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/datachannel/errors"
)

type collectorKey struct {
	owner string
	name  string
}

func (k collectorKey) String() string { return k.owner + "." + k.name }

// MetricsRegistry wraps a private Prometheus registry. It never touches the
// global default registry, so tests can build as many as they like.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics

	mu         sync.Mutex
	collectors map[collectorKey]prometheus.Collector
}

// NewMetricsRegistry returns a registry with the core channel metrics and
// the Go runtime and process collectors installed.
func NewMetricsRegistry() *MetricsRegistry {
	core := NewMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		core.ChannelStatus,
		core.MessagesTotal,
		core.ExceptionsTotal,
		core.DispatchDuration,
		core.InitDuration,
		core.NATSConnected,
		core.NATSReconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsRegistry{
		prometheusRegistry: reg,
		Metrics:            core,
		collectors:         make(map[collectorKey]prometheus.Collector),
	}
}

func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry { return r.prometheusRegistry }
func (r *MetricsRegistry) CoreMetrics() *Metrics                    { return r.Metrics }

// Handler serves the registry in Prometheus text and OpenMetrics formats.
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Register adds collector under (owner, name).
func (r *MetricsRegistry) Register(owner, name string, collector prometheus.Collector) error {
	key := collectorKey{owner, name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.collectors[key]; taken {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered", key),
			"MetricsRegistry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register",
				fmt.Sprintf("prometheus conflict for %s", key))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register collector")
	}

	r.collectors[key] = collector
	return nil
}

// Typed shorthands for Register.

func (r *MetricsRegistry) RegisterCounter(owner, name string, c prometheus.Counter) error {
	return r.Register(owner, name, c)
}

func (r *MetricsRegistry) RegisterGauge(owner, name string, g prometheus.Gauge) error {
	return r.Register(owner, name, g)
}

func (r *MetricsRegistry) RegisterHistogram(owner, name string, h prometheus.Histogram) error {
	return r.Register(owner, name, h)
}

func (r *MetricsRegistry) RegisterCounterVec(owner, name string, v *prometheus.CounterVec) error {
	return r.Register(owner, name, v)
}

func (r *MetricsRegistry) RegisterGaugeVec(owner, name string, v *prometheus.GaugeVec) error {
	return r.Register(owner, name, v)
}

func (r *MetricsRegistry) RegisterHistogramVec(owner, name string, v *prometheus.HistogramVec) error {
	return r.Register(owner, name, v)
}

// Unregister removes the collector under (owner, name) and reports whether
// one was removed.
func (r *MetricsRegistry) Unregister(owner, name string) bool {
	key := collectorKey{owner, name}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.collectors[key]
	if !ok || !r.prometheusRegistry.Unregister(c) {
		return false
	}
	delete(r.collectors, key)
	return true
}

// Registered lists the "owner.name" keys of every component collector,
// sorted.
func (r *MetricsRegistry) Registered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.collectors))
	for k := range r.collectors {
		out = append(out, k.String())
	}
	slices.Sort(out)
	return out
}
