package sink

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exposes the latest value of each probe as a gauge. The telemetry key is attached as
// the const label "key" so several runs can share one prometheus server.
type Prometheus struct {
	registry *prometheus.Registry
	values   *prometheus.GaugeVec
	samples  *prometheus.CounterVec
}

// NewPrometheus returns a Prometheus sink with its own registry.
func NewPrometheus(key string) *Prometheus {
	labels := prometheus.Labels{"key": key}
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "qload",
			Name:        "probe_value",
			Help:        "Latest value returned by a telemetry probe.",
			ConstLabels: labels,
		}, []string{"probe"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "qload",
			Name:        "probe_samples_total",
			Help:        "Number of samples published by a telemetry probe.",
			ConstLabels: labels,
		}, []string{"probe"}),
	}
	p.registry.MustRegister(p.values, p.samples)
	return p
}

// Publish satisfies the monitor.Sink interface
func (p *Prometheus) Publish(name string, value float64, count int) {
	label := probeLabel(name)
	p.values.WithLabelValues(label).Set(value)
	p.samples.WithLabelValues(label).Add(float64(count))
}

// Flush satisfies the monitor.Sink interface. Values are pulled by the server, so there is
// nothing to deliver.
func (p *Prometheus) Flush(ctx context.Context) error {
	return nil
}

// Handler serves the registry in the prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry.
func (p *Prometheus) Gatherer() prometheus.Gatherer {
	return p.registry
}

var nonLabel = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// probeLabel turns a probe name like "queue length" into "queue_length".
func probeLabel(name string) string {
	return strings.Trim(nonLabel.ReplaceAllString(strings.ToLower(name), "_"), "_")
}
