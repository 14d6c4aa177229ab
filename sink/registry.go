// Package sink implements the destinations monitor samples are published to.
package sink

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
)

// Registry keeps the latest value of each probe in a go-metrics registry, and a histogram of every
// value seen. When an output is set, Flush writes the registry to it.
type Registry struct {
	registry metrics.Registry
	out      io.Writer
	m        sync.Mutex
}

// NewRegistry returns a Registry sink. out may be nil.
func NewRegistry(out io.Writer) *Registry {
	return &Registry{
		registry: metrics.NewRegistry(),
		out:      out,
	}
}

// Publish satisfies the monitor.Sink interface
func (r *Registry) Publish(name string, value float64, count int) {
	metrics.GetOrRegisterGaugeFloat64(name, r.registry).Update(value)
	metrics.GetOrRegisterCounter(name+".samples", r.registry).Inc(int64(count))
	metrics.GetOrRegisterHistogram(name+".values", r.registry, metrics.NewExpDecaySample(1028, 0.015)).Update(int64(value))
}

// Flush satisfies the monitor.Sink interface
func (r *Registry) Flush(ctx context.Context) error {
	if r.out == nil {
		return nil
	}
	r.m.Lock()
	defer r.m.Unlock()
	metrics.WriteOnce(r.registry, r.out)
	return nil
}

// Value returns the latest value published for name.
func (r *Registry) Value(name string) (float64, error) {
	g, ok := r.registry.Get(name).(metrics.GaugeFloat64)
	if !ok {
		return 0, errors.Errorf("no samples for %s", name)
	}
	return g.Value(), nil
}

// Samples returns the number of samples published for name.
func (r *Registry) Samples(name string) int64 {
	c, ok := r.registry.Get(name + ".samples").(metrics.Counter)
	if !ok {
		return 0
	}
	return c.Count()
}
