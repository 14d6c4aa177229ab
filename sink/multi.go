package sink

import (
	"context"

	"github.com/ramonsmits/qload/monitor"
	"go.uber.org/multierr"
)

// Multi publishes to every sink in order.
type Multi []monitor.Sink

// Publish satisfies the monitor.Sink interface
func (m Multi) Publish(name string, value float64, count int) {
	for _, s := range m {
		s.Publish(name, value, count)
	}
}

// Flush satisfies the monitor.Sink interface. Every sink is flushed even if an earlier one fails.
func (m Multi) Flush(ctx context.Context) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Flush(ctx))
	}
	return err
}
