// Package monitor samples scalar telemetry from the system under test and publishes it to a
// metrics sink at a fixed cadence.
package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultInterval is the time between two samples.
const DefaultInterval = time.Second

// Probe is a named scalar measurement query.
type Probe struct {
	Name  string `mapstructure:"name" json:"name"`
	Query string `mapstructure:"query" json:"query"`
}

// Source runs a measurement query and returns a single number. Implementations do not retry.
type Source interface {
	QueryScalar(ctx context.Context, query string) (float64, error)
}

// Execer is satisfied by sources that can run a statement with no result, such as clearing the
// server wait statistics before the first sample.
type Execer interface {
	Exec(ctx context.Context, statement string) error
}

// ProbeProvider is satisfied by sources that know which probes and reset statement suit them.
type ProbeProvider interface {
	DefaultProbes(destination string) []Probe
	DefaultResetQuery() string
}

// Sink receives samples. Publish may buffer, Flush delivers everything published so far.
type Sink interface {
	Publish(name string, value float64, count int)
	Flush(ctx context.Context) error
}

// Reporter polls every probe once per interval and forwards the results to a sink.
type Reporter struct {
	// Interval is the time between the start of two samples.
	Interval time.Duration
	// Probes are run in order on every sample.
	Probes []Probe
	// ResetQuery, when set, is executed once before the first sample.
	ResetQuery string

	source Source
	sink   Sink
	logger *zap.Logger
	clock  clock.Clock

	outWriter io.Writer
	outLock   sync.Mutex
}

// New returns a Reporter that reads from source and writes to sink.
func New(source Source, sink Sink, probes []Probe) *Reporter {
	return &Reporter{
		Interval: DefaultInterval,
		Probes:   probes,
		source:   source,
		sink:     sink,
		logger:   zap.NewNop(),
		clock:    clock.New(),
	}
}

// SetLogger sets the diagnostic logger.
func (r *Reporter) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r.logger = logger
}

// SetClock replaces the clock used for pacing and timestamps.
func (r *Reporter) SetClock(c clock.Clock) {
	r.clock = c
}

// SetOutput sets the writer that progress lines are printed to.
func (r *Reporter) SetOutput(w io.Writer) {
	r.outWriter = w
}

// Run executes the reset query, then samples every Interval until ctx is cancelled. A failed
// sample is logged and the next one happens on schedule. Run returns nil on cancellation.
func (r *Reporter) Run(ctx context.Context) error {

	if r.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if len(r.Probes) == 0 {
		return errors.New("no probes configured")
	}

	if r.ResetQuery != "" {
		e, ok := r.source.(Execer)
		if !ok {
			return errors.New("reset query configured but the source cannot execute statements")
		}
		r.println("Cleaning wait statistics ...")
		if err := e.Exec(ctx, r.ResetQuery); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "executing reset query")
		}
	}

	r.println("Monitor started")

	for {
		if err := r.Sample(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("sample failed", zap.Error(err))
		} else {
			r.printf("[%s] Metrics pushed\n", r.clock.Now().Local().Format(time.DateTime))
		}

		timer := r.clock.Timer(r.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Sample runs every probe once and flushes the sink. A failed probe is skipped; the others are
// still published. All failures are returned combined.
func (r *Reporter) Sample(ctx context.Context) error {
	var err error
	for _, p := range r.Probes {
		v, perr := r.source.QueryScalar(ctx, p.Query)
		if perr != nil {
			err = multierr.Append(err, errors.Wrapf(perr, "probe %s", p.Name))
			continue
		}
		r.logger.Debug("sampled", zap.String("probe", p.Name), zap.Float64("value", v))
		r.sink.Publish(p.Name, v, 1)
	}
	if ferr := r.sink.Flush(ctx); ferr != nil {
		err = multierr.Append(err, errors.Wrap(ferr, "flushing sink"))
	}
	return err
}

func (r *Reporter) println(a ...interface{}) {
	if r.outWriter == nil {
		return
	}
	r.outLock.Lock()
	defer r.outLock.Unlock()
	fmt.Fprintln(r.outWriter, a...)
}

func (r *Reporter) printf(format string, a ...interface{}) {
	if r.outWriter == nil {
		return
	}
	r.outLock.Lock()
	defer r.outLock.Unlock()
	fmt.Fprintf(r.outWriter, format, a...)
}
