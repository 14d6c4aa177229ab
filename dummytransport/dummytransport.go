// Package dummytransport implements an in-memory transport with random latency and failures.
package dummytransport

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/ramonsmits/qload/loader"
	"github.com/ramonsmits/qload/monitor"
)

// New returns a new dummy transport
func New() loader.Transport {
	return NewTransport()
}

// NewTransport returns a new dummy transport with no latency and no failures.
func NewTransport() *Transport {
	return &Transport{
		queues: map[string][]loader.Message{},
		clock:  clock.New(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Transport keeps every destination as a slice of messages.
type Transport struct {
	m      sync.Mutex
	queues map[string][]loader.Message
	sent   int
	config options
	clock  clock.Clock
	rand   *rand.Rand
	stop   context.CancelFunc
	done   chan struct{}
}

type options struct {
	// MinLatency and MaxLatency bound the random delay of each send, in ms.
	MinLatency int `mapstructure:"min-latency"`
	MaxLatency int `mapstructure:"max-latency"`
	// FailureRate is the probability that a send fails permanently.
	FailureRate float64 `mapstructure:"failure-rate"`
	// TransientRate is the probability that a send fails transiently.
	TransientRate float64 `mapstructure:"transient-rate"`
	// DrainRate removes this many messages per second from every queue, like a consumer would.
	DrainRate int `mapstructure:"drain-rate"`
	// ConnectionString is accepted and ignored.
	ConnectionString string `mapstructure:"connection-string"`
}

// SetClock replaces the clock used for latency and draining. Call before Start.
func (t *Transport) SetClock(c clock.Clock) {
	t.clock = c
}

// Start satisfies the loader.Starter interface
func (t *Transport) Start(ctx context.Context, raw map[string]interface{}) error {

	var config options
	if err := mapstructure.Decode(raw, &config); err != nil {
		return errors.WithStack(err)
	}
	if config.MaxLatency < config.MinLatency {
		config.MaxLatency = config.MinLatency
	}
	if config.FailureRate+config.TransientRate > 1 {
		return errors.New("failure-rate and transient-rate must not add up to more than 1")
	}

	t.m.Lock()
	t.config = config
	t.m.Unlock()

	if config.DrainRate > 0 {
		// the drain loop outlives the Start context, Stop ends it
		drainCtx, cancel := context.WithCancel(context.Background())
		t.stop = cancel
		t.done = make(chan struct{})
		go t.drain(drainCtx, t.clock.Ticker(time.Second), config.DrainRate)
	}
	return nil
}

// Stop satisfies the loader.Stopper interface
func (t *Transport) Stop(ctx context.Context) error {
	if t.stop == nil {
		return nil
	}
	t.stop()
	select {
	case <-t.done:
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
	return nil
}

func (t *Transport) drain(ctx context.Context, ticker *clock.Ticker, perSecond int) {
	defer close(t.done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.m.Lock()
			for name, q := range t.queues {
				n := perSecond
				if n > len(q) {
					n = len(q)
				}
				t.queues[name] = q[n:]
			}
			t.m.Unlock()
		}
	}
}

// Send satisfies the loader.Transport interface
func (t *Transport) Send(ctx context.Context, msg loader.Message, destination string) error {

	t.m.Lock()
	config := t.config
	latency := config.MinLatency
	if config.MaxLatency > config.MinLatency {
		latency += t.rand.Intn(config.MaxLatency - config.MinLatency + 1)
	}
	roll := t.rand.Float64()
	t.m.Unlock()

	if latency > 0 {
		timer := t.clock.Timer(time.Duration(latency) * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.WithStack(ctx.Err())
		}
	}

	switch {
	case roll < config.FailureRate:
		return errors.Errorf("dummy failure sending to %s", destination)
	case roll < config.FailureRate+config.TransientRate:
		return loader.Transient(errors.Errorf("dummy transient failure sending to %s", destination))
	}

	t.m.Lock()
	defer t.m.Unlock()
	t.queues[destination] = append(t.queues[destination], msg)
	t.sent++
	return nil
}

// QueueLength satisfies the loader.QueueLengthProber interface
func (t *Transport) QueueLength(ctx context.Context, destination string) (int, error) {
	t.m.Lock()
	defer t.m.Unlock()
	return len(t.queues[destination]), nil
}

// Messages returns a copy of the messages waiting in destination.
func (t *Transport) Messages(destination string) []loader.Message {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]loader.Message, len(t.queues[destination]))
	copy(out, t.queues[destination])
	return out
}

// Sent returns the number of successful sends since the transport was created or last reset.
func (t *Transport) Sent() int {
	t.m.Lock()
	defer t.m.Unlock()
	return t.sent
}

// QueryScalar satisfies the monitor.Source interface. Supported queries are "length
// <destination>" and "sent".
func (t *Transport) QueryScalar(ctx context.Context, query string) (float64, error) {
	fields := strings.Fields(query)
	switch {
	case len(fields) == 2 && fields[0] == "length":
		n, err := t.QueueLength(ctx, fields[1])
		return float64(n), err
	case len(fields) == 1 && fields[0] == "sent":
		return float64(t.Sent()), nil
	}
	return 0, errors.Errorf("unsupported query %q", query)
}

// Exec satisfies the monitor.Execer interface. The only statement is "reset", which zeroes the
// sent counter.
func (t *Transport) Exec(ctx context.Context, statement string) error {
	if strings.TrimSpace(statement) != "reset" {
		return errors.Errorf("unsupported statement %q", statement)
	}
	t.m.Lock()
	defer t.m.Unlock()
	t.sent = 0
	return nil
}

// DefaultProbes satisfies the monitor.ProbeProvider interface
func (t *Transport) DefaultProbes(destination string) []monitor.Probe {
	return []monitor.Probe{
		{Name: "queue length", Query: "length " + destination},
		{Name: "sent", Query: "sent"},
	}
}

// DefaultResetQuery satisfies the monitor.ProbeProvider interface
func (t *Transport) DefaultResetQuery() string {
	return "reset"
}
