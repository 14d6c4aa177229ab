package loader

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// generator releases permits on a cumulative schedule: after t seconds at rate r the total
// released is floor(t*r). A late wake-up releases a burst to catch up instead of lagging.
type generator struct {
	rate      float64
	start     time.Time
	generated atomic.Int64
	permits   chan struct{}
}

func newGenerator(rate float64, start time.Time, capacity int) *generator {
	return &generator{
		rate:    rate,
		start:   start,
		permits: make(chan struct{}, capacity),
	}
}

// due is the cumulative number of permits that should have been released by now.
func (g *generator) due(now time.Time) int64 {
	elapsed := now.Sub(g.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return int64(math.Floor(elapsed * g.rate))
}

// interval is the mean time between permits.
func (g *generator) interval() time.Duration {
	return time.Duration(float64(time.Second) / g.rate)
}

// release hands out the permits that are due at now. It blocks while the permit buffer is
// full and returns the context error if ctx is done first.
func (g *generator) release(ctx context.Context, now time.Time) error {
	target := g.due(now)
	for g.generated.Load() < target {
		select {
		case g.permits <- struct{}{}:
			g.generated.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// acquire blocks until a permit is available or ctx is done.
func (g *generator) acquire(ctx context.Context) error {
	select {
	case <-g.permits:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConstantThroughputSend sends to destination at messagesPerSecond until ctx is cancelled. A
// single generator releases permits that the Slots workers consume, one send per permit. Any
// failure that is not caused by cancellation stops the worker that saw it and is returned
// once the command is cancelled.
func (l *Loader) ConstantThroughputSend(ctx context.Context, messagesPerSecond int, destination string) error {

	if messagesPerSecond < 1 {
		return errors.New("messages per second must be at least 1")
	}

	defer l.metrics.beginSegment(fmt.Sprintf("constant %d/s", messagesPerSecond), l.Slots)()

	gen := newGenerator(float64(messagesPerSecond), l.clock.Now(), l.Slots)

	pool := Spawn(ctx, l.Slots, Propagate, l.logger, func(ctx context.Context, slot int) error {
		if err := gen.acquire(ctx); err != nil {
			return err
		}
		return l.send(ctx, TestCommand, destination)
	})

	g := new(errgroup.Group)
	g.Go(func() error {
		for {
			if err := l.sleep(ctx, gen.interval()); err != nil {
				return nil
			}
			if err := gen.release(ctx, l.clock.Now()); err != nil {
				return nil
			}
			l.metrics.logReleased(gen.generated.Load())
		}
	})
	g.Go(pool.Wait)
	return g.Wait()
}
