package loader

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// throttle is a bang-bang controller over a row of gates. At most one gate changes per
// observation and the open gates are always the prefix [0, next).
type throttle struct {
	target int
	next   int
	gates  gates
}

func newThrottle(target, slots int) *throttle {
	return &throttle{
		target: target,
		gates:  newGates(slots),
	}
}

// observe feeds one backlog measurement to the controller. It returns the slot that changed
// and whether it was opened.
func (t *throttle) observe(queueLength int) (slot int, opened bool) {
	if t.target-queueLength > 0 {
		if t.next == len(t.gates) {
			// saturated: every gate is already open
			return t.next - 1, true
		}
		slot = t.next
		t.gates.open(slot)
		t.next++
		return slot, true
	}
	if t.next == 0 {
		t.gates.close(0)
		return 0, false
	}
	t.next--
	t.gates.close(t.next)
	return t.next, false
}

// cursor is the index of the next slot the controller will enable, clamped to the last slot.
func (t *throttle) cursor() int {
	return min(t.next, len(t.gates)-1)
}

// active is the number of open gates.
func (t *throttle) active() int {
	return t.next
}

// QueueLengthSend keeps the backlog of destination near target. Every MonitorInterval the
// backlog is measured and one more slot is enabled when it is below target, or one slot is
// disabled when it is at or above. Enabled slots send back to back; disabled slots sleep for
// IdleInterval between gate checks. Probe and transport failures are logged and retried.
func (l *Loader) QueueLengthSend(ctx context.Context, target int, destination string) error {

	prober, ok := l.transport.(QueueLengthProber)
	if !ok {
		return errors.Errorf("transport %T cannot measure queue length", l.transport)
	}

	defer l.metrics.beginSegment(fmt.Sprintf("queue length %d", target), l.Slots)()

	t := newThrottle(target, l.Slots)

	pool := Spawn(ctx, l.Slots, Tolerate, l.logger, func(ctx context.Context, slot int) error {
		if t.gates.isOpen(slot) {
			return l.send(ctx, TestCommand, destination)
		}
		return l.sleep(ctx, l.IdleInterval)
	})

	g := new(errgroup.Group)
	g.Go(func() error {
		l.monitorQueueLength(ctx, prober, t, destination)
		return nil
	})
	g.Go(pool.Wait)
	return g.Wait()
}

func (l *Loader) monitorQueueLength(ctx context.Context, prober QueueLengthProber, t *throttle, destination string) {
	for {
		queueLength, err := prober.QueueLength(ctx, destination)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("measuring queue length", zap.String("destination", destination), zap.Error(err))
		} else {
			slot, opened := t.observe(queueLength)
			l.metrics.logEnabled(t.active())
			l.logger.Debug("queue length",
				zap.Int("length", queueLength),
				zap.Int("target", t.target),
				zap.Int("slot", slot),
				zap.Bool("opened", opened),
				zap.Int("active", t.active()),
			)
		}
		if err := l.sleep(ctx, l.MonitorInterval); err != nil {
			return
		}
	}
}
