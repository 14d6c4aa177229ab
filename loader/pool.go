package loader

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FailurePolicy decides what a pool slot does when its behavior returns an error that was not
// caused by cancellation.
type FailurePolicy int

const (
	// Propagate stops the slot and reports the error from Wait.
	Propagate FailurePolicy = iota
	// TolerateTransient logs and continues on transient errors, and behaves like Propagate for
	// anything else.
	TolerateTransient
	// Tolerate logs every error and continues.
	Tolerate
)

func (p FailurePolicy) String() string {
	switch p {
	case Propagate:
		return "propagate"
	case TolerateTransient:
		return "tolerate-transient"
	case Tolerate:
		return "tolerate"
	}
	return "unknown"
}

// Behavior is one iteration of a slot's send loop.
type Behavior func(ctx context.Context, slot int) error

// Pool is a fixed set of slots, each running its own loop. It has no rate semantics of its
// own: the controllers decide what a slot does on each iteration.
type Pool struct {
	slots  int
	policy FailurePolicy
	logger *zap.Logger
	wait   sync.WaitGroup
	m      sync.Mutex
	err    error
}

// Spawn starts slots goroutines, each invoking behavior repeatedly until ctx is done, the
// behavior returns ErrSlotDone, or the failure policy stops it.
func Spawn(ctx context.Context, slots int, policy FailurePolicy, logger *zap.Logger, behavior Behavior) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		slots:  slots,
		policy: policy,
		logger: logger,
	}
	for i := 0; i < slots; i++ {
		p.wait.Add(1)
		go func(slot int) {
			defer p.wait.Done()
			p.run(ctx, slot, behavior)
		}(i)
	}
	return p
}

func (p *Pool) run(ctx context.Context, slot int, behavior Behavior) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := behavior(ctx, slot)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrSlotDone) || isCancellation(ctx, err) {
			return
		}
		switch {
		case p.policy == Tolerate, p.policy == TolerateTransient && IsTransient(err):
			p.logger.Warn("send failed, continuing", zap.Int("slot", slot), zap.Error(err))
			continue
		}
		p.logger.Error("send failed, stopping slot", zap.Int("slot", slot), zap.Stringer("policy", p.policy), zap.Error(err))
		p.fail(errors.Wrapf(err, "slot %d", slot))
		return
	}
}

func (p *Pool) fail(err error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.err = multierr.Append(p.err, err)
}

// Slots returns the number of slots in the pool.
func (p *Pool) Slots() int {
	return p.slots
}

// Wait blocks until every slot has exited and returns the combined errors of the slots that
// stopped with a failure.
func (p *Pool) Wait() error {
	p.wait.Wait()
	p.m.Lock()
	defer p.m.Unlock()
	return p.err
}
