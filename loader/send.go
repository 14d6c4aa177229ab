package loader

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// send renders and sends one message of the given type, recording the outcome in the current
// metrics segment.
func (l *Loader) send(ctx context.Context, kind, destination string) error {

	body, err := l.body.render(map[string]string{"type": kind})
	if err != nil {
		return err
	}

	msg := newMessage(kind, l.Sender, body, l.clock.Now())

	l.metrics.logStart()
	start := l.clock.Now()

	err = l.transport.Send(ctx, msg, destination)

	l.metrics.logFinish(outcome(ctx, err), l.clock.Since(start), err == nil)

	if err != nil {
		return errors.Wrapf(err, "sending %s to %s", kind, destination)
	}
	return nil
}

func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case isCancellation(ctx, err):
		return outcomeCancelled
	case IsTransient(err):
		return outcomeTransient
	default:
		return outcomeFatal
	}
}

// sleep waits for d on the loader's clock, returning early with the context error if ctx is
// done first.
func (l *Loader) sleep(ctx context.Context, d time.Duration) error {
	t := l.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
