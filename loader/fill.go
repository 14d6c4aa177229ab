package loader

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Defaults for the fill and full speed commands.
const (
	DefaultFillTotal = 1000
	DefaultFillTasks = 5
)

// fillQuota is the number of sends each of tasks workers performs for a fill of total
// messages. The remainder of the division is dropped.
func fillQuota(total, tasks int) int {
	return total / tasks
}

// Fill sends total messages to destination split evenly across tasks workers, with no rate
// limiting. Each worker sends total/tasks messages, so the remainder is not sent. Transient
// transport failures count as an attempt and the worker carries on; other failures stop that
// worker and are returned once every worker has finished.
func (l *Loader) Fill(ctx context.Context, total, tasks int, destination string) error {

	if tasks < 1 {
		return errors.New("number of tasks must be at least 1")
	}
	if total < 0 {
		return errors.New("number of messages must not be negative")
	}

	defer l.metrics.beginSegment(fmt.Sprintf("fill %d/%d", total, tasks), tasks)()

	quota := fillQuota(total, tasks)

	// each slot only touches its own counter
	sent := make([]int, tasks)

	pool := Spawn(ctx, tasks, TolerateTransient, l.logger, func(ctx context.Context, slot int) error {
		if sent[slot] >= quota {
			return ErrSlotDone
		}
		sent[slot]++
		return l.send(ctx, TestCommand, destination)
	})

	return pool.Wait()
}

// FullSpeed sends to destination from tasks workers as fast as the transport allows until ctx
// is cancelled. Error handling is the same as Fill.
func (l *Loader) FullSpeed(ctx context.Context, tasks int, destination string) error {

	if tasks < 1 {
		return errors.New("number of tasks must be at least 1")
	}

	defer l.metrics.beginSegment(fmt.Sprintf("full speed x%d", tasks), tasks)()

	pool := Spawn(ctx, tasks, TolerateTransient, l.logger, func(ctx context.Context, slot int) error {
		return l.send(ctx, TestCommand, destination)
	})

	return pool.Wait()
}

// Reset sends exactly one ResetStatistics message to destination.
func (l *Loader) Reset(ctx context.Context, destination string) error {

	defer l.metrics.beginSegment("reset", 1)()

	if err := l.send(ctx, ResetStatistics, destination); err != nil && !isCancellation(ctx, err) {
		return err
	}
	return nil
}
