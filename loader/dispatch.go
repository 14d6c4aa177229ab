package loader

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// dispatch runs the prompt: each input line selects a command by key prefix and runs it until it
// finishes or another line (Enter) cancels it. Unmatched lines are ignored.
func (l *Loader) dispatch(ctx context.Context) error {

	lines := l.startInputLoop(ctx)

	l.printCommands()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if exhausted := l.execute(ctx, line, lines); exhausted {
				return nil
			}
		}
	}
}

// execute runs the command selected by line. It returns true if the input was exhausted while
// the command was running.
func (l *Loader) execute(ctx context.Context, line string, lines <-chan string) bool {

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	command, ok := l.match(fields[0])
	if !ok {
		return false
	}

	args, err := command.parse(fields[1:])
	if err != nil {
		l.printf("%v\nSyntax: %s\n", err, command.Syntax())
		return false
	}

	l.printf("\nExecuting: %s\n", command.Description)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- command.Action(runCtx, args)
	}()

	ticker := l.clock.Ticker(l.StatusInterval)
	defer ticker.Stop()

	exhausted := false
	for {
		select {
		case err := <-result:
			// controllers drop errors caused by cancellation when they occur, so anything
			// left here is a real failure even if the command has since been cancelled
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("command failed", zap.String("command", command.Key), zap.Error(err))
				l.printf("Error: %v\n", err)
			} else {
				l.println("Done")
			}
			if command.Summary {
				l.printStatus()
			}
			l.printCommands()
			return exhausted
		case _, ok := <-lines:
			// any input, usually Enter, stops the running command
			if !ok {
				exhausted = true
			}
			lines = nil
			cancel()
		case <-ticker.C:
			l.printStatus()
		}
	}
}
