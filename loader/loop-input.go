package loader

import (
	"bufio"
	"context"

	"go.uber.org/zap"
)

// startInputLoop reads lines from the input until EOF. The returned channel is closed when the
// input is exhausted.
func (l *Loader) startInputLoop(ctx context.Context) <-chan string {

	lines := make(chan string)

	if l.inputReader == nil {
		close(lines)
		return lines
	}

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(l.inputReader)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case lines <- scanner.Text():
			}
		}
		if err := scanner.Err(); err != nil {
			// notest
			l.logger.Error("reading input", zap.Error(err))
		}
	}()

	return lines
}
