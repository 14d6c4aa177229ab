package loader

import (
	"bytes"
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func newTestLoader(t *testing.T, transport Transport) (*Loader, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := New(ctx, cancel)
	l.SetTransport(transport)
	t.Cleanup(l.Exit)
	return l, ctx
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func mustMatch(t *testing.T, buf *ThreadSafeBuffer, num int, pattern string) {
	t.Helper()
	matches := regexp.MustCompile(pattern).FindAllString(buf.String(), -1)
	if len(matches) != num {
		t.Fatalf("Matches in output (%d) not expected (%d) for pattern %s:\n%s",
			len(matches),
			num,
			pattern,
			buf.String(),
		)
	}
}

type sentMessage struct {
	Message     Message
	Destination string
}

// LoggingTransport records every successful send. Fail decides the result of each attempt.
type LoggingTransport struct {
	Log      []sentMessage
	Fail     func(attempt int) error
	Delay    time.Duration
	m        sync.Mutex
	attempts int

	length    atomic.Int64
	lengthErr atomic.Bool
}

func (l *LoggingTransport) Send(ctx context.Context, msg Message, destination string) error {
	l.m.Lock()
	l.attempts++
	attempt := l.attempts
	fail := l.Fail
	l.m.Unlock()
	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		if err := fail(attempt); err != nil {
			return err
		}
	}
	l.m.Lock()
	defer l.m.Unlock()
	l.Log = append(l.Log, sentMessage{Message: msg, Destination: destination})
	return nil
}

func (l *LoggingTransport) QueueLength(ctx context.Context, destination string) (int, error) {
	if l.lengthErr.Load() {
		return 0, errors.New("probe down")
	}
	return int(l.length.Load()), nil
}

func (l *LoggingTransport) count() int {
	l.m.Lock()
	defer l.m.Unlock()
	return len(l.Log)
}

func (l *LoggingTransport) attemptCount() int {
	l.m.Lock()
	defer l.m.Unlock()
	return l.attempts
}

func (l *LoggingTransport) messages() []sentMessage {
	l.m.Lock()
	defer l.m.Unlock()
	out := make([]sentMessage, len(l.Log))
	copy(out, l.Log)
	return out
}

// sendOnlyTransport can't measure queue length.
type sendOnlyTransport struct{}

func (sendOnlyTransport) Send(ctx context.Context, msg Message, destination string) error {
	return nil
}

type ThreadSafeBuffer struct {
	b bytes.Buffer
	m sync.Mutex
}

func (b *ThreadSafeBuffer) Write(p []byte) (n int, err error) {
	b.m.Lock()
	defer b.m.Unlock()
	return b.b.Write(p)
}

func (b *ThreadSafeBuffer) String() string {
	b.m.Lock()
	defer b.m.Unlock()
	return b.b.String()
}
