package loader

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Defaults for the controller timings and slot count.
const (
	DefaultSlots           = 20
	DefaultMonitorInterval = 2 * time.Second
	DefaultIdleInterval    = time.Second
	DefaultStatusInterval  = 10 * time.Second
	DefaultSender          = "SqlTransport-Test-Sender"
	DefaultDestination     = "SqlTransport-Test-Receiver"
)

// Loader drives a Transport with one of the rate controllers, selected interactively.
type Loader struct {
	// Slots is the size of the worker pool used by the throttled controllers.
	Slots int
	// Sender is the name this process reports as its own address on each message.
	Sender string
	// Destination is used by commands that accept an optional destination.
	Destination string
	// MonitorInterval is the period of the queue-length feedback loop.
	MonitorInterval time.Duration
	// IdleInterval is how long a disabled slot sleeps before checking its gate again.
	IdleInterval time.Duration
	// StatusInterval is how often statistics are printed while a command runs.
	StatusInterval time.Duration

	transport        Transport
	transportOptions map[string]interface{}
	transportTypes   map[string]func() Transport

	viper  *viper.Viper
	logger *zap.Logger
	clock  clock.Clock
	body   *bodyRenderer

	outWriter   io.Writer
	outCloser   io.Closer
	inputReader io.Reader

	cancel context.CancelFunc

	commands []Command

	signalChannel chan os.Signal

	metrics *metricsDef
}

// Transport is an interface that allows the loader to be extended to support any queueing
// technology. See the dummytransport package for a simple example.
type Transport interface {
	Send(ctx context.Context, msg Message, destination string) error
}

// Starter is an interface a transport can optionally satisfy to provide initialization logic.
// The options map is decoded by the transport (typically with mapstructure).
type Starter interface {
	Start(ctx context.Context, options map[string]interface{}) error
}

// Stopper is an interface a transport can optionally satisfy to provide finalization logic.
type Stopper interface {
	Stop(ctx context.Context) error
}

// QueueLengthProber is satisfied by transports that can measure the backlog of a destination.
// The queue-length throttled command requires it.
type QueueLengthProber interface {
	QueueLength(ctx context.Context, destination string) (int, error)
}

// New returns a Loader with the built-in commands registered. The cancel func is called when
// the process receives an interrupt signal or Exit is called.
func New(ctx context.Context, cancel context.CancelFunc) *Loader {

	body, _ := parseBodyRenderer(DefaultBodyTemplate)

	l := &Loader{
		Slots:           DefaultSlots,
		Sender:          DefaultSender,
		Destination:     DefaultDestination,
		MonitorInterval: DefaultMonitorInterval,
		IdleInterval:    DefaultIdleInterval,
		StatusInterval:  DefaultStatusInterval,
		viper:           viper.New(),
		logger:          zap.NewNop(),
		clock:           clock.New(),
		body:            body,
		cancel:          cancel,
		transportTypes:  make(map[string]func() Transport),
		metrics:         newMetricsDef(),
	}

	l.registerBuiltinCommands()

	// trap Ctrl+C and call cancel on the context
	l.signalChannel = make(chan os.Signal, 1)
	signal.Notify(l.signalChannel, os.Interrupt)
	go func() {
		select {
		case <-l.signalChannel:
			l.cancel()
		case <-ctx.Done():
		}
	}()

	return l
}

// RegisterTransportType makes a transport selectable by the "transport" config option.
func (l *Loader) RegisterTransportType(key string, transportFunc func() Transport) {
	l.transportTypes[key] = transportFunc
}

// SetTransport sets the transport used by every command.
func (l *Loader) SetTransport(t Transport) {
	l.transport = t
}

// SetTransportOptions sets the options passed to the transport's Start method.
func (l *Loader) SetTransportOptions(options map[string]interface{}) {
	l.transportOptions = options
}

// SetBodyTemplate sets the text/template used to render message bodies. The template data has
// a "type" key, and the rand_int, rand_float and rand_string functions are available.
func (l *Loader) SetBodyTemplate(t string) error {
	r, err := parseBodyRenderer(t)
	if err != nil {
		return err
	}
	l.body = r
	return nil
}

// SetLogger sets the diagnostic logger.
func (l *Loader) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l.logger = logger
}

// SetClock replaces the clock used for pacing and sleeping.
func (l *Loader) SetClock(c clock.Clock) {
	l.clock = c
}

// SetInput sets the reader that commands are read from. The Command method sets this to os.Stdin.
func (l *Loader) SetInput(r io.Reader) {
	l.inputReader = r
}

// SetOutput sets the output, and allows the prompt and summary output to be redirected. The
// Command method sets this to os.Stdout.
func (l *Loader) SetOutput(w io.Writer) {
	if w == nil {
		l.outWriter = nil
		l.outCloser = nil
		return
	}
	l.outWriter = newThreadSafeWriter(w)
	if c, ok := w.(io.Closer); ok {
		l.outCloser = c
	} else {
		l.outCloser = nil
	}
}

// Stats returns a snapshot of the send metrics.
func (l *Loader) Stats() Stats {
	return l.metrics.stats()
}

// Exit cancels any goroutines that are still processing, and closes the output.
func (l *Loader) Exit() {
	if l.outCloser != nil {
		_ = l.outCloser.Close() // ignore error
	}
	_ = l.logger.Sync() // ignore error
	signal.Stop(l.signalChannel)
	l.cancel()
}

// Command processes command line flags, loads the config and starts the interactive loop.
func (l *Loader) Command(ctx context.Context) error {

	c, err := l.LoadConfig()
	if err != nil {
		return err
	}

	if err := l.Initialise(ctx, c); err != nil {
		return err
	}

	l.SetOutput(os.Stdout)
	l.SetInput(os.Stdin)

	return l.Start(ctx)
}

// Start starts the transport and runs the interactive command loop until the input is
// exhausted or ctx is cancelled.
func (l *Loader) Start(ctx context.Context) error {

	if l.transport == nil {
		return errors.New("no transport specified")
	}

	if l.Slots < 1 {
		return errors.New("slots must be at least 1")
	}

	if l.MonitorInterval <= 0 || l.IdleInterval <= 0 || l.StatusInterval <= 0 {
		return errors.New("intervals must be positive")
	}

	if s, ok := l.transport.(Starter); ok {
		if err := s.Start(ctx, l.transportOptions); err != nil {
			return errors.Wrap(err, "starting transport")
		}
	}

	err := l.dispatch(ctx)

	if s, ok := l.transport.(Stopper); ok {
		// use a fresh context: ctx is usually cancelled by now
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stopErr := s.Stop(stopCtx); stopErr != nil {
			l.logger.Warn("stopping transport", zap.Error(stopErr))
		}
	}

	return err
}

func newThreadSafeWriter(w io.Writer) *threadSafeWriter {
	return &threadSafeWriter{
		w: w,
	}
}

type threadSafeWriter struct {
	w io.Writer
	m sync.Mutex
}

func (t *threadSafeWriter) Write(p []byte) (n int, err error) {
	t.m.Lock()
	defer t.m.Unlock()
	return t.w.Write(p)
}
