package loader

import (
	"context"

	"github.com/pkg/errors"
)

// ExampleTransport facilitates code examples by satisfying the Transport, Starter, Stopper and
// QueueLengthProber interfaces with provided functions.
type ExampleTransport struct {
	SendFunc        func(ctx context.Context, self *ExampleTransport, msg Message, destination string) error
	StartFunc       func(ctx context.Context, self *ExampleTransport, options map[string]interface{}) error
	StopFunc        func(ctx context.Context, self *ExampleTransport) error
	QueueLengthFunc func(ctx context.Context, self *ExampleTransport, destination string) (int, error)
	Local           map[string]interface{}
}

// Send satisfies the Transport interface.
func (e *ExampleTransport) Send(ctx context.Context, msg Message, destination string) error {
	if e.SendFunc != nil {
		return e.SendFunc(ctx, e, msg, destination)
	}
	return nil
}

// Start satisfies the Starter interface.
func (e *ExampleTransport) Start(ctx context.Context, options map[string]interface{}) error {
	if e.StartFunc != nil {
		return e.StartFunc(ctx, e, options)
	}
	return nil
}

// Stop satisfies the Stopper interface.
func (e *ExampleTransport) Stop(ctx context.Context) error {
	if e.StopFunc != nil {
		return e.StopFunc(ctx, e)
	}
	return nil
}

// QueueLength satisfies the QueueLengthProber interface.
func (e *ExampleTransport) QueueLength(ctx context.Context, destination string) (int, error) {
	if e.QueueLengthFunc != nil {
		return e.QueueLengthFunc(ctx, e, destination)
	}
	return 0, errors.New("queue length not supported")
}
