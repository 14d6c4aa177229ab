// Package servicebustransport implements a transport on Azure Service Bus queues.
package servicebustransport

import (
	"context"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/ramonsmits/qload/loader"
	"github.com/ramonsmits/qload/monitor"
	"go.uber.org/multierr"
)

// Query names understood by QueryScalar. The queue name follows, e.g. "active orders".
const (
	QueryActive     = "active"
	QueryDeadLetter = "deadletter"
	QueryScheduled  = "scheduled"
)

// New returns a new service bus transport
func New() loader.Transport {
	return &Transport{}
}

// Transport keeps one sender per destination.
type Transport struct {
	client  *azservicebus.Client
	admin   *admin.Client
	config  options
	m       sync.Mutex
	senders map[string]*azservicebus.Sender
}

type options struct {
	ConnectionString string `mapstructure:"connection-string"`
	// ContentType is set on every message. (Default: application/json).
	ContentType string `mapstructure:"content-type"`
}

// Start satisfies the loader.Starter interface
func (t *Transport) Start(ctx context.Context, raw map[string]interface{}) error {

	var config options
	if err := mapstructure.Decode(raw, &config); err != nil {
		return errors.WithStack(err)
	}
	if config.ConnectionString == "" {
		return errors.New("connection string is required, set QLOAD_CONNECTION_STRING")
	}

	client, err := azservicebus.NewClientFromConnectionString(config.ConnectionString, nil)
	if err != nil {
		return errors.Wrap(err, "creating service bus client")
	}
	adminClient, err := admin.NewClientFromConnectionString(config.ConnectionString, nil)
	if err != nil {
		_ = client.Close(ctx)
		return errors.Wrap(err, "creating service bus admin client")
	}

	if config.ContentType == "" {
		config.ContentType = "application/json"
	}

	t.client = client
	t.admin = adminClient
	t.config = config
	t.senders = map[string]*azservicebus.Sender{}
	return nil
}

// Stop satisfies the loader.Stopper interface
func (t *Transport) Stop(ctx context.Context) error {
	if t.client == nil {
		return nil
	}
	t.m.Lock()
	defer t.m.Unlock()
	var err error
	for name, s := range t.senders {
		err = multierr.Append(err, errors.Wrapf(s.Close(ctx), "closing sender %s", name))
	}
	t.senders = map[string]*azservicebus.Sender{}
	return multierr.Append(err, errors.WithStack(t.client.Close(ctx)))
}

func (t *Transport) sender(destination string) (*azservicebus.Sender, error) {
	t.m.Lock()
	defer t.m.Unlock()
	if s, ok := t.senders[destination]; ok {
		return s, nil
	}
	s, err := t.client.NewSender(destination, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	t.senders[destination] = s
	return s, nil
}

// Send satisfies the loader.Transport interface
func (t *Transport) Send(ctx context.Context, msg loader.Message, destination string) error {
	s, err := t.sender(destination)
	if err != nil {
		return err
	}
	return classify(s.SendMessage(ctx, toServiceBus(msg, t.config.ContentType), nil))
}

func toServiceBus(msg loader.Message, contentType string) *azservicebus.Message {
	id := msg.ID
	subject := msg.Type
	properties := make(map[string]any, len(msg.Headers))
	for k, v := range msg.Headers {
		properties[k] = v
	}
	return &azservicebus.Message{
		MessageID:             &id,
		Subject:               &subject,
		ContentType:           &contentType,
		ApplicationProperties: properties,
		Body:                  msg.Body,
	}
}

// QueueLength satisfies the loader.QueueLengthProber interface
func (t *Transport) QueueLength(ctx context.Context, destination string) (int, error) {
	v, err := t.QueryScalar(ctx, QueryActive+" "+destination)
	return int(v), err
}

// QueryScalar satisfies the monitor.Source interface. Queries are "active <queue>",
// "deadletter <queue>" or "scheduled <queue>".
func (t *Transport) QueryScalar(ctx context.Context, query string) (float64, error) {
	fields := strings.Fields(query)
	if len(fields) != 2 {
		return 0, errors.Errorf("unsupported query %q", query)
	}
	resp, err := t.admin.GetQueueRuntimeProperties(ctx, fields[1], nil)
	if err != nil {
		return 0, classify(err)
	}
	if resp == nil {
		return 0, errors.Errorf("queue %s not found", fields[1])
	}
	switch fields[0] {
	case QueryActive:
		return float64(resp.ActiveMessageCount), nil
	case QueryDeadLetter:
		return float64(resp.DeadLetterMessageCount), nil
	case QueryScheduled:
		return float64(resp.ScheduledMessageCount), nil
	}
	return 0, errors.Errorf("unsupported query %q", query)
}

// DefaultProbes satisfies the monitor.ProbeProvider interface
func (t *Transport) DefaultProbes(destination string) []monitor.Probe {
	return []monitor.Probe{
		{Name: "queue length", Query: QueryActive + " " + destination},
		{Name: "dead letter length", Query: QueryDeadLetter + " " + destination},
	}
}

// DefaultResetQuery satisfies the monitor.ProbeProvider interface. Service bus has no statistics
// to clear.
func (t *Transport) DefaultResetQuery() string {
	return ""
}

// classify marks timeouts and lost connections as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sbErr *azservicebus.Error
	if errors.As(err, &sbErr) {
		switch sbErr.Code {
		case azservicebus.CodeTimeout, azservicebus.CodeConnectionLost:
			return loader.Transient(errors.WithStack(err))
		}
	}
	return errors.WithStack(err)
}
