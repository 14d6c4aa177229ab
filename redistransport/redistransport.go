// Package redistransport implements a transport on redis lists. Messages are pushed to the tail
// of a list named after the destination.
package redistransport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/ramonsmits/qload/loader"
	"github.com/ramonsmits/qload/monitor"
	"github.com/redis/go-redis/v9"
)

// New returns a new redis transport
func New() loader.Transport {
	return &Transport{}
}

// Transport is the redis transport
type Transport struct {
	client *redis.Client
}

type options struct {
	// ConnectionString is a redis:// URL, or a plain host:port address.
	ConnectionString string `mapstructure:"connection-string"`
	// PoolSize overrides the client connection pool size.
	PoolSize int `mapstructure:"pool-size"`
}

type envelope struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
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

	opts, err := redis.ParseURL(config.ConnectionString)
	if err != nil {
		opts = &redis.Options{Addr: config.ConnectionString}
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return errors.Wrap(err, "connecting to redis")
	}
	t.client = client
	return nil
}

// Stop satisfies the loader.Stopper interface
func (t *Transport) Stop(ctx context.Context) error {
	if t.client == nil {
		return nil
	}
	return errors.WithStack(t.client.Close())
}

// Send satisfies the loader.Transport interface
func (t *Transport) Send(ctx context.Context, msg loader.Message, destination string) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	return classify(t.client.RPush(ctx, destination, payload).Err())
}

func encode(msg loader.Message) ([]byte, error) {
	body := json.RawMessage(msg.Body)
	if !json.Valid(msg.Body) {
		// keep the envelope valid json when the template renders plain text
		quoted, err := json.Marshal(string(msg.Body))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		body = quoted
	}
	b, err := json.Marshal(envelope{ID: msg.ID, Type: msg.Type, Headers: msg.Headers, Body: body})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// QueueLength satisfies the loader.QueueLengthProber interface
func (t *Transport) QueueLength(ctx context.Context, destination string) (int, error) {
	n, err := t.client.LLen(ctx, destination).Result()
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}

// QueryScalar satisfies the monitor.Source interface. The query is a redis command split on
// whitespace, e.g. "LLEN orders". A nil reply reads as 0.
func (t *Transport) QueryScalar(ctx context.Context, query string) (float64, error) {
	args := commandArgs(query)
	if len(args) == 0 {
		return 0, errors.New("empty query")
	}
	v, err := t.client.Do(ctx, args...).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err)
	}
	return v, nil
}

// Exec satisfies the monitor.Execer interface
func (t *Transport) Exec(ctx context.Context, statement string) error {
	args := commandArgs(statement)
	if len(args) == 0 {
		return errors.New("empty statement")
	}
	return classify(t.client.Do(ctx, args...).Err())
}

// DefaultProbes satisfies the monitor.ProbeProvider interface
func (t *Transport) DefaultProbes(destination string) []monitor.Probe {
	return []monitor.Probe{
		{Name: "queue length", Query: "LLEN " + destination},
	}
}

// DefaultResetQuery satisfies the monitor.ProbeProvider interface
func (t *Transport) DefaultResetQuery() string {
	return "CONFIG RESETSTAT"
}

func commandArgs(s string) []interface{} {
	var args []interface{}
	for _, f := range strings.Fields(s) {
		args = append(args, f)
	}
	return args
}

// classify marks network failures and the server's retry-later replies as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		return loader.Transient(errors.WithStack(err))
	}
	msg := err.Error()
	for _, prefix := range []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN"} {
		if strings.HasPrefix(msg, prefix) {
			return loader.Transient(errors.WithStack(err))
		}
	}
	return errors.WithStack(err)
}
