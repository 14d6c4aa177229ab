// Package sqltransport implements a table-as-queue transport on PostgreSQL. Each destination is a
// table with an increasing sequence column, so its backlog can be measured with a single scalar
// query.
package sqltransport

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/ramonsmits/qload/loader"
	"github.com/ramonsmits/qload/monitor"
)

// DefaultResetQuery clears the server statistics before the monitor starts sampling.
const DefaultResetQuery = "SELECT pg_stat_reset()"

// MaxLockWaitQuery returns the longest current lock wait in ms, the contention metric sampled next
// to the queue length.
const MaxLockWaitQuery = `SELECT coalesce(max(extract(epoch FROM now() - state_change) * 1000), 0) FROM pg_stat_activity WHERE wait_event_type = 'Lock'`

// New returns a new sql transport
func New() loader.Transport {
	return &Transport{}
}

// Transport sends messages by inserting rows.
type Transport struct {
	db      *sql.DB
	config  options
	m       sync.Mutex
	created map[string]bool
}

type options struct {
	ConnectionString string `mapstructure:"connection-string"`
	// CreateQueues creates missing destination tables on first use.
	CreateQueues bool `mapstructure:"create-queues"`
	// MaxOpenConns limits the size of the connection pool. Zero means no limit.
	MaxOpenConns int `mapstructure:"max-open-conns"`
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

	db, err := sql.Open("postgres", config.ConnectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrap(err, "connecting to database")
	}

	t.db = db
	t.config = config
	t.created = map[string]bool{}
	return nil
}

// Stop satisfies the loader.Stopper interface
func (t *Transport) Stop(ctx context.Context) error {
	if t.db == nil {
		return nil
	}
	return errors.WithStack(t.db.Close())
}

// Send satisfies the loader.Transport interface
func (t *Transport) Send(ctx context.Context, msg loader.Message, destination string) error {

	if t.config.CreateQueues {
		if err := t.ensureQueue(ctx, destination); err != nil {
			return err
		}
	}

	headers, err := json.Marshal(msg.Headers)
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = t.db.ExecContext(ctx, insertQuery(destination), msg.ID, string(headers), msg.Body)
	return classify(err)
}

func (t *Transport) ensureQueue(ctx context.Context, destination string) error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.created[destination] {
		return nil
	}
	if _, err := t.db.ExecContext(ctx, createQuery(destination)); err != nil {
		return classify(err)
	}
	t.created[destination] = true
	return nil
}

// QueueLength satisfies the loader.QueueLengthProber interface
func (t *Transport) QueueLength(ctx context.Context, destination string) (int, error) {
	v, err := t.QueryScalar(ctx, QueueLengthQuery(destination))
	return int(v), err
}

// QueryScalar satisfies the monitor.Source interface. A NULL result reads as 0.
func (t *Transport) QueryScalar(ctx context.Context, query string) (float64, error) {
	var v sql.NullFloat64
	if err := t.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, classify(err)
	}
	return v.Float64, nil
}

// Exec satisfies the monitor.Execer interface
func (t *Transport) Exec(ctx context.Context, statement string) error {
	_, err := t.db.ExecContext(ctx, statement)
	return classify(err)
}

// DefaultProbes satisfies the monitor.ProbeProvider interface
func (t *Transport) DefaultProbes(destination string) []monitor.Probe {
	return []monitor.Probe{
		{Name: "queue length", Query: QueueLengthQuery(destination)},
		{Name: "max lock wait ms", Query: MaxLockWaitQuery},
	}
}

// DefaultResetQuery satisfies the monitor.ProbeProvider interface
func (t *Transport) DefaultResetQuery() string {
	return DefaultResetQuery
}

// QueueLengthQuery measures the backlog of destination as the span of sequence numbers, or 0
// when the table is empty.
func QueueLengthQuery(destination string) string {
	return fmt.Sprintf(`SELECT coalesce(max("Seq") - min("Seq") + 1, 0) FROM %s`, pq.QuoteIdentifier(destination))
}

func insertQuery(destination string) string {
	return fmt.Sprintf(`INSERT INTO %s ("Id", "Headers", "Body") VALUES ($1, $2, $3)`, pq.QuoteIdentifier(destination))
}

func createQuery(destination string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"Seq" bigserial PRIMARY KEY,
	"Id" uuid NOT NULL,
	"Headers" text NOT NULL,
	"Body" bytea
)`, pq.QuoteIdentifier(destination))
}

// classify wraps err, marking connection loss, serialization failures and resource exhaustion
// as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) {
		return loader.Transient(errors.WithStack(err))
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53":
			return loader.Transient(errors.WithStack(err))
		}
		if pqErr.Code == "57P03" {
			return loader.Transient(errors.WithStack(err))
		}
	}
	return errors.WithStack(err)
}
