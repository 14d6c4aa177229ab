package sqltransport

import (
	"context"
	"database/sql/driver"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/ramonsmits/qload/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		err       error
		transient bool
	}{
		"deadlock":             {&pq.Error{Code: "40P01"}, true},
		"serialization":        {&pq.Error{Code: "40001"}, true},
		"connection failure":   {&pq.Error{Code: "08006"}, true},
		"too many connections": {&pq.Error{Code: "53300"}, true},
		"starting up":          {&pq.Error{Code: "57P03"}, true},
		"admin shutdown":       {&pq.Error{Code: "57P01"}, false},
		"undefined table":      {&pq.Error{Code: "42P01"}, false},
		"bad connection":       {driver.ErrBadConn, true},
		"wrapped":              {errors.Wrap(&pq.Error{Code: "40P01"}, "insert"), true},
		"other":                {errors.New("x"), false},
	}
	for name, test := range tests {
		err := classify(test.err)
		require.Error(t, err, name)
		assert.Equal(t, test.transient, loader.IsTransient(err), name)
	}
	assert.NoError(t, classify(nil))
}

func TestQueries(t *testing.T) {
	assert.Equal(t,
		`SELECT coalesce(max("Seq") - min("Seq") + 1, 0) FROM "SqlTransport-Test-Receiver"`,
		QueueLengthQuery("SqlTransport-Test-Receiver"),
	)
	assert.Equal(t,
		`INSERT INTO "a""b" ("Id", "Headers", "Body") VALUES ($1, $2, $3)`,
		insertQuery(`a"b`),
	)
	assert.Contains(t, createQuery("q"), `CREATE TABLE IF NOT EXISTS "q"`)

	tr := &Transport{}
	probes := tr.DefaultProbes("q")
	require.Len(t, probes, 2)
	assert.Equal(t, "queue length", probes[0].Name)
	assert.Equal(t, QueueLengthQuery("q"), probes[0].Query)
	assert.Equal(t, MaxLockWaitQuery, probes[1].Query)
	assert.Equal(t, DefaultResetQuery, tr.DefaultResetQuery())
}

func TestStart_requiresConnectionString(t *testing.T) {
	tr := New().(*Transport)
	err := tr.Start(context.Background(), map[string]interface{}{})
	assert.EqualError(t, err, "connection string is required, set QLOAD_CONNECTION_STRING")
	assert.NoError(t, tr.Stop(context.Background()))
}

// TestPostgres runs against a real server when QLOAD_TEST_POSTGRES holds a connection string.
func TestPostgres(t *testing.T) {
	cs := os.Getenv("QLOAD_TEST_POSTGRES")
	if cs == "" {
		t.Skip("QLOAD_TEST_POSTGRES not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tr := New().(*Transport)
	require.NoError(t, tr.Start(ctx, map[string]interface{}{
		"connection-string": cs,
		"create-queues":     true,
	}))
	defer tr.Stop(ctx) // nolint

	queue := fmt.Sprintf("qload-test-%d", time.Now().UnixNano())
	defer tr.Exec(ctx, "DROP TABLE "+pq.QuoteIdentifier(queue)) // nolint

	for i := 0; i < 3; i++ {
		msg := loader.Message{
			ID:      fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i),
			Type:    loader.TestCommand,
			Headers: map[string]string{"a": "b"},
			Body:    []byte(`{}`),
		}
		require.NoError(t, tr.Send(ctx, msg, queue))
	}

	n, err := tr.QueueLength(ctx, queue)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	v, err := tr.QueryScalar(ctx, MaxLockWaitQuery)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v, 0.0)
}
