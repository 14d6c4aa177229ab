package dummytransport

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ramonsmits/qload/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, options map[string]interface{}) *Transport {
	t.Helper()
	tr := NewTransport()
	require.NoError(t, tr.Start(context.Background(), options))
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	return tr
}

func TestSend(t *testing.T) {
	tr := start(t, nil)
	ctx := context.Background()

	require.NoError(t, tr.Send(ctx, loader.Message{ID: "1"}, "a"))
	require.NoError(t, tr.Send(ctx, loader.Message{ID: "2"}, "a"))
	require.NoError(t, tr.Send(ctx, loader.Message{ID: "3"}, "b"))

	n, err := tr.QueueLength(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, tr.Sent())
	assert.Equal(t, "3", tr.Messages("b")[0].ID)
}

func TestSend_failures(t *testing.T) {
	ctx := context.Background()

	tr := start(t, map[string]interface{}{"failure-rate": 1.0})
	err := tr.Send(ctx, loader.Message{}, "a")
	require.Error(t, err)
	assert.False(t, loader.IsTransient(err))

	tr = start(t, map[string]interface{}{"transient-rate": 1.0})
	err = tr.Send(ctx, loader.Message{}, "a")
	require.Error(t, err)
	assert.True(t, loader.IsTransient(err))
	assert.Zero(t, tr.Sent())
}

func TestStart_invalid(t *testing.T) {
	tr := NewTransport()
	assert.Error(t, tr.Start(context.Background(), map[string]interface{}{"failure-rate": 0.6, "transient-rate": 0.6}))
	assert.Error(t, tr.Start(context.Background(), map[string]interface{}{"min-latency": "slow"}))
}

func TestSend_latencyCancelled(t *testing.T) {
	tr := start(t, map[string]interface{}{"min-latency": 10000})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := tr.Send(ctx, loader.Message{}, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, tr.Sent())
}

func TestDrain(t *testing.T) {
	mock := clock.NewMock()
	tr := NewTransport()
	tr.SetClock(mock)
	require.NoError(t, tr.Start(context.Background(), map[string]interface{}{"drain-rate": 2}))
	defer tr.Stop(context.Background()) // nolint

	for i := 0; i < 5; i++ {
		require.NoError(t, tr.Send(context.Background(), loader.Message{}, "a"))
	}
	for _, expected := range []int{3, 1, 0} {
		mock.Add(time.Second)
		require.Eventually(t, func() bool {
			n, _ := tr.QueueLength(context.Background(), "a")
			return n == expected
		}, time.Second, time.Millisecond)
	}
}

func TestQueryScalar(t *testing.T) {
	tr := start(t, nil)
	ctx := context.Background()
	require.NoError(t, tr.Send(ctx, loader.Message{}, "a"))

	probes := tr.DefaultProbes("a")
	require.Len(t, probes, 2)
	for _, p := range probes {
		v, err := tr.QueryScalar(ctx, p.Query)
		require.NoError(t, err)
		assert.Equal(t, 1.0, v, p.Name)
	}

	_, err := tr.QueryScalar(ctx, "bogus")
	assert.Error(t, err)

	require.NoError(t, tr.Exec(ctx, tr.DefaultResetQuery()))
	assert.Zero(t, tr.Sent())
	assert.Error(t, tr.Exec(ctx, "drop"))
}
