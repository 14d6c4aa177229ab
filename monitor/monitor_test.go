package monitor

import (
	"bytes"
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSource struct {
	m       sync.Mutex
	values  map[string]float64
	errs    map[string]error
	queries []string
	execs   []string
	execErr error
}

func (f *fakeSource) QueryScalar(ctx context.Context, query string) (float64, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.queries = append(f.queries, query)
	if err := f.errs[query]; err != nil {
		return 0, err
	}
	return f.values[query], nil
}

func (f *fakeSource) queryCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return len(f.queries)
}

type execSource struct {
	*fakeSource
}

func (e execSource) Exec(ctx context.Context, statement string) error {
	e.m.Lock()
	defer e.m.Unlock()
	e.execs = append(e.execs, statement)
	return e.execErr
}

type sample struct {
	name  string
	value float64
	count int
}

type fakeSink struct {
	m        sync.Mutex
	samples  []sample
	flushes  int
	flushErr error
}

func (f *fakeSink) Publish(name string, value float64, count int) {
	f.m.Lock()
	defer f.m.Unlock()
	f.samples = append(f.samples, sample{name, value, count})
}

func (f *fakeSink) Flush(ctx context.Context) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.flushes++
	return f.flushErr
}

func (f *fakeSink) flushCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.flushes
}

type syncBuffer struct {
	m sync.Mutex
	b bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.m.Lock()
	defer s.m.Unlock()
	return s.b.String()
}

var probes = []Probe{{Name: "a", Query: "qa"}, {Name: "b", Query: "qb"}}

func TestSample(t *testing.T) {
	source := &fakeSource{values: map[string]float64{"qa": 1, "qb": 2}}
	sink := &fakeSink{}
	r := New(source, sink, probes)

	require.NoError(t, r.Sample(context.Background()))
	assert.Equal(t, []sample{{"a", 1, 1}, {"b", 2, 1}}, sink.samples)
	assert.Equal(t, 1, sink.flushes)
}

func TestSample_probeFails(t *testing.T) {
	source := &fakeSource{
		values: map[string]float64{"qb": 2},
		errs:   map[string]error{"qa": errors.New("boom")},
	}
	sink := &fakeSink{flushErr: errors.New("full")}
	r := New(source, sink, probes)

	err := r.Sample(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe a: boom")
	assert.Contains(t, err.Error(), "flushing sink: full")
	assert.Equal(t, []sample{{"b", 2, 1}}, sink.samples)
}

func TestRun(t *testing.T) {
	source := execSource{&fakeSource{values: map[string]float64{"qa": 1, "qb": 2}}}
	sink := &fakeSink{}
	out := &syncBuffer{}
	r := New(source, sink, probes)
	r.Interval = 5 * time.Millisecond
	r.ResetQuery = "reset"
	r.SetOutput(out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.flushCount() >= 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"reset"}, source.execs)
	assert.Regexp(t, regexp.MustCompile(`^Cleaning wait statistics \.\.\.\nMonitor started\n(\[\d{4}-\d\d-\d\d \d\d:\d\d:\d\d\] Metrics pushed\n)+`), out.String())
}

func TestRun_clock(t *testing.T) {
	source := &fakeSource{values: map[string]float64{"qa": 1, "qb": 2}}
	sink := &fakeSink{}
	r := New(source, sink, probes)
	mock := clock.NewMock()
	r.SetClock(mock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.Run(ctx) }()

	for i := 1; i <= 3; i++ {
		require.Eventually(t, func() bool { return sink.flushCount() == i }, time.Second, time.Millisecond)
		// the next sample only happens once the interval elapses
		assert.Never(t, func() bool { return sink.flushCount() > i }, 10*time.Millisecond, time.Millisecond)
		mock.Add(DefaultInterval)
	}
	cancel()
	require.NoError(t, <-done)
}

func TestRun_sampleFailureContinues(t *testing.T) {
	source := &fakeSource{errs: map[string]error{"qa": errors.New("boom"), "qb": errors.New("boom")}}
	sink := &fakeSink{}
	core, logs := observer.New(zap.WarnLevel)
	r := New(source, sink, probes)
	r.Interval = time.Millisecond
	r.SetLogger(zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return source.queryCount() >= 6 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.NotZero(t, logs.FilterMessage("sample failed").Len())
}

func TestRun_invalid(t *testing.T) {
	source := &fakeSource{}
	tests := map[string]struct {
		setup func(r *Reporter)
		err   string
	}{
		"no probes": {func(r *Reporter) { r.Probes = nil }, "no probes configured"},
		"interval":  {func(r *Reporter) { r.Interval = 0 }, "interval must be positive"},
		"no execer": {func(r *Reporter) { r.ResetQuery = "reset" }, "reset query configured but the source cannot execute statements"},
	}
	for name, test := range tests {
		r := New(source, &fakeSink{}, probes)
		test.setup(r)
		assert.EqualError(t, r.Run(context.Background()), test.err, name)
	}
}

func TestRun_resetFails(t *testing.T) {
	source := execSource{&fakeSource{execErr: errors.New("denied")}}
	r := New(source, &fakeSink{}, probes)
	r.ResetQuery = "reset"
	assert.EqualError(t, r.Run(context.Background()), "executing reset query: denied")
}
