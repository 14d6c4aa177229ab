package loader

import (
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
)

// Outcome labels recorded for each finished send.
const (
	outcomeOK        = "ok"
	outcomeTransient = "transient"
	outcomeFatal     = "fatal"
	outcomeCancelled = "cancelled"
)

type metricsDef struct {
	sync     sync.RWMutex
	registry metrics.Registry
	current  int
	busy     metrics.Counter
	enabled  metrics.Gauge
	released metrics.Gauge
	all      *metricsSegment
	segments []*metricsSegment
}

func newMetricsDef() *metricsDef {
	r := metrics.NewRegistry()
	m := &metricsDef{
		registry: r,
		current:  -1,
		busy:     metrics.NewRegisteredCounter("busy", r),
		enabled:  metrics.NewRegisteredGauge("enabled", r),
		released: metrics.NewRegisteredGauge("released", r),
	}
	m.all = m.newMetricsSegment("(all)", 0)
	return m
}

// beginSegment opens a new column of metrics for a dispatched command. The returned func
// closes it.
func (m *metricsDef) beginSegment(command string, slots int) func() {
	m.sync.Lock()
	defer m.sync.Unlock()
	s := m.newMetricsSegment(command, slots)
	m.segments = append(m.segments, s)
	m.current = len(m.segments) - 1
	m.enabled.Update(0)
	m.released.Update(0)
	return func() {
		m.sync.Lock()
		defer m.sync.Unlock()
		s.end = time.Now()
	}
}

func (m *metricsDef) segment() *metricsSegment {
	if m.current < 0 {
		return nil
	}
	return m.segments[m.current]
}

func (m *metricsDef) logStart() {
	m.sync.RLock()
	defer m.sync.RUnlock()
	m.busy.Inc(1)
	m.all.logStart(m.busy.Count())
	if s := m.segment(); s != nil {
		s.logStart(m.busy.Count())
	}
}

func (m *metricsDef) logFinish(status string, elapsed time.Duration, success bool) {
	m.sync.RLock()
	defer m.sync.RUnlock()
	m.busy.Dec(1)
	m.all.logFinish(status, elapsed, success)
	if s := m.segment(); s != nil {
		s.logFinish(status, elapsed, success)
	}
}

func (m *metricsDef) logEnabled(n int) {
	m.enabled.Update(int64(n))
}

func (m *metricsDef) logReleased(n int64) {
	m.released.Update(n)
}

func (m *metricsDef) newMetricsItem() *metricsItem {
	return &metricsItem{
		start:   metrics.NewCounter(),
		finish:  metrics.NewTimer(),
		success: metrics.NewCounter(),
		fail:    metrics.NewCounter(),
	}
}

func (m *metricsDef) newMetricsSegment(command string, slots int) *metricsSegment {
	return &metricsSegment{
		def:     m,
		command: command,
		slots:   slots,
		total:   m.newMetricsItem(),
		status:  map[string]*metricsItem{},
		busy:    metrics.NewHistogram(metrics.NewExpDecaySample(1028, 0.015)),
		start:   time.Now(),
	}
}

type metricsSegment struct {
	sync    sync.RWMutex
	def     *metricsDef
	command string
	slots   int
	busy    metrics.Histogram
	total   *metricsItem
	status  map[string]*metricsItem
	start   time.Time
	end     time.Time
}

func (m *metricsSegment) duration() time.Duration {
	if m.end == (time.Time{}) {
		return time.Since(m.start)
	}
	return m.end.Sub(m.start)
}

func (m *metricsSegment) logStart(busy int64) {
	m.total.start.Inc(1)
	m.busy.Update(busy)
}

func (m *metricsSegment) logFinish(status string, elapsed time.Duration, success bool) {
	m.sync.Lock()
	defer m.sync.Unlock()

	if _, ok := m.status[status]; !ok {
		m.status[status] = m.def.newMetricsItem()
	}

	m.total.finish.Update(elapsed)
	m.status[status].finish.Update(elapsed)

	if success {
		m.total.success.Inc(1)
		m.status[status].success.Inc(1)
	} else {
		m.total.fail.Inc(1)
		m.status[status].fail.Inc(1)
	}
}

type metricsItem struct {
	start   metrics.Counter
	finish  metrics.Timer
	success metrics.Counter
	fail    metrics.Counter
}
