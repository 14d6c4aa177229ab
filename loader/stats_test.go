package loader

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_String(t *testing.T) {
	s := Stats{
		ConcurrencyCurrent: 1,
		ConcurrencyMaximum: 2,
		EnabledSlots:       3,
		All: &Segment{
			Command:            "(all)",
			ActualRate:         5,
			AverageConcurrency: 6,
			Duration:           time.Second * 7,
			Summary: &Total{
				Started:     8,
				Finished:    9,
				Success:     10,
				Fail:        11,
				Mean:        time.Millisecond * 12,
				NinetyFifth: time.Millisecond * 13,
			},
			Status: []*Status{
				{Status: "ok", Count: 14, Fraction: 0.15, Mean: time.Millisecond * 16},
				{Status: "transient", Count: 18, Fraction: 0.19, Mean: time.Millisecond * 20},
			},
		},
		Segments: []*Segment{
			{
				Command:            "fill 1000/5",
				ActualRate:         23,
				AverageConcurrency: 24,
				Duration:           time.Second * 125,
				Summary: &Total{
					Started:     26,
					Finished:    27,
					Success:     28,
					Fail:        29,
					Mean:        time.Millisecond * 30,
					NinetyFifth: time.Millisecond * 31,
				},
				Status: []*Status{
					{Status: "ok", Count: 32, Fraction: 0.33, Mean: time.Millisecond * 34},
					{Status: "transient"},
				},
			},
			{
				Command:            "constant 40/s",
				ActualRate:         40,
				AverageConcurrency: 41,
				Duration:           time.Second * 4042,
				Summary: &Total{
					Started:     43,
					Finished:    44,
					Success:     45,
					Fail:        46,
					Mean:        time.Millisecond * 47,
					NinetyFifth: time.Millisecond * 48,
				},
				Status: []*Status{
					{Status: "ok", Count: 49, Fraction: 0.50, Mean: time.Millisecond * 51},
					{Status: "transient", Count: 36, Fraction: 0.37, Mean: time.Millisecond * 38},
				},
			},
		},
	}
	out := s.String()
	// most recent segment first
	for _, pattern := range []string{
		`(?m)^Metrics$`,
		`(?m)^Concurrency:\s+1 / 2 workers in use`,
		`(?m)^Enabled slots:\s+3\s*$`,
		`(?m)^Command:\s+\(all\)\s+constant 40/s\s+fill 1000/5`,
		`(?m)^Actual rate:\s+5\s+40\s+23`,
		`(?m)^Avg concurrency:\s+6\s+41\s+24`,
		`(?m)^Duration:\s+00:07\s+1:07:22\s+02:05`,
		`(?m)^Started:\s+8\s+43\s+26`,
		`(?m)^Fail:\s+11\s+46\s+29`,
		`(?m)^Mean:\s+12\.0 ms\s+47\.0 ms\s+30\.0 ms`,
		`(?m)^95th:\s+13\.0 ms\s+48\.0 ms\s+31\.0 ms`,
		`(?m)^Count:\s+14 \(15%\)\s+49 \(50%\)\s+32 \(33%\)`,
		`(?m)^Count:\s+18 \(19%\)\s+36 \(37%\)\s+0\s*$`,
		`(?m)^Mean:\s+20\.0 ms\s+38\.0 ms\s+-`,
	} {
		assert.Regexp(t, regexp.MustCompile(pattern), out)
	}
	assert.NotContains(t, out, "Permits released")
}

func TestLoader_statsSegments(t *testing.T) {
	transport := &LoggingTransport{}
	l, ctx := newTestLoader(t, transport)

	must(t, l.Fill(ctx, 10, 2, "q"))
	must(t, l.Reset(ctx, "q"))

	s := l.Stats()
	assert.Len(t, s.Segments, 2)
	assert.Equal(t, "fill 10/2", s.Segments[0].Command)
	assert.Equal(t, 2, s.Segments[0].Slots)
	assert.Equal(t, "reset", s.Segments[1].Command)
	assert.Equal(t, int64(11), s.All.Summary.Started)
	assert.Equal(t, int64(11), s.All.Summary.Success)
	assert.Equal(t, int64(1), s.Segments[1].Summary.Finished)
	if assert.Len(t, s.All.Status, 1) {
		assert.Equal(t, outcomeOK, s.All.Status[0].Status)
		assert.Equal(t, int64(11), s.All.Status[0].Count)
	}
}

func TestFmtDuration(t *testing.T) {
	assert.Equal(t, "00:07", fmtDuration(7*time.Second))
	assert.Equal(t, "02:05", fmtDuration(125*time.Second))
	assert.Equal(t, "1:07:22", fmtDuration(4042*time.Second))
}
