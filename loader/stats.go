package loader

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// Stats is a snapshot of the send metrics (as is printed during interactive execution).
type Stats struct {
	ConcurrencyCurrent int
	ConcurrencyMaximum int
	EnabledSlots       int64
	PermitsReleased    int64
	All                *Segment
	Segments           []*Segment
}

// Segment summarises one dispatched command - a new segment is created each time a command
// starts.
type Segment struct {
	Command            string
	Slots              int
	ActualRate         float64
	AverageConcurrency float64
	Duration           time.Duration
	Summary            *Total
	Status             []*Status
}

// Total is the summary of all sends in this segment
type Total struct {
	Started     int64
	Finished    int64
	Success     int64
	Fail        int64
	Mean        time.Duration
	NinetyFifth time.Duration
}

// Status is a summary of all sends that finished with a specific outcome
type Status struct {
	Status      string
	Count       int64
	Fraction    float64
	Mean        time.Duration
	NinetyFifth time.Duration
}

func (m *metricsDef) stats() Stats {
	m.sync.RLock()
	defer m.sync.RUnlock()

	s := Stats{
		All: &Segment{
			Command: m.all.command,
			Summary: &Total{},
		},
	}

	for range m.segments {
		s.Segments = append(s.Segments, &Segment{
			Summary: &Total{},
		})
	}

	// find all statuses and order
	var statuses []string
	m.all.sync.RLock()
	for status := range m.all.status {
		statuses = append(statuses, status)
	}
	m.all.sync.RUnlock()
	sort.Strings(statuses)

	for _, status := range statuses {
		s.All.Status = append(s.All.Status, &Status{Status: status})
		for _, seg := range s.Segments {
			seg.Status = append(seg.Status, &Status{Status: status})
		}
	}

	s.ConcurrencyCurrent = int(m.busy.Count())
	if seg := m.segment(); seg != nil {
		s.ConcurrencyMaximum = seg.slots
	}
	s.EnabledSlots = m.enabled.Value()
	s.PermitsReleased = m.released.Value()

	fillSegment(s.All, m.all)
	for i, seg := range s.Segments {
		fillSegment(seg, m.segments[i])
	}

	for statusIndex, status := range statuses {
		fillStatus(s.All.Status[statusIndex], m.all, status)
		for segmentIndex, seg := range s.Segments {
			fillStatus(seg.Status[statusIndex], m.segments[segmentIndex], status)
		}
	}

	return s
}

func fillSegment(out *Segment, in *metricsSegment) {
	out.Command = in.command
	out.Slots = in.slots
	out.ActualRate = float64(in.total.start.Count()) / in.duration().Seconds()
	out.AverageConcurrency = in.busy.Mean()
	out.Duration = in.duration()
	out.Summary.Started = in.total.start.Count()
	out.Summary.Finished = in.total.finish.Count()
	out.Summary.Success = in.total.success.Count()
	out.Summary.Fail = in.total.fail.Count()
	out.Summary.Mean = time.Duration(in.total.finish.Mean()/1000000.0) * time.Millisecond
	out.Summary.NinetyFifth = time.Duration(in.total.finish.Percentile(0.95)/1000000.0) * time.Millisecond
}

func fillStatus(out *Status, in *metricsSegment, status string) {
	in.sync.RLock()
	defer in.sync.RUnlock()
	item := in.status[status]
	if item == nil {
		return
	}
	out.Count = item.finish.Count()
	out.Fraction = float64(item.finish.Count()) / float64(in.total.finish.Count())
	out.Mean = time.Duration(item.finish.Mean()/1000000.0) * time.Millisecond
	out.NinetyFifth = time.Duration(item.finish.Percentile(0.95)/1000000.0) * time.Millisecond
}

// String returns a string representation of the stats (as is printed during interactive execution).
func (s Stats) String() string {
	buf := &bytes.Buffer{}
	w := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "Metrics")
	fmt.Fprintln(w, "=======")

	var segments []int
	for i := len(s.Segments) - 1; i >= 0; i-- {
		segments = append(segments, i)
	}

	tabs := strings.Repeat("\t", len(segments)+2)

	fmt.Fprintf(w, "Concurrency:\t%d / %d workers in use\n", s.ConcurrencyCurrent, s.ConcurrencyMaximum)
	if s.EnabledSlots > 0 {
		fmt.Fprintf(w, "Enabled slots:\t%d\n", s.EnabledSlots)
	}
	if s.PermitsReleased > 0 {
		fmt.Fprintf(w, "Permits released:\t%d\n", s.PermitsReleased)
	}
	fmt.Fprintf(w, "%s\n", tabs)

	// line writes one row: the (all) cell followed by a cell per segment, newest first
	line := func(label, all string, cell func(*Segment) string) {
		fmt.Fprintf(w, "%s:\t%s\t", label, all)
		for _, i := range segments {
			fmt.Fprintf(w, "%s\t", cell(s.Segments[i]))
		}
		fmt.Fprintf(w, "%s\n", tabs)
	}
	heading := func(title string) {
		fmt.Fprintf(w, "%s\n", tabs)
		fmt.Fprintf(w, "%s%s\n", title, tabs)
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("-", len(title)), tabs)
	}
	ms := func(d time.Duration) string { return fmt.Sprintf("%.1f ms", d.Seconds()*1000) }
	count := func(n int64) string { return strconv.FormatInt(n, 10) }
	rounded := func(f float64) string { return fmt.Sprintf("%.0f", f) }

	line("Command", "(all)", func(g *Segment) string { return g.Command })
	line("Actual rate", rounded(s.All.ActualRate), func(g *Segment) string { return rounded(g.ActualRate) })
	line("Avg concurrency", rounded(s.All.AverageConcurrency), func(g *Segment) string { return rounded(g.AverageConcurrency) })
	line("Duration", fmtDuration(s.All.Duration), func(g *Segment) string { return fmtDuration(g.Duration) })

	heading("Total")
	line("Started", count(s.All.Summary.Started), func(g *Segment) string { return count(g.Summary.Started) })
	line("Finished", count(s.All.Summary.Finished), func(g *Segment) string { return count(g.Summary.Finished) })
	line("Success", count(s.All.Summary.Success), func(g *Segment) string { return count(g.Summary.Success) })
	line("Fail", count(s.All.Summary.Fail), func(g *Segment) string { return count(g.Summary.Fail) })
	line("Mean", ms(s.All.Summary.Mean), func(g *Segment) string { return ms(g.Summary.Mean) })
	line("95th", ms(s.All.Summary.NinetyFifth), func(g *Segment) string { return ms(g.Summary.NinetyFifth) })

	for index, all := range s.All.Status {
		heading(all.Status)
		line("Count", fmt.Sprintf("%d (%.0f%%)", all.Count, 100*all.Fraction), func(g *Segment) string {
			st := g.Status[index]
			if st.Count == 0 {
				return "0"
			}
			return fmt.Sprintf("%d (%.0f%%)", st.Count, 100*st.Fraction)
		})
		line("Mean", ms(all.Mean), func(g *Segment) string {
			st := g.Status[index]
			if st.Count == 0 {
				return "-"
			}
			return ms(st.Mean)
		})
	}
	w.Flush()
	return buf.String()
}

func fmtDuration(d time.Duration) string {
	sec := int(d.Seconds())
	min := sec / 60
	hr := min / 60
	if hr > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hr, min%60, sec%60)
	}
	return fmt.Sprintf("%02d:%02d", min%60, sec%60)
}
