// Package interval implements arithmetic over half-open time spans
// [start, end). Every overlap decision in the engine routes through
// this package so that boundary semantics stay consistent: spans that
// merely touch at a boundary do not overlap.
package interval

import (
	"fmt"
	"sort"
	"time"
)

// Span is a half-open time interval [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

// New builds a Span, rejecting empty or inverted ranges.
func New(start, end time.Time) (Span, error) {
	if !end.After(start) {
		return Span{}, fmt.Errorf("interval: end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return Span{Start: start, End: end}, nil
}

// Valid reports whether the span has positive length.
func (s Span) Valid() bool {
	return s.End.After(s.Start)
}

// Duration returns the span length.
func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Seconds returns the span length in seconds.
func (s Span) Seconds() float64 {
	return s.End.Sub(s.Start).Seconds()
}

// Contains reports whether t falls inside the half-open span.
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// Intersect returns the overlap of a and b. The second return value is
// false when the spans are disjoint; touching at a boundary counts as
// disjoint.
func Intersect(a, b Span) (Span, bool) {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !end.After(start) {
		return Span{}, false
	}
	return Span{Start: start, End: end}, true
}

// Merge sorts the spans by start and coalesces overlapping or adjacent
// spans into one. Invalid (zero or negative length) spans are dropped.
// The result is sorted and pairwise disjoint.
func Merge(spans []Span) []Span {
	valid := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Valid() {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool {
		return valid[i].Start.Before(valid[j].Start)
	})

	merged := valid[:1]
	for _, s := range valid[1:] {
		last := &merged[len(merged)-1]
		if !s.Start.After(last.End) {
			// Overlapping or adjacent: extend the current span.
			if s.End.After(last.End) {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// OverlapDuration sums the intersection length between s and a set of
// spans previously produced by Merge. The set must be sorted and
// disjoint; the scan stops once past s.End.
func OverlapDuration(s Span, merged []Span) time.Duration {
	var total time.Duration
	for _, m := range merged {
		if !m.Start.Before(s.End) {
			break
		}
		if o, ok := Intersect(s, m); ok {
			total += o.Duration()
		}
	}
	return total
}
