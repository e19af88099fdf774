package store

import (
	"reflect"
	"sort"

	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/interval"
)

// mergeEvents sorts events by timestamp and drops exact duplicates
// (same timestamp, duration, and payload). Two watchers of the same
// kind running on one host report the same observation twice; this is
// the single place that collapse happens.
func mergeEvents(events []event.TimedEvent) []event.TimedEvent {
	if len(events) == 0 {
		return events
	}

	sorted := make([]event.TimedEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := sorted[:1]
	for _, e := range sorted[1:] {
		last := out[len(out)-1]
		if e.Timestamp.Equal(last.Timestamp) && e.Duration == last.Duration && reflect.DeepEqual(e.Data, last.Data) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// filterField keeps events whose payload field key equals one of vals.
func filterField(events []event.TimedEvent, key string, vals []string) []event.TimedEvent {
	allowed := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		allowed[v] = struct{}{}
	}

	out := events[:0]
	for _, e := range events {
		if _, ok := allowed[e.Str(key)]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ClipToPeriods intersects each event with the allowed periods. Events
// straddling a period boundary are split into one clipped event per
// intersection; events with no overlap are dropped. Periods are merged
// first so the per-event scan sees a sorted disjoint set.
func ClipToPeriods(events []event.TimedEvent, periods []interval.Span) []event.TimedEvent {
	merged := interval.Merge(periods)
	if len(merged) == 0 {
		return nil
	}

	var out []event.TimedEvent
	for _, e := range events {
		span := e.Span()
		for _, p := range merged {
			if !p.Start.Before(span.End) {
				break
			}
			o, ok := interval.Intersect(span, p)
			if !ok {
				continue
			}
			out = append(out, event.TimedEvent{
				Timestamp: o.Start,
				Duration:  o.Seconds(),
				Data:      e.Data,
			})
		}
	}
	return out
}

// TotalSeconds sums the durations of an event list.
func TotalSeconds(events []event.TimedEvent) float64 {
	var total float64
	for _, e := range events {
		total += e.Duration
	}
	return total
}
