// Package overlay reconciles calendar meeting intervals against the
// enriched timeline without double-counting time spent simultaneously
// in a meeting and at the keyboard.
package overlay

import (
	"github.com/rs/zerolog"

	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/interval"
	"github.com/timelens/timelens/internal/metrics"
)

// Summary is the calendar reconciliation tuple exposed to report
// formatters. Formatters must not recompute any of these values.
//
// Invariants: UnionSeconds == FocusSeconds + MeetingOnlySeconds, and
// OverlapSeconds <= MeetingSeconds.
type Summary struct {
	FocusSeconds       float64 `json:"focus_seconds"`
	MeetingSeconds     float64 `json:"meeting_seconds"`
	OverlapSeconds     float64 `json:"overlap_seconds"`
	MeetingOnlySeconds float64 `json:"meeting_only_seconds"`
	UnionSeconds       float64 `json:"union_seconds"`
	MeetingCount       int     `json:"meeting_count"`
}

// Apply overlays meetings onto the enriched timeline. Enriched events
// that intersect a meeting accumulate an annotation with the per-event
// overlap; meeting time with no corresponding activity becomes one
// synthesized calendar-only pseudo-event per meeting, attributed to
// the meeting's calendar name as its application.
//
// The returned slice is the input events plus any calendar-only
// events. Malformed meetings (zero, negative, or non-finite duration)
// are skipped individually; they never fail the overlay.
func Apply(enriched []*event.Enriched, meetings []event.TimedEvent, logger zerolog.Logger) ([]*event.Enriched, Summary) {
	log := logger.With().Str("component", "overlay").Logger()

	var summary Summary
	for _, e := range enriched {
		summary.FocusSeconds += e.Duration
	}

	// Merged activity intervals: all per-meeting overlap math runs
	// against this one set.
	spans := make([]interval.Span, 0, len(enriched))
	for _, e := range enriched {
		spans = append(spans, e.Span())
	}
	occupied := interval.Merge(spans)

	out := enriched
	for _, m := range meetings {
		if !m.Valid() {
			log.Debug().Time("start", m.Timestamp).Float64("duration", m.Duration).
				Msg("Skipping malformed meeting")
			continue
		}

		mSpan := m.Span()
		summary.MeetingCount += 1
		summary.MeetingSeconds += m.Duration

		overlap := interval.OverlapDuration(mSpan, occupied).Seconds()
		meetingOnly := m.Duration - overlap
		if meetingOnly < 0 {
			meetingOnly = 0
		}
		summary.OverlapSeconds += overlap
		summary.MeetingOnlySeconds += meetingOnly

		summaryText := meetingSummary(m)
		calendarName := m.Str("calendar")

		// Annotate every enriched event the meeting touches.
		for _, e := range enriched {
			o, ok := interval.Intersect(e.Span(), mSpan)
			if !ok {
				continue
			}
			e.Meetings = append(e.Meetings, event.Meeting{
				Summary:        summaryText,
				Calendar:       calendarName,
				OverlapSeconds: o.Seconds(),
			})
		}

		if meetingOnly > 0 {
			metrics.CalendarOnlyEvents.Inc()
			out = append(out, &event.Enriched{
				Timestamp:    m.Timestamp,
				Duration:     meetingOnly,
				App:          calendarName,
				Title:        summaryText,
				CalendarOnly: true,
				Meetings: []event.Meeting{{
					Summary:        summaryText,
					Calendar:       calendarName,
					OverlapSeconds: 0,
				}},
			})
		}
	}

	summary.UnionSeconds = summary.FocusSeconds + summary.MeetingOnlySeconds
	return out, summary
}

func meetingSummary(m event.TimedEvent) string {
	if s := m.Str("summary"); s != "" {
		return s
	}
	return m.Str("title")
}
