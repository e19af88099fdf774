// Package ics imports calendar meetings from iCalendar payloads into a
// calendar bucket, expanding recurring events into concrete occurrences.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/store"
)

// Recurring events with no COUNT/UNTIL would otherwise expand without
// bound over a large import range.
const maxOccurrencesPerEvent = 5000

// Meeting is one VEVENT as parsed, before recurrence expansion.
type Meeting struct {
	UID     string
	Summary string

	Start time.Time
	End   time.Time

	RawRRule string
	ExDates  []time.Time
}

// Parse reads every VEVENT out of an ICS payload. A malformed VEVENT
// is logged and skipped; the payload as a whole only fails when it is
// not parseable iCalendar at all.
func Parse(body []byte, logger zerolog.Logger) ([]Meeting, error) {
	log := logger.With().Str("component", "ics").Logger()

	if len(body) == 0 {
		return nil, errors.New("empty ICS payload")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var meetings []Meeting
	for _, ve := range cal.Events() {
		m, err := parseVEvent(ve)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping malformed VEVENT")
			continue
		}
		meetings = append(meetings, m)
	}
	log.Debug().Int("events", len(meetings)).Msg("Parsed calendar")
	return meetings, nil
}

func parseVEvent(ve *ical.VEvent) (Meeting, error) {
	var m Meeting

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return m, errors.New("missing UID")
	}
	m.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		m.Summary = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return m, fmt.Errorf("event %s: %w", m.UID, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return m, fmt.Errorf("event %s: %w", m.UID, err)
	}
	if !end.After(start) {
		return m, fmt.Errorf("event %s: end %v not after start %v", m.UID, end, start)
	}
	m.Start = start
	m.End = end

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		m.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseICSTime(part)
			if err != nil {
				return m, fmt.Errorf("event %s: bad EXDATE %q: %w", m.UID, part, err)
			}
			m.ExDates = append(m.ExDates, t)
		}
	}
	return m, nil
}

func parseICSTime(v string) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}

// Expand turns meetings into concrete timed events within [start, end),
// expanding RRULE recurrences and honoring EXDATE exclusions. The
// calendar name is attached to every occurrence so downstream
// attribution has a source label.
func Expand(meetings []Meeting, calendar string, start, end time.Time, logger zerolog.Logger) []event.TimedEvent {
	log := logger.With().Str("component", "ics").Logger()

	var out []event.TimedEvent
	for _, m := range meetings {
		if m.RawRRule == "" {
			if m.End.After(start) && m.Start.Before(end) {
				out = append(out, occurrence(m, calendar, m.Start, m.End))
			}
			continue
		}

		r, err := rrule.StrToRRule(m.RawRRule)
		if err != nil {
			log.Warn().Err(err).Str("uid", m.UID).Str("rrule", m.RawRRule).
				Msg("Skipping unparseable recurrence rule")
			continue
		}
		r.DTStart(m.Start)

		var set rrule.Set
		set.RRule(r)
		for _, ex := range m.ExDates {
			set.ExDate(ex.In(m.Start.Location()))
		}

		duration := m.End.Sub(m.Start)
		starts := set.Between(start.In(m.Start.Location()), end.In(m.Start.Location()), true)
		if len(starts) > maxOccurrencesPerEvent {
			log.Warn().Str("uid", m.UID).Int("cap", maxOccurrencesPerEvent).
				Msg("Truncating recurrence expansion")
			starts = starts[:maxOccurrencesPerEvent]
		}
		for _, s := range starts {
			out = append(out, occurrence(m, calendar, s, s.Add(duration)))
		}
	}
	return out
}

func occurrence(m Meeting, calendar string, start, end time.Time) event.TimedEvent {
	return event.TimedEvent{
		Timestamp: start,
		Duration:  end.Sub(start).Seconds(),
		Data: map[string]any{
			"uid":      m.UID,
			"summary":  m.Summary,
			"calendar": calendar,
		},
	}
}

// Import parses an ICS payload and writes its occurrences within
// [start, end) into bucketID, creating the bucket when absent. Returns
// the number of events written. Re-importing the same payload is
// idempotent for backends that deduplicate identical events.
func Import(ctx context.Context, w store.Writer, bucketID, calendar string, body []byte, start, end time.Time, logger zerolog.Logger) (int, error) {
	meetings, err := Parse(body, logger)
	if err != nil {
		return 0, err
	}
	events := Expand(meetings, calendar, start, end, logger)

	bucket := event.Bucket{ID: bucketID, Kind: event.KindCalendar, Host: calendar}
	if err := w.CreateBucket(ctx, bucket); err != nil {
		return 0, fmt.Errorf("creating bucket %s: %w", bucketID, err)
	}
	if err := w.InsertEvents(ctx, bucketID, events); err != nil {
		return 0, fmt.Errorf("inserting events into %s: %w", bucketID, err)
	}
	return len(events), nil
}
