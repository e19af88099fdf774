package ics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/interval"
	"github.com/timelens/timelens/internal/store"
	"github.com/timelens/timelens/internal/store/memory"
)

var silent = zerolog.New(nil).Level(zerolog.Disabled)

func payload(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func vevent(lines ...string) []string {
	return append(append([]string{"BEGIN:VEVENT"}, lines...), "END:VEVENT")
}

func TestParseSingleEvent(t *testing.T) {
	body := payload(vevent(
		"UID:standup-1",
		"SUMMARY:Standup",
		"DTSTART:20250310T100000Z",
		"DTEND:20250310T101500Z",
	)...)

	meetings, err := Parse(body, silent)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(meetings) != 1 {
		t.Fatalf("got %d meetings, want 1", len(meetings))
	}
	m := meetings[0]
	if m.UID != "standup-1" || m.Summary != "Standup" {
		t.Errorf("meeting = %+v", m)
	}
	if m.End.Sub(m.Start) != 15*time.Minute {
		t.Errorf("duration = %v, want 15m", m.End.Sub(m.Start))
	}
}

func TestParseSkipsMalformedEvent(t *testing.T) {
	lines := vevent(
		// No UID.
		"SUMMARY:broken",
		"DTSTART:20250310T100000Z",
		"DTEND:20250310T110000Z",
	)
	lines = append(lines, vevent(
		"UID:ok-1",
		"SUMMARY:fine",
		"DTSTART:20250310T100000Z",
		"DTEND:20250310T110000Z",
	)...)

	meetings, err := Parse(payload(lines...), silent)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(meetings) != 1 || meetings[0].UID != "ok-1" {
		t.Errorf("meetings = %+v, want only ok-1", meetings)
	}
}

func TestParseEmptyPayload(t *testing.T) {
	if _, err := Parse(nil, silent); err == nil {
		t.Error("Parse(nil) succeeded, want error")
	}
}

func TestExpandRecurring(t *testing.T) {
	body := payload(vevent(
		"UID:daily-1",
		"SUMMARY:Daily sync",
		"DTSTART:20250310T100000Z",
		"DTEND:20250310T103000Z",
		"RRULE:FREQ=DAILY;COUNT=10",
		"EXDATE:20250312T100000Z",
	)...)

	meetings, err := Parse(body, silent)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)
	got := Expand(meetings, "Work", start, end, silent)

	// Mar 10..14 minus the excluded Mar 12.
	if len(got) != 4 {
		t.Fatalf("got %d occurrences, want 4", len(got))
	}
	for _, occ := range got {
		if occ.Duration != 1800 {
			t.Errorf("occurrence duration = %v, want 1800", occ.Duration)
		}
		if occ.Str("calendar") != "Work" || occ.Str("summary") != "Daily sync" {
			t.Errorf("occurrence data = %+v", occ.Data)
		}
	}
	if !got[0].Timestamp.Equal(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("first occurrence at %v", got[0].Timestamp)
	}
}

func TestExpandNonRecurringOutsideRange(t *testing.T) {
	meetings := []Meeting{{
		UID:     "x",
		Summary: "far future",
		Start:   time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC),
	}}

	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := Expand(meetings, "Work", start, start.AddDate(0, 0, 1), silent); len(got) != 0 {
		t.Errorf("got %d occurrences, want 0", len(got))
	}
}

func TestExpandBadRRuleSkipped(t *testing.T) {
	meetings := []Meeting{{
		UID:      "bad",
		Start:    time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=NONSENSE",
	}}

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := Expand(meetings, "Work", start, start.AddDate(0, 1, 0), silent); len(got) != 0 {
		t.Errorf("got %d occurrences, want 0 (bad rule skipped)", len(got))
	}
}

func TestImport(t *testing.T) {
	body := payload(vevent(
		"UID:weekly-1",
		"SUMMARY:Planning",
		"DTSTART:20250310T140000Z",
		"DTEND:20250310T150000Z",
		"RRULE:FREQ=WEEKLY;COUNT=4",
	)...)

	s := memory.Open()
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	n, err := Import(ctx, s, "ics-work", "Work", body, start, end, silent)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 4 {
		t.Errorf("imported %d events, want 4", n)
	}

	buckets, err := s.ListBuckets(ctx)
	if err != nil {
		t.Fatalf("ListBuckets: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Kind != event.KindCalendar || buckets[0].Host != "Work" {
		t.Errorf("buckets = %+v", buckets)
	}

	r := interval.Span{Start: start, End: end}
	res, err := s.Query(ctx, *store.NewPlan().Fetch([]string{"ics-work"}, r))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res) != 4 {
		t.Errorf("stored %d events, want 4", len(res))
	}

	// Re-import is idempotent.
	if _, err := Import(ctx, s, "ics-work", "Work", body, start, end, silent); err != nil {
		t.Fatalf("re-Import: %v", err)
	}
	res, _ = s.Query(ctx, *store.NewPlan().Fetch([]string{"ics-work"}, r))
	if len(res) != 4 {
		t.Errorf("after re-import: %d events, want 4", len(res))
	}
}
