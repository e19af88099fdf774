package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/timelens/timelens/internal/aggregate"
	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/discovery"
	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/query"
	"github.com/timelens/timelens/internal/store/memory"
)

var (
	silent = zerolog.New(nil).Level(zerolog.Disabled)
	base   = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
)

func at(min int) time.Time {
	return base.Add(time.Duration(min) * time.Minute)
}

func timed(startMin int, durMin float64, data map[string]any) event.TimedEvent {
	return event.TimedEvent{Timestamp: at(startMin), Duration: durMin * 60, Data: data}
}

func seed(t *testing.T, s *memory.Store, b event.Bucket, events ...event.TimedEvent) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateBucket(ctx, b); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if err := s.InsertEvents(ctx, b.ID, events); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
}

// newEngine wires a full pipeline over a seeded memory store.
func newEngine(t *testing.T, s *memory.Store, categories []config.CategoryRule) *Engine {
	t.Helper()
	cfg := &config.Config{
		Canonical: config.CanonicalConfig{
			BrowserApps: []string{"Chrome"},
			EditorApps:  []string{"Code"},
		},
		Categories: categories,
	}
	disc := discovery.New(s, time.Minute, silent)
	fetcher := query.NewFetcher(s, disc, cfg.Canonical, silent)
	return New(cfg, fetcher, disc, silent)
}

func TestAggregateEndToEnd(t *testing.T) {
	s := memory.Open()

	seed(t, s, event.Bucket{ID: "afk", Kind: event.KindAFK, Host: "h"},
		timed(0, 60, map[string]any{"status": "not-afk"}),
	)
	seed(t, s, event.Bucket{ID: "win", Kind: event.KindWindow, Host: "h"},
		timed(0, 30, map[string]any{"app": "Chrome", "title": "github"}),
		timed(30, 30, map[string]any{"app": "Code", "title": "main.go"}),
		timed(60, 30, map[string]any{"app": "Slack", "title": "general"}), // AFK after 10:00
	)
	seed(t, s, event.Bucket{ID: "web", Kind: event.KindBrowser, Host: "h"},
		timed(0, 30, map[string]any{"url": "https://github.com/timelens", "title": "timelens"}),
	)
	seed(t, s, event.Bucket{ID: "cal", Kind: event.KindCalendar, Host: "Work"},
		timed(30, 60, map[string]any{"summary": "planning", "calendar": "Work"}),
	)

	e := newEngine(t, s, []config.CategoryRule{
		{ID: 1, Name: []string{"Work"}, Regex: "github|main"},
	})

	rep, err := e.Aggregate(context.Background(), Request{
		Start:   base,
		End:     base.Add(2 * time.Hour),
		GroupBy: []aggregate.Key{aggregate.KeyApp},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	// AFK clipping drops the Slack event entirely.
	if rep.Calendar.FocusSeconds != 3600 {
		t.Errorf("focus = %v, want 3600 (Slack event clipped)", rep.Calendar.FocusSeconds)
	}
	// Meeting 09:30-10:30 overlaps focus for its first half.
	if rep.Calendar.OverlapSeconds != 1800 {
		t.Errorf("overlap = %v, want 1800", rep.Calendar.OverlapSeconds)
	}
	if rep.Calendar.MeetingOnlySeconds != 1800 {
		t.Errorf("meeting_only = %v, want 1800", rep.Calendar.MeetingOnlySeconds)
	}
	if got := rep.Calendar.FocusSeconds + rep.Calendar.MeetingOnlySeconds; rep.Calendar.UnionSeconds != got {
		t.Errorf("union = %v, want focus+meeting_only = %v", rep.Calendar.UnionSeconds, got)
	}

	byApp := make(map[string]aggregate.Row)
	for _, r := range rep.Rows {
		byApp[r.Hierarchy[0]] = r
	}
	if _, ok := byApp["Slack"]; ok {
		t.Error("Slack row present, want it clipped by AFK filter")
	}
	chrome, ok := byApp["Chrome"]
	if !ok {
		t.Fatal("no Chrome row")
	}
	if chrome.Seconds != 1800 {
		t.Errorf("Chrome = %v, want 1800", chrome.Seconds)
	}
	if len(chrome.Domains) != 1 || chrome.Domains[0] != "github.com" {
		t.Errorf("Chrome domains = %v, want [github.com]", chrome.Domains)
	}
	if len(chrome.Categories) != 1 || chrome.Categories[0] != "Work" {
		t.Errorf("Chrome categories = %v, want [Work]", chrome.Categories)
	}

	// The unattended half of the meeting shows up as a calendar-only
	// row attributed to the calendar name.
	work, ok := byApp["Work"]
	if !ok {
		t.Fatal("no calendar-only Work row")
	}
	if !work.CalendarOnly || work.Seconds != 1800 {
		t.Errorf("Work row = %+v, want calendar-only 1800s", work)
	}
}

func TestAggregateRejectsInvalidRange(t *testing.T) {
	e := newEngine(t, memory.Open(), nil)

	_, err := e.Aggregate(context.Background(), Request{Start: base, End: base})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}

	_, err = e.Aggregate(context.Background(), Request{Start: base, End: base.Add(-time.Hour)})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("reversed range error = %v, want ErrInvalidRange", err)
	}
}

func TestAggregateEmptyStore(t *testing.T) {
	e := newEngine(t, memory.Open(), nil)

	rep, err := e.Aggregate(context.Background(), Request{Start: base, End: base.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rep.Rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rep.Rows))
	}
	if rep.Calendar.UnionSeconds != 0 {
		t.Errorf("union = %v, want 0", rep.Calendar.UnionSeconds)
	}
}

// TestSetRulesTakesEffect: a published rule set classifies subsequent
// requests without rebuilding the engine.
func TestSetRulesTakesEffect(t *testing.T) {
	s := memory.Open()
	seed(t, s, event.Bucket{ID: "win", Kind: event.KindWindow, Host: "h"},
		timed(0, 30, map[string]any{"app": "Chrome", "title": "github"}),
	)

	e := newEngine(t, s, nil)
	req := Request{Start: base, End: base.Add(time.Hour), GroupBy: []aggregate.Key{aggregate.KeyCategory}}

	rep, err := e.Aggregate(context.Background(), req)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rep.Rows) != 1 || rep.Rows[0].Hierarchy[0] != "Uncategorized" {
		t.Fatalf("rows = %+v, want single Uncategorized row", rep.Rows)
	}

	e.SetRules([]config.CategoryRule{{ID: 1, Name: []string{"Work"}, Regex: "github"}})

	rep, err = e.Aggregate(context.Background(), req)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rep.Rows) != 1 || rep.Rows[0].Hierarchy[0] != "Work" {
		t.Errorf("rows = %+v, want single Work row after rule publish", rep.Rows)
	}
}

func TestTimeline(t *testing.T) {
	s := memory.Open()
	seed(t, s, event.Bucket{ID: "win", Kind: event.KindWindow, Host: "h"},
		timed(0, 30, map[string]any{"app": "Chrome", "title": "github"}),
		timed(30, 15, map[string]any{"app": "Code", "title": "main.go"}),
	)

	e := newEngine(t, s, []config.CategoryRule{
		{ID: 1, Name: []string{"Work"}, Regex: "github"},
	})

	events, summary, err := e.Timeline(context.Background(), base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if summary.FocusSeconds != 2700 {
		t.Errorf("focus = %v, want 2700", summary.FocusSeconds)
	}
	if len(events[0].Categories) != 1 || events[0].Categories[0][0] != "Work" {
		t.Errorf("categories = %v, want [[Work]]", events[0].Categories)
	}

	if _, _, err := e.Timeline(context.Background(), base, base); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}
}
