package enrich

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/event"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func at(min int) time.Time {
	return base.Add(time.Duration(min) * time.Minute)
}

func newEnricher(t *testing.T) *Enricher {
	t.Helper()

	rules := []config.TitleRule{
		{App: `(?i)^(alacritty|kitty|terminal)$`, Kind: "terminal"},
		{App: `(?i)^(goland|pycharm|intellij idea)$`, Kind: "ide"},
	}
	return New(rules, zerolog.New(nil).Level(zerolog.Disabled))
}

func windowEvent(startMin int, durMin float64, app, title string) event.TimedEvent {
	return event.TimedEvent{
		Timestamp: at(startMin),
		Duration:  durMin * 60,
		Data:      map[string]any{"app": app, "title": title},
	}
}

func browserEvent(startMin int, durMin float64, url string) event.TimedEvent {
	return event.TimedEvent{
		Timestamp: at(startMin),
		Duration:  durMin * 60,
		Data:      map[string]any{"url": url, "title": "page"},
	}
}

func editorEvent(startMin int, durMin float64, file, project, language string) event.TimedEvent {
	return event.TimedEvent{
		Timestamp: at(startMin),
		Duration:  durMin * 60,
		Data:      map[string]any{"file": file, "project": project, "language": language},
	}
}

// TestBrowserOverlapAttached: one window event 09:00-09:10, one
// browser event 09:02-09:05 inside it.
func TestBrowserOverlapAttached(t *testing.T) {
	e := newEnricher(t)

	got := e.Enrich(
		[]event.TimedEvent{windowEvent(0, 10, "Chrome", "x.com - Chrome")},
		[]event.TimedEvent{browserEvent(2, 3, "https://x.com")},
		nil,
	)

	if len(got) != 1 {
		t.Fatalf("Enrich() returned %d events, want 1", len(got))
	}
	en := got[0]
	if en.Duration != 600 {
		t.Errorf("duration = %v, want 600", en.Duration)
	}
	if en.Browser == nil || en.Browser.Domain != "x.com" {
		t.Errorf("browser = %+v, want domain x.com", en.Browser)
	}
}

func TestCardinalityPreserved(t *testing.T) {
	e := newEnricher(t)

	window := []event.TimedEvent{
		windowEvent(0, 10, "Chrome", "a"),
		windowEvent(10, 10, "Code", "b"),
		windowEvent(20, 10, "Slack", "c"),
	}
	// Many browser events overlapping the first window event must not
	// multiply rows.
	browser := []event.TimedEvent{
		browserEvent(0, 2, "https://a.com"),
		browserEvent(2, 2, "https://b.com"),
		browserEvent(4, 2, "https://c.com"),
	}
	editor := []event.TimedEvent{
		editorEvent(10, 5, "main.go", "timelens", "Go"),
		editorEvent(15, 5, "other.go", "timelens", "Go"),
	}

	got := e.Enrich(window, browser, editor)
	if len(got) != len(window) {
		t.Fatalf("Enrich() returned %d events, want %d (1:1 with window stream)", len(got), len(window))
	}
}

// TestFirstOverlapWins: the first chronologically overlapping event is
// attached even when a later one overlaps more.
func TestFirstOverlapWins(t *testing.T) {
	e := newEnricher(t)

	window := []event.TimedEvent{windowEvent(0, 10, "Chrome", "x")}
	browser := []event.TimedEvent{
		browserEvent(0, 1, "https://first.com"),
		browserEvent(1, 9, "https://bigger-overlap.com"),
	}

	got := e.Enrich(window, browser, nil)
	if got[0].Browser == nil || got[0].Browser.Domain != "first.com" {
		t.Errorf("browser = %+v, want first.com (first overlap wins)", got[0].Browser)
	}
}

func TestEditorDetailAttached(t *testing.T) {
	e := newEnricher(t)

	got := e.Enrich(
		[]event.TimedEvent{windowEvent(0, 10, "Code", "main.go")},
		nil,
		[]event.TimedEvent{editorEvent(3, 2, "main.go", "timelens", "Go")},
	)
	ed := got[0].Editor
	if ed == nil || ed.Project != "timelens" || ed.Language != "Go" {
		t.Errorf("editor = %+v, want timelens/Go detail", ed)
	}
}

func TestNoOverlapNoEnrichment(t *testing.T) {
	e := newEnricher(t)

	got := e.Enrich(
		[]event.TimedEvent{windowEvent(0, 10, "Slack", "chat")},
		[]event.TimedEvent{browserEvent(20, 5, "https://x.com")}, // disjoint
		nil,
	)
	if got[0].Browser != nil || got[0].Editor != nil {
		t.Errorf("event = %+v, want no enrichment", got[0])
	}
}

// TestTerminalTitleFallback: a terminal window with no structured
// enrichment gets host/path parsed from its title.
func TestTerminalTitleFallback(t *testing.T) {
	e := newEnricher(t)

	got := e.Enrich(
		[]event.TimedEvent{windowEvent(0, 10, "alacritty", "dev@buildbox: ~/src/timelens")},
		nil, nil,
	)
	ed := got[0].Editor
	if ed == nil {
		t.Fatal("want title-parsed editor detail, got none")
	}
	if ed.Project != "buildbox" {
		t.Errorf("project = %q, want host buildbox", ed.Project)
	}
	if ed.File != "~/src/timelens" {
		t.Errorf("file = %q, want ~/src/timelens", ed.File)
	}
}

// TestIDETitleFallback: JetBrains-style "project – file" titles.
func TestIDETitleFallback(t *testing.T) {
	e := newEnricher(t)

	got := e.Enrich(
		[]event.TimedEvent{windowEvent(0, 10, "GoLand", "timelens – internal/enrich/enrich.go")},
		nil, nil,
	)
	ed := got[0].Editor
	if ed == nil {
		t.Fatal("want title-parsed editor detail, got none")
	}
	if ed.Project != "timelens" || ed.File != "internal/enrich/enrich.go" || ed.Language != "Go" {
		t.Errorf("editor = %+v, want timelens project, .go file, Go language", ed)
	}
}

// TestFallbackSuppressedByStructuredEnrichment: the title heuristic
// only runs when no structured detail covered the interval.
func TestFallbackSuppressedByStructuredEnrichment(t *testing.T) {
	e := newEnricher(t)

	got := e.Enrich(
		[]event.TimedEvent{windowEvent(0, 10, "GoLand", "timelens – main.go")},
		nil,
		[]event.TimedEvent{editorEvent(0, 5, "cmd/timelens/main.go", "timelens", "Go")},
	)
	ed := got[0].Editor
	if ed == nil || ed.File != "cmd/timelens/main.go" {
		t.Errorf("editor = %+v, want the structured watcher detail, not title parse", ed)
	}
}

func TestFallbackSkipsUnmatchedApps(t *testing.T) {
	e := newEnricher(t)

	got := e.Enrich(
		[]event.TimedEvent{windowEvent(0, 10, "Slack", "general - Slack")},
		nil, nil,
	)
	if got[0].Editor != nil {
		t.Errorf("editor = %+v, want nil for non-terminal non-IDE app", got[0].Editor)
	}
}

func TestDomainOf(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.example.com/path", "example.com"},
		{"https://x.com", "x.com"},
		{"http://sub.domain.org/a?b=c", "sub.domain.org"},
		{"not a url", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := domainOf(tt.url); got != tt.want {
			t.Errorf("domainOf(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
