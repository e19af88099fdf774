// Package event defines the data model shared by the fetch, enrichment,
// overlay, and aggregation layers.
package event

import (
	"math"
	"time"

	"github.com/timelens/timelens/internal/interval"
)

// Kind identifies what a bucket's watcher observes.
type Kind string

const (
	KindWindow   Kind = "window"
	KindBrowser  Kind = "browser"
	KindEditor   Kind = "editor"
	KindAFK      Kind = "afk"
	KindCalendar Kind = "calendar"
)

// Bucket is a named source stream of timed events. Buckets are
// discovered, never created, by the aggregation engine; lifecycle is
// owned by the watchers that feed the store.
type Bucket struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Host string `json:"host"`
}

// TimedEvent is one observation from a source stream: a timestamp, a
// duration in seconds, and a free-form payload of scalar fields.
// Immutable once fetched.
type TimedEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data,omitempty"`
}

// Span returns the event's occupied interval [Timestamp, Timestamp+Duration).
func (e TimedEvent) Span() interval.Span {
	return interval.Span{
		Start: e.Timestamp,
		End:   e.Timestamp.Add(time.Duration(e.Duration * float64(time.Second))),
	}
}

// Valid reports whether the event has a usable interval: a finite,
// positive duration.
func (e TimedEvent) Valid() bool {
	return e.Duration > 0 && !math.IsInf(e.Duration, 0) && !math.IsNaN(e.Duration)
}

// Str returns a string field from the payload, or "" when absent or
// not a string.
func (e TimedEvent) Str(key string) string {
	if e.Data == nil {
		return ""
	}
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// Browser is structured detail from an overlapping browser event.
type Browser struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
	Title  string `json:"title,omitempty"`
}

// Editor is structured detail from an overlapping editor event, or the
// lower-fidelity result of title parsing when no editor watcher covered
// the interval.
type Editor struct {
	File     string `json:"file,omitempty"`
	Project  string `json:"project,omitempty"`
	Language string `json:"language,omitempty"`
}

// Meeting records one calendar meeting's overlap with an enriched
// event. One event may accumulate annotations from several meetings.
type Meeting struct {
	Summary        string  `json:"summary"`
	Calendar       string  `json:"calendar"`
	OverlapSeconds float64 `json:"overlap_seconds"`
}

// Enriched is one window-focus event with enrichment overlaid: at most
// one browser detail, at most one editor detail, zero or more meeting
// annotations, and zero or more matched category paths. Calendar-only
// pseudo-events share this shape with CalendarOnly set; they are
// synthesized during overlay and never fetched from a source.
type Enriched struct {
	Timestamp time.Time `json:"timestamp"`
	Duration  float64   `json:"duration"`
	App       string    `json:"app"`
	Title     string    `json:"title,omitempty"`

	Browser *Browser `json:"browser,omitempty"`
	Editor  *Editor  `json:"editor,omitempty"`

	Meetings     []Meeting `json:"meetings,omitempty"`
	Categories   [][]string `json:"categories,omitempty"`
	CalendarOnly bool       `json:"calendar_only,omitempty"`
}

// Span returns the enriched event's occupied interval.
func (e *Enriched) Span() interval.Span {
	return interval.Span{
		Start: e.Timestamp,
		End:   e.Timestamp.Add(time.Duration(e.Duration * float64(time.Second))),
	}
}

// MeetingOverlapSeconds sums the overlap recorded across all meeting
// annotations on the event.
func (e *Enriched) MeetingOverlapSeconds() float64 {
	var total float64
	for _, m := range e.Meetings {
		total += m.OverlapSeconds
	}
	return total
}
