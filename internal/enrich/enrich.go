// Package enrich attaches browser and editor detail to window-focus
// events by interval overlap. Exact-timestamp matching is deliberately
// not used: independent watchers do not align their sampling clocks.
package enrich

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/interval"
)

// Enricher builds the canonical timeline from the window stream.
type Enricher struct {
	rules  []titleRule
	logger zerolog.Logger
}

type titleRule struct {
	app  *regexp.Regexp
	kind string
}

// New compiles the title-rule table. A rule with an invalid app regex
// is logged and skipped; it never fails construction.
func New(rules []config.TitleRule, logger zerolog.Logger) *Enricher {
	e := &Enricher{logger: logger.With().Str("component", "enrich").Logger()}

	for _, r := range rules {
		re, err := regexp.Compile(r.App)
		if err != nil {
			e.logger.Warn().Err(err).Str("pattern", r.App).Msg("Invalid title rule pattern, skipping")
			continue
		}
		if r.Kind != "terminal" && r.Kind != "ide" {
			e.logger.Warn().Str("kind", r.Kind).Msg("Unknown title rule kind, skipping")
			continue
		}
		e.rules = append(e.rules, titleRule{app: re, kind: r.Kind})
	}
	return e
}

// Enrich produces one enriched event per window event, in input order.
// At most one browser and one editor detail attach to each window
// event: the first event in stream order whose interval overlaps wins,
// and scanning stops there. Cardinality with the window stream is 1:1
// regardless of how many browser/editor events exist.
func (e *Enricher) Enrich(window, browser, editor []event.TimedEvent) []*event.Enriched {
	out := make([]*event.Enriched, 0, len(window))

	for _, w := range window {
		en := &event.Enriched{
			Timestamp: w.Timestamp,
			Duration:  w.Duration,
			App:       w.Str("app"),
			Title:     w.Str("title"),
		}
		span := en.Span()

		for _, b := range browser {
			if _, ok := interval.Intersect(span, b.Span()); ok {
				en.Browser = browserDetail(b)
				break
			}
		}
		for _, ed := range editor {
			if _, ok := interval.Intersect(span, ed.Span()); ok {
				en.Editor = editorDetail(ed)
				break
			}
		}

		if en.Browser == nil && en.Editor == nil {
			en.Editor = e.parseTitle(en.App, en.Title)
		}

		out = append(out, en)
	}
	return out
}

// parseTitle is the lower-fidelity fallback for apps with no
// structured watcher: terminals and IDEs encode useful detail in their
// window titles.
func (e *Enricher) parseTitle(app, title string) *event.Editor {
	for _, r := range e.rules {
		if !r.app.MatchString(app) {
			continue
		}
		switch r.kind {
		case "terminal":
			return parseTerminalTitle(title)
		case "ide":
			return parseIDETitle(title)
		}
	}
	return nil
}

func browserDetail(b event.TimedEvent) *event.Browser {
	rawURL := b.Str("url")
	return &event.Browser{
		URL:    rawURL,
		Domain: domainOf(rawURL),
		Title:  b.Str("title"),
	}
}

func editorDetail(ed event.TimedEvent) *event.Editor {
	return &event.Editor{
		File:     ed.Str("file"),
		Project:  ed.Str("project"),
		Language: ed.Str("language"),
	}
}

// domainOf extracts the registrable host from a URL, dropping a
// leading www.
func domainOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
