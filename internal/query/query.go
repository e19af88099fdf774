// Package query composes per-bucket queries into AFK-filtered, merged
// event sets. It is the only layer that talks to the store; everything
// downstream works on the event lists it returns.
package query

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/discovery"
	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/interval"
	"github.com/timelens/timelens/internal/metrics"
	"github.com/timelens/timelens/internal/store"
)

// notAFKStatus is the AFK watcher's marker for at-keyboard periods.
const notAFKStatus = "not-afk"

// Result is a merged event list for one bucket kind plus its total
// duration.
type Result struct {
	Events  []event.TimedEvent
	Seconds float64
}

// Canonical is the batched fetch feeding enrichment: the AFK-filtered
// window timeline plus the browser/editor/calendar streams scoped to
// it.
type Canonical struct {
	Window   Result
	Browser  Result
	Editor   Result
	Calendar Result
}

// Fetcher builds and runs query plans against the store.
type Fetcher struct {
	store  store.Store
	disc   *discovery.Discovery
	apps   config.CanonicalConfig
	logger zerolog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(s store.Store, d *discovery.Discovery, apps config.CanonicalConfig, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		store:  s,
		disc:   d,
		apps:   apps,
		logger: logger.With().Str("component", "query").Logger(),
	}
}

// Events fetches and merges all buckets of one kind over r. A kind
// with zero buckets, or a fetch failure, degrades to an empty result;
// it never aborts the request.
func (f *Fetcher) Events(ctx context.Context, kind event.Kind, r interval.Span) Result {
	return f.fetch(ctx, kind, r, nil, false)
}

// ActiveEvents is Events with AFK filtering applied: events are
// clipped to the not-afk sub-periods of the AFK stream. With no AFK
// bucket present there is nothing to clip against and the fetch fails
// open, returning the events unfiltered.
func (f *Fetcher) ActiveEvents(ctx context.Context, kind event.Kind, r interval.Span) Result {
	periods, haveAFK := f.notAFKPeriods(ctx, r)
	return f.fetch(ctx, kind, r, periods, haveAFK)
}

// Canonical runs the batched canonical fetch. Window, AFK, and
// calendar buckets are fetched concurrently; browser and editor
// streams are then clipped to the sub-periods in which a configured
// browser/editor app held window focus, so idle buckets that kept
// emitting while unfocused are not double-counted.
func (f *Fetcher) Canonical(ctx context.Context, r interval.Span) Canonical {
	var (
		out     Canonical
		periods []interval.Span
		haveAFK bool
		wg      sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		periods, haveAFK = f.notAFKPeriods(ctx, r)
	}()
	go func() {
		defer wg.Done()
		out.Window = f.fetch(ctx, event.KindWindow, r, nil, false)
	}()
	go func() {
		defer wg.Done()
		out.Calendar = f.fetch(ctx, event.KindCalendar, r, nil, false)
	}()
	wg.Wait()

	if haveAFK {
		out.Window = clipResult(out.Window, periods)
	}

	browserPeriods := focusPeriods(out.Window.Events, f.apps.BrowserApps)
	editorPeriods := focusPeriods(out.Window.Events, f.apps.EditorApps)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if len(browserPeriods) > 0 {
			out.Browser = f.fetch(ctx, event.KindBrowser, r, browserPeriods, true)
		}
	}()
	go func() {
		defer wg.Done()
		if len(editorPeriods) > 0 {
			out.Editor = f.fetch(ctx, event.KindEditor, r, editorPeriods, true)
		}
	}()
	wg.Wait()

	return out
}

// fetch builds and runs the plan for one kind, optionally clipping to
// allowed periods.
func (f *Fetcher) fetch(ctx context.Context, kind event.Kind, r interval.Span, periods []interval.Span, clip bool) Result {
	buckets, err := f.disc.ByKind(ctx, kind)
	if err != nil {
		f.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Bucket discovery failed, degrading to empty result")
		metrics.FetchErrors.WithLabelValues(string(kind)).Inc()
		return Result{}
	}
	if len(buckets) == 0 {
		return Result{}
	}

	plan := store.NewPlan().Fetch(discovery.IDs(buckets), r).Merge()
	if clip {
		plan.ClipPeriods(periods)
	}

	events, err := f.store.Query(ctx, *plan)
	if err != nil {
		// Partial results still count; only the failing buckets
		// contribute nothing.
		f.logger.Warn().Err(err).Str("kind", string(kind)).Int("events", len(events)).
			Msg("Bucket fetch degraded")
		metrics.FetchErrors.WithLabelValues(string(kind)).Inc()
	}
	metrics.EventsFetched.WithLabelValues(string(kind)).Add(float64(len(events)))

	return Result{Events: events, Seconds: store.TotalSeconds(events)}
}

// notAFKPeriods derives the merged at-keyboard periods from the AFK
// stream. The second return value reports whether any AFK bucket
// exists at all; absence of AFK data must never suppress activity.
func (f *Fetcher) notAFKPeriods(ctx context.Context, r interval.Span) ([]interval.Span, bool) {
	buckets, err := f.disc.ByKind(ctx, event.KindAFK)
	if err != nil || len(buckets) == 0 {
		if err != nil {
			f.logger.Warn().Err(err).Msg("AFK bucket discovery failed, skipping AFK filter")
		}
		return nil, false
	}

	plan := store.NewPlan().
		Fetch(discovery.IDs(buckets), r).
		Merge().
		FilterField("status", []string{notAFKStatus})
	events, err := f.store.Query(ctx, *plan)
	if err != nil {
		f.logger.Warn().Err(err).Int("events", len(events)).Msg("AFK fetch degraded")
		metrics.FetchErrors.WithLabelValues(string(event.KindAFK)).Inc()
	}

	spans := make([]interval.Span, 0, len(events))
	for _, e := range events {
		if e.Valid() {
			spans = append(spans, e.Span())
		}
	}
	return interval.Merge(spans), true
}

// focusPeriods returns the merged sub-periods in which the focused
// window app was one of the given names.
func focusPeriods(window []event.TimedEvent, apps []string) []interval.Span {
	allowed := make(map[string]struct{}, len(apps))
	for _, a := range apps {
		allowed[a] = struct{}{}
	}

	var spans []interval.Span
	for _, e := range window {
		if !e.Valid() {
			continue
		}
		if _, ok := allowed[e.Str("app")]; ok {
			spans = append(spans, e.Span())
		}
	}
	return interval.Merge(spans)
}

func clipResult(res Result, periods []interval.Span) Result {
	clipped := store.ClipToPeriods(res.Events, periods)
	return Result{Events: clipped, Seconds: store.TotalSeconds(clipped)}
}
