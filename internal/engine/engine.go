// Package engine runs the full aggregation pipeline: canonical fetch,
// enrichment, calendar overlay, classification, and grouping.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/timelens/timelens/internal/aggregate"
	"github.com/timelens/timelens/internal/category"
	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/discovery"
	"github.com/timelens/timelens/internal/enrich"
	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/interval"
	"github.com/timelens/timelens/internal/metrics"
	"github.com/timelens/timelens/internal/overlay"
	"github.com/timelens/timelens/internal/query"
)

// ErrInvalidRange rejects requests whose end does not come after their
// start. It is the pipeline's only hard failure: everything past
// validation degrades to partial results instead.
var ErrInvalidRange = errors.New("engine: range end must be after start")

// Request is one aggregation query.
type Request struct {
	Start   time.Time
	End     time.Time
	GroupBy []aggregate.Key
}

// Report is the aggregation result.
type Report struct {
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Rows     []aggregate.Row `json:"rows"`
	Calendar overlay.Summary `json:"calendar"`
}

// Engine wires the pipeline stages together. The category snapshot is
// swapped atomically so rule updates never race a running request.
type Engine struct {
	fetcher  *query.Fetcher
	enricher *enrich.Enricher
	disc     *discovery.Discovery
	rules    atomic.Pointer[category.Snapshot]
	logger   zerolog.Logger
}

// New builds an Engine from configuration and the shared pipeline
// components.
func New(cfg *config.Config, fetcher *query.Fetcher, disc *discovery.Discovery, logger zerolog.Logger) *Engine {
	e := &Engine{
		fetcher:  fetcher,
		enricher: enrich.New(cfg.TitleRules, logger),
		disc:     disc,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
	e.rules.Store(category.NewSnapshot(cfg.Categories, logger))
	return e
}

// SetRules publishes a new category rule set. In-flight requests keep
// the snapshot they started with. The discovery cache is invalidated
// alongside so the next request sees both fresh rules and fresh
// buckets.
func (e *Engine) SetRules(rules []config.CategoryRule) {
	s := category.NewSnapshot(rules, e.logger)
	e.rules.Store(s)
	e.disc.Invalidate()
	e.logger.Info().Int("rules", s.Len()).Msg("Published category rules")
}

// Aggregate runs one request through the pipeline.
func (e *Engine) Aggregate(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()

	report, err := e.run(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.AggregationsTotal.WithLabelValues(status).Inc()
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	return report, err
}

func (e *Engine) run(ctx context.Context, req Request) (*Report, error) {
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("%w: [%v, %v)", ErrInvalidRange, req.Start, req.End)
	}
	r, err := interval.New(req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	canonical := e.fetcher.Canonical(ctx, r)
	e.logger.Debug().
		Int("window", len(canonical.Window.Events)).
		Int("browser", len(canonical.Browser.Events)).
		Int("editor", len(canonical.Editor.Events)).
		Int("calendar", len(canonical.Calendar.Events)).
		Msg("Canonical fetch complete")

	enriched := e.enricher.Enrich(canonical.Window.Events, canonical.Browser.Events, canonical.Editor.Events)
	enriched, summary := overlay.Apply(enriched, canonical.Calendar.Events, e.logger)

	snapshot := e.rules.Load()
	for _, ev := range enriched {
		ev.Categories = snapshot.Matches(ev)
	}

	rows := aggregate.Group(enriched, req.GroupBy, summary.UnionSeconds)
	return &Report{
		Start:    req.Start,
		End:      req.End,
		Rows:     rows,
		Calendar: summary,
	}, nil
}

// Timeline returns the enriched, classified event list without
// grouping, for callers that want the raw canonical timeline.
func (e *Engine) Timeline(ctx context.Context, start, end time.Time) ([]*event.Enriched, overlay.Summary, error) {
	if !end.After(start) {
		return nil, overlay.Summary{}, fmt.Errorf("%w: [%v, %v)", ErrInvalidRange, start, end)
	}
	r, err := interval.New(start, end)
	if err != nil {
		return nil, overlay.Summary{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	canonical := e.fetcher.Canonical(ctx, r)
	enriched := e.enricher.Enrich(canonical.Window.Events, canonical.Browser.Events, canonical.Editor.Events)
	enriched, summary := overlay.Apply(enriched, canonical.Calendar.Events, e.logger)

	snapshot := e.rules.Load()
	for _, ev := range enriched {
		ev.Categories = snapshot.Matches(ev)
	}
	return enriched, summary, nil
}
