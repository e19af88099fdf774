package store

import (
	"context"
	"fmt"

	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/interval"
)

// Step is one typed operation in a query plan. The concrete step types
// form the intermediate representation that backend executors compile
// to whatever their store's query facility requires.
type Step interface {
	isStep()
}

// Fetch loads raw events from one or more buckets over a time range.
type Fetch struct {
	BucketIDs []string
	Range     interval.Span
}

// MergeBuckets collapses the fetched lists into one list sorted by
// timestamp, dropping duplicate observations. Duplicate-timestamp
// collapsing happens here, once, so callers never re-implement it.
type MergeBuckets struct{}

// FilterField keeps only events whose payload field Key equals one of
// Values.
type FilterField struct {
	Key    string
	Values []string
}

// ClipPeriods intersects every event with a set of allowed periods,
// splitting events that straddle period boundaries and dropping events
// that fall entirely outside. Used for AFK filtering and for
// restricting browser/editor streams to focused-window sub-periods.
type ClipPeriods struct {
	Periods []interval.Span
}

func (Fetch) isStep()        {}
func (MergeBuckets) isStep() {}
func (FilterField) isStep()  {}
func (ClipPeriods) isStep()  {}

// Plan is an ordered list of steps.
type Plan struct {
	Steps []Step
}

// NewPlan starts an empty plan.
func NewPlan() *Plan {
	return &Plan{}
}

// Fetch appends a fetch step.
func (p *Plan) Fetch(bucketIDs []string, r interval.Span) *Plan {
	p.Steps = append(p.Steps, Fetch{BucketIDs: bucketIDs, Range: r})
	return p
}

// Merge appends a merge step.
func (p *Plan) Merge() *Plan {
	p.Steps = append(p.Steps, MergeBuckets{})
	return p
}

// FilterField appends a field-membership filter step.
func (p *Plan) FilterField(key string, values []string) *Plan {
	p.Steps = append(p.Steps, FilterField{Key: key, Values: values})
	return p
}

// ClipPeriods appends a period-intersection step.
func (p *Plan) ClipPeriods(periods []interval.Span) *Plan {
	p.Steps = append(p.Steps, ClipPeriods{Periods: periods})
	return p
}

// Source is the raw per-bucket fetch primitive a backend provides to
// the shared executor.
type Source interface {
	// BucketEvents returns the bucket's events whose intervals
	// overlap r, sorted by timestamp.
	BucketEvents(ctx context.Context, bucketID string, r interval.Span) ([]event.TimedEvent, error)
}

// Execute runs a plan against a backend's raw fetch primitive. A fetch
// failure for one bucket does not abort the rest: the failing bucket
// contributes nothing and the error is reported alongside the partial
// result.
func Execute(ctx context.Context, src Source, p Plan) ([]event.TimedEvent, error) {
	var (
		events  []event.TimedEvent
		fetched bool
		errs    []error
	)

	for _, step := range p.Steps {
		switch s := step.(type) {
		case Fetch:
			for _, id := range s.BucketIDs {
				evs, err := src.BucketEvents(ctx, id, s.Range)
				if err != nil {
					errs = append(errs, fmt.Errorf("bucket %s: %w", id, err))
					continue
				}
				events = append(events, evs...)
			}
			fetched = true
		case MergeBuckets:
			events = mergeEvents(events)
		case FilterField:
			events = filterField(events, s.Key, s.Values)
		case ClipPeriods:
			events = ClipToPeriods(events, s.Periods)
		}
	}

	if !fetched && len(p.Steps) > 0 {
		return nil, fmt.Errorf("store: plan has no fetch step")
	}
	return events, joinErrors(errs)
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%d bucket fetches failed, first: %w", len(errs), errs[0])
	}
}
