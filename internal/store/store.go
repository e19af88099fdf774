// Package store defines the narrow interface to the external event
// store, plus the typed query plan that backends compile to their own
// query facility. The aggregation engine composes plans; it never
// implements query execution itself.
package store

import (
	"context"
	"errors"

	"github.com/timelens/timelens/internal/event"
)

// ErrBucketNotFound is returned when a query names a bucket the
// backend does not know.
var ErrBucketNotFound = errors.New("store: bucket not found")

// Store is the read side consumed by the aggregation engine.
type Store interface {
	// ListBuckets returns every bucket the store knows about.
	ListBuckets(ctx context.Context) ([]event.Bucket, error)

	// Query executes a plan and returns the resulting event list.
	// A partial result together with a non-nil error means some
	// bucket fetches failed; callers decide whether to degrade.
	Query(ctx context.Context, p Plan) ([]event.TimedEvent, error)

	Close() error
}

// Writer is implemented by backends that accept event inserts. It is
// used by importers and tests, never by the aggregation engine.
type Writer interface {
	CreateBucket(ctx context.Context, b event.Bucket) error
	InsertEvents(ctx context.Context, bucketID string, events []event.TimedEvent) error
}
