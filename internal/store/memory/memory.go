// Package memory implements an in-process event store backend. It
// backs tests and embedded single-host deployments where no external
// store is running.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/interval"
	"github.com/timelens/timelens/internal/store"
)

// Store holds buckets and their event streams in memory. Safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]event.Bucket
	events  map[string][]event.TimedEvent // sorted by timestamp
}

// Open creates an empty in-memory store.
func Open() *Store {
	return &Store{
		buckets: make(map[string]event.Bucket),
		events:  make(map[string][]event.TimedEvent),
	}
}

// ListBuckets implements store.Store.
func (s *Store) ListBuckets(ctx context.Context) ([]event.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Bucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Query implements store.Store by running the shared plan executor
// against the in-memory streams.
func (s *Store) Query(ctx context.Context, p store.Plan) ([]event.TimedEvent, error) {
	return store.Execute(ctx, s, p)
}

// BucketEvents implements store.Source.
func (s *Store) BucketEvents(ctx context.Context, bucketID string, r interval.Span) ([]event.TimedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs, ok := s.events[bucketID]
	if !ok {
		if _, known := s.buckets[bucketID]; !known {
			return nil, fmt.Errorf("%w: %s", store.ErrBucketNotFound, bucketID)
		}
		return nil, nil
	}

	var out []event.TimedEvent
	for _, e := range evs {
		if _, overlaps := interval.Intersect(e.Span(), r); overlaps {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return nil
}

// CreateBucket implements store.Writer. Creating an existing bucket is
// a no-op so importers can run repeatedly.
func (s *Store) CreateBucket(ctx context.Context, b event.Bucket) error {
	if b.ID == "" {
		return fmt.Errorf("memory: bucket id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.buckets[b.ID]; !exists {
		s.buckets[b.ID] = b
	}
	return nil
}

// InsertEvents implements store.Writer, keeping the stream sorted.
func (s *Store) InsertEvents(ctx context.Context, bucketID string, events []event.TimedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.buckets[bucketID]; !known {
		return fmt.Errorf("%w: %s", store.ErrBucketNotFound, bucketID)
	}

	merged := append(s.events[bucketID], events...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	s.events[bucketID] = merged
	return nil
}
