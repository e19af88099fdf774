// Package discovery finds buckets by kind and caches the store's
// bucket inventory for a short, fixed TTL. Event data is never cached
// here: it is time-range-scoped and not safely reusable across
// requests, while the bucket inventory changes rarely.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/metrics"
	"github.com/timelens/timelens/internal/store"
)

const cacheKey = "buckets"

// Discovery resolves bucket inventories against the store.
type Discovery struct {
	store  store.Store
	cache  *expirable.LRU[string, []event.Bucket]
	logger zerolog.Logger
}

// New creates a Discovery with the given cache TTL.
func New(s store.Store, ttl time.Duration, logger zerolog.Logger) *Discovery {
	return &Discovery{
		store:  s,
		cache:  expirable.NewLRU[string, []event.Bucket](1, nil, ttl),
		logger: logger.With().Str("component", "discovery").Logger(),
	}
}

// Buckets returns the full bucket inventory, served from cache when
// fresh.
func (d *Discovery) Buckets(ctx context.Context) ([]event.Bucket, error) {
	if cached, ok := d.cache.Get(cacheKey); ok {
		metrics.BucketCacheHits.Inc()
		return cached, nil
	}
	metrics.BucketCacheMisses.Inc()

	buckets, err := d.store.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover buckets: %w", err)
	}
	d.cache.Add(cacheKey, buckets)

	d.logger.Debug().Int("count", len(buckets)).Msg("Bucket inventory refreshed")
	return buckets, nil
}

// ByKind returns the buckets of one kind. An unknown or absent kind
// yields an empty slice, not an error; downstream fetches degrade to
// empty results.
func (d *Discovery) ByKind(ctx context.Context, kind event.Kind) ([]event.Bucket, error) {
	buckets, err := d.Buckets(ctx)
	if err != nil {
		return nil, err
	}

	var out []event.Bucket
	for _, b := range buckets {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out, nil
}

// IDs extracts the bucket IDs from a bucket list.
func IDs(buckets []event.Bucket) []string {
	ids := make([]string, len(buckets))
	for i, b := range buckets {
		ids[i] = b.ID
	}
	return ids
}

// Invalidate drops the cached inventory. Called on category
// configuration writes and on explicit external reload.
func (d *Discovery) Invalidate() {
	d.cache.Purge()
	d.logger.Debug().Msg("Bucket cache invalidated")
}
