// Package redis implements the event store interface on Redis. Each
// bucket's stream is a sorted set keyed by event timestamp, so range
// fetches compile to ZRANGEBYSCORE.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/event"
	"github.com/timelens/timelens/internal/interval"
	"github.com/timelens/timelens/internal/store"
)

const (
	bucketSetKey    = "timelens:buckets"
	bucketKeyPrefix = "timelens:bucket:"
	eventsKeyPrefix = "timelens:events:"

	// maxEventLookback bounds how far before the requested range the
	// fetch reaches to catch events that start earlier but extend into
	// the range. No watcher emits single events longer than this.
	maxEventLookback = 24 * time.Hour
)

// Store implements store.Store and store.Writer on Redis.
type Store struct {
	client *redis.Client
}

// Open connects to Redis and verifies the connection.
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}
	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: dialTimeout,
		ReadTimeout: readTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{client: client}, nil
}

// ListBuckets implements store.Store.
func (s *Store) ListBuckets(ctx context.Context) ([]event.Bucket, error) {
	ids, err := s.client.SMembers(ctx, bucketSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	buckets := make([]event.Bucket, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.HGetAll(ctx, bucketKeyPrefix+id).Result()
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", id, err)
		}
		buckets = append(buckets, event.Bucket{
			ID:   id,
			Kind: event.Kind(data["kind"]),
			Host: data["host"],
		})
	}
	return buckets, nil
}

// Query implements store.Store by running the shared plan executor.
func (s *Store) Query(ctx context.Context, p store.Plan) ([]event.TimedEvent, error) {
	return store.Execute(ctx, s, p)
}

// BucketEvents implements store.Source.
func (s *Store) BucketEvents(ctx context.Context, bucketID string, r interval.Span) ([]event.TimedEvent, error) {
	exists, err := s.client.SIsMember(ctx, bucketSetKey, bucketID).Result()
	if err != nil {
		return nil, fmt.Errorf("bucket %s: %w", bucketID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrBucketNotFound, bucketID)
	}

	// Reach back before the range start so events that straddle the
	// boundary are not missed; exact overlap is re-checked below.
	min := strconv.FormatInt(r.Start.Add(-maxEventLookback).UnixMilli(), 10)
	max := "(" + strconv.FormatInt(r.End.UnixMilli(), 10)

	members, err := s.client.ZRangeByScore(ctx, eventsKeyPrefix+bucketID, &redis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("bucket %s events: %w", bucketID, err)
	}

	out := make([]event.TimedEvent, 0, len(members))
	for _, m := range members {
		var e event.TimedEvent
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("bucket %s: corrupt event: %w", bucketID, err)
		}
		if _, overlaps := interval.Intersect(e.Span(), r); overlaps {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

// CreateBucket implements store.Writer.
func (s *Store) CreateBucket(ctx context.Context, b event.Bucket) error {
	if b.ID == "" {
		return fmt.Errorf("redis: bucket id is required")
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, bucketSetKey, b.ID)
	pipe.HSet(ctx, bucketKeyPrefix+b.ID, "kind", string(b.Kind), "host", b.Host)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create bucket %s: %w", b.ID, err)
	}
	return nil
}

// InsertEvents implements store.Writer. Identical observations map to
// identical sorted-set members, so re-importing the same data is
// idempotent.
func (s *Store) InsertEvents(ctx context.Context, bucketID string, events []event.TimedEvent) error {
	exists, err := s.client.SIsMember(ctx, bucketSetKey, bucketID).Result()
	if err != nil {
		return fmt.Errorf("bucket %s: %w", bucketID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", store.ErrBucketNotFound, bucketID)
	}

	members := make([]redis.Z, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		members = append(members, redis.Z{
			Score:  float64(e.Timestamp.UnixMilli()),
			Member: string(payload),
		})
	}
	if len(members) == 0 {
		return nil
	}

	if err := s.client.ZAdd(ctx, eventsKeyPrefix+bucketID, members...).Err(); err != nil {
		return fmt.Errorf("insert events into %s: %w", bucketID, err)
	}
	return nil
}
