// Package rediscache stores the report summary in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/sales-ledger/internal/domain/report"
)

// DefaultKey is the key the summary is stored under.
const DefaultKey = "sales-ledger:report:summary"

var _ report.Cache = (*SummaryCache)(nil)

// SummaryCache implements report.Cache on a Redis string key with a TTL.
type SummaryCache struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

// NewClient parses a redis:// URL or a bare host:port address.
func NewClient(addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	return redis.NewClient(opts), nil
}

// NewSummaryCache returns a SummaryCache. A zero ttl keeps entries until
// they are invalidated.
func NewSummaryCache(rdb redis.UniversalClient, ttl time.Duration) *SummaryCache {
	return &SummaryCache{rdb: rdb, key: DefaultKey, ttl: ttl}
}

// Get returns the cached summary or nil on a miss.
func (c *SummaryCache) Get(ctx context.Context) (*report.Summary, error) {
	data, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting %s: %w", c.key, err)
	}

	var s report.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", c.key, err)
	}
	return &s, nil
}

// Set stores s with the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, s *report.Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", c.key, err)
	}
	return nil
}

// Invalidate removes the cached summary.
func (c *SummaryCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", c.key, err)
	}
	return nil
}
