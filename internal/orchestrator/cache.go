package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/texsearch/texsearch/pkg/config"
	"github.com/texsearch/texsearch/pkg/logger"
	pkgredis "github.com/texsearch/texsearch/pkg/redis"
	"golang.org/x/sync/singleflight"
)

// CacheKeyPrefix namespaces every cached response key; cmd/index's -update
// path uses it (with a trailing "*") to flush the whole result cache via
// redis.Client.FlushByPattern once a reconcile run changes the tree.
const CacheKeyPrefix = "texsearch:query:"

const cacheKeyPrefix = CacheKeyPrefix

// ResultCache is a Redis-backed, singleflight-deduped cache of fully
// serialized responses, keyed on the normalized request envelope. startAt
// and endAt are part of the key, so a different window on an otherwise-
// identical query is a separate entry and never serves another window's
// slice.
type ResultCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache builds a ResultCache. A nil client disables caching:
// every call is treated as a miss and GetOrCompute always recomputes.
func NewResultCache(client *pkgredis.Client, cfg config.RedisConfig) *ResultCache {
	return &ResultCache{
		client: client,
		cfg:    cfg,
		logger: logger.WithComponent("orchestrator-cache"),
	}
}

// GetOrCompute returns the cached response for req if present; otherwise it
// calls compute, caches the result, and returns it. Concurrent callers for
// the same key collapse into a single compute call via singleflight.
func (c *ResultCache) GetOrCompute(ctx context.Context, req Request, compute func() (Response, error)) (Response, error) {
	if c == nil || c.client == nil {
		return compute()
	}
	key := cacheKeyPrefix + req.cacheKey()
	if resp, ok := c.get(ctx, key); ok {
		return resp, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if resp, ok := c.get(ctx, key); ok {
			return resp, nil
		}
		resp, err := compute()
		if err != nil {
			return Response{}, err
		}
		c.set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return Response{}, err
	}
	return val.(Response), nil
}

func (c *ResultCache) get(ctx context.Context, key string) (Response, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return Response{}, false
	}
	c.hits.Add(1)
	return resp, true
}

func (c *ResultCache) set(ctx context.Context, key string, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Stats returns cumulative hit/miss counts.
func (c *ResultCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
