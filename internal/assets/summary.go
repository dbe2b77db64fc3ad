package assets

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/inventory-manager/inventory-manager/internal/platform/cache"
)

const summaryKey = "summary"

// summaryCache serves dashboard counts from Redis and collapses concurrent
// misses into a single query.
type summaryCache struct {
	cache  *cache.Versioned
	group  singleflight.Group
	logger *slog.Logger
}

func (c *summaryCache) fetch(ctx context.Context, now time.Time, load func(context.Context, time.Time) (Summary, error)) (Summary, error) {
	resultChan := c.group.DoChan(summaryKey, func() (any, error) {
		key, err := c.cache.BuildKey(ctx, summaryKey)
		if err != nil {
			c.logger.Warn("asset summary cache key", slog.Any("error", err))
			return load(ctx, now)
		}
		var out Summary
		err = c.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return load(ctx, now)
		})
		if err != nil {
			c.logger.Warn("asset summary cache", slog.Any("error", err))
			return load(ctx, now)
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (c *summaryCache) invalidate(ctx context.Context) {
	if err := c.cache.Bump(ctx); err != nil {
		c.logger.Warn("asset summary cache bump", slog.Any("error", err))
	}
}
