package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ppiankov/threatfuse/internal/cache"
	"github.com/ppiankov/threatfuse/internal/fallback"
	"github.com/ppiankov/threatfuse/internal/logging"
	"github.com/ppiankov/threatfuse/internal/model"
)

// DetailCached marks a verdict served from the verdict cache
const DetailCached = "cached"

// Cached serves repeated lookups from a cache. Only successful verdicts are
// stored, so a failing provider is retried on the next scan.
type Cached struct {
	client fallback.Client
	cache  cache.Cache
	ttl    time.Duration
}

// NewCached wraps client; ttl 0 uses the cache's own expiry
func NewCached(client fallback.Client, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{client: client, cache: c, ttl: ttl}
}

// Provider returns the wrapped client's provider
func (c *Cached) Provider() model.Provider {
	return c.client.Provider()
}

// Query returns a cached verdict when present, otherwise queries and stores
func (c *Cached) Query(ctx context.Context, target string) (model.VendorVerdict, error) {
	key := cache.VerdictKey(string(c.client.Provider()), target)

	if data, ok := c.cache.Get(key); ok {
		var verdict model.VendorVerdict
		if err := json.Unmarshal(data, &verdict); err == nil && verdict.Validate() == nil {
			return verdict.WithDetail(DetailCached, "true"), nil
		}
		_ = c.cache.Delete(key)
	}

	verdict, err := c.client.Query(ctx, target)
	if err != nil || verdict.Status == model.StatusError {
		return verdict, err
	}

	data, err := json.Marshal(verdict)
	if err != nil {
		return verdict, nil
	}
	if err := c.cache.Set(key, data, c.ttl); err != nil {
		logging.Logger.Warnw("cache verdict failed", "provider", c.client.Provider(), "error", err)
	}
	return verdict, nil
}
