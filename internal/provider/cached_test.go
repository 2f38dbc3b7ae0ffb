package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/threatfuse/internal/cache"
	"github.com/ppiankov/threatfuse/internal/fallback"
	"github.com/ppiankov/threatfuse/internal/model"
)

type countingClient struct {
	provider model.Provider
	verdict  model.VendorVerdict
	err      error
	calls    atomic.Int32
}

func (c *countingClient) Provider() model.Provider { return c.provider }

func (c *countingClient) Query(context.Context, string) (model.VendorVerdict, error) {
	c.calls.Add(1)
	return c.verdict, c.err
}

func TestCached_ServesRepeatLookups(t *testing.T) {
	inner := &countingClient{
		provider: model.ProviderURLHaus,
		verdict:  model.NewVerdict(model.ProviderURLHaus, model.StatusMalicious, 0.95).WithDetail("urlStatus", "online"),
	}
	c := NewCached(inner, cache.NewMemoryCache(time.Minute, time.Minute), 0)

	first, err := c.Query(context.Background(), "http://dropper.example/a.doc")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if first.Detail(DetailCached) != "" {
		t.Error("Fresh verdict must not be marked cached")
	}

	second, err := c.Query(context.Background(), "http://dropper.example/a.doc")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("Expected 1 upstream call, got %d", inner.calls.Load())
	}
	if second.Detail(DetailCached) != "true" {
		t.Error("Repeat verdict should be marked cached")
	}
	if second.Status != first.Status || second.Score != first.Score || second.Detail("urlStatus") != "online" {
		t.Errorf("Cached verdict differs: %+v vs %+v", second, first)
	}
	if c.Provider() != model.ProviderURLHaus {
		t.Errorf("Expected url_haus, got %s", c.Provider())
	}
}

func TestCached_DoesNotCacheFailures(t *testing.T) {
	inner := &countingClient{
		provider: model.ProviderThreatFox,
		err:      fallback.NewProviderError(model.ProviderThreatFox, 0, fallback.ErrNoResults),
	}
	c := NewCached(inner, cache.NewMemoryCache(time.Minute, time.Minute), 0)

	for i := 0; i < 3; i++ {
		_, err := c.Query(context.Background(), "http://x.example")
		if !errors.Is(err, fallback.ErrNoResults) {
			t.Fatalf("Expected ErrNoResults, got %v", err)
		}
	}
	if inner.calls.Load() != 3 {
		t.Errorf("Failures must reach upstream every time, got %d calls", inner.calls.Load())
	}
}

func TestCached_DoesNotCacheErrorVerdicts(t *testing.T) {
	inner := &countingClient{
		provider: model.ProviderPhishStats,
		verdict:  model.ErrorVerdict(model.ProviderPhishStats, nil),
	}
	c := NewCached(inner, cache.NewMemoryCache(time.Minute, time.Minute), 0)

	_, _ = c.Query(context.Background(), "http://x.example")
	_, _ = c.Query(context.Background(), "http://x.example")
	if inner.calls.Load() != 2 {
		t.Errorf("ERROR verdicts must not be cached, got %d calls", inner.calls.Load())
	}
}

func TestCached_DropsCorruptEntries(t *testing.T) {
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	key := cache.VerdictKey(string(model.ProviderURLHaus), "http://x.example")
	_ = store.Set(key, []byte("not json"), 0)

	inner := &countingClient{
		provider: model.ProviderURLHaus,
		verdict:  model.NewVerdict(model.ProviderURLHaus, model.StatusMalicious, 0.75),
	}
	verdict, err := NewCached(inner, store, 0).Query(context.Background(), "http://x.example")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if inner.calls.Load() != 1 || verdict.Status != model.StatusMalicious {
		t.Errorf("Corrupt entry should fall through to upstream")
	}
}
