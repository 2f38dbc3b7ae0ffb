package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/threatfuse/internal/analyze"
	"github.com/ppiankov/threatfuse/internal/cache"
	"github.com/ppiankov/threatfuse/internal/collect"
	"github.com/ppiankov/threatfuse/internal/logging"
	"github.com/ppiankov/threatfuse/internal/model"
	"github.com/ppiankov/threatfuse/internal/provider"
	"github.com/ppiankov/threatfuse/internal/score"
	"github.com/ppiankov/threatfuse/internal/worker"
)

// ErrInvalidTarget is returned for targets that cannot be scanned at all
var ErrInvalidTarget = errors.New("invalid target")

// Pipeline orchestrates the complete scan process: collect evidence, then score it
type Pipeline struct {
	collector *collect.Collector
	scorer    *score.Scorer
	cache     *cache.LayeredCache // nil when caching is disabled
	config    *model.Config
}

// NewPipeline wires providers, analyzers and the scorer from configuration
func NewPipeline(cfg *model.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var verdictCache *cache.LayeredCache
	var c cache.Cache
	if cfg.Cache.Enabled {
		verdictCache = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		c = verdictCache
	}

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	resolver := provider.Build(cfg, limiter, c)

	var opts []collect.Option
	classifier, err := analyze.NewClassifier(cfg.ML, cfg.HTTP)
	if err != nil {
		// ML is an optional input; a misconfigured backend only removes it
		logging.Logger.Warnw("ML classifier disabled", "error", err)
	} else if classifier != nil {
		opts = append(opts, collect.WithMLAnalyzer(classifier))
	}
	if cfg.Network.Enabled {
		opts = append(opts, collect.WithNetworkAnalyzer(
			analyze.NewNetworkAnalyzer(analyze.NetworkOptionsFromConfig(cfg.HTTP, cfg.Network)),
		))
	}

	p := New(cfg, resolver, opts...)
	p.cache = verdictCache
	return p, nil
}

// New builds a pipeline over an existing slot resolver and analyzers
func New(cfg *model.Config, resolver collect.SlotResolver, opts ...collect.Option) *Pipeline {
	slots := cfg.Slots
	if len(slots) == 0 {
		slots = model.DefaultSlots()
	}
	return &Pipeline{
		collector: collect.New(resolver, slots, opts...),
		scorer:    score.NewScorer(score.DefaultWeights().WithTrust(cfg.Scoring.Trust)),
		config:    cfg,
	}
}

// Scan collects evidence for one target and scores it. Provider and analyzer
// failures degrade the report; only an unscannable target is an error.
func (p *Pipeline) Scan(ctx context.Context, target model.Target) (*model.ScanReport, error) {
	target, err := NormalizeTarget(target)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	logging.Logger.Infow("scan started", "target", target.Value, "type", target.Type)

	bundle := p.collector.Collect(ctx, target)
	assessment := p.scorer.Assess(bundle)

	report := &model.ScanReport{
		ID:         uuid.NewString(),
		Target:     target,
		ScannedAt:  started.UTC(),
		Duration:   time.Since(started),
		Bundle:     bundle,
		Assessment: assessment,
	}

	logging.Logger.Infow("scan finished",
		"target", target.Value,
		"risk", assessment.Risk,
		"category", assessment.TopCategory.String(),
		"fallbacks", bundle.FallbackCount(),
		"exhausted", bundle.ExhaustedCount(),
		"duration", report.Duration,
	)
	return report, nil
}

// CacheStats reports verdict cache counters; ok is false when caching is off
func (p *Pipeline) CacheStats() (cache.Stats, bool) {
	if p.cache == nil {
		return cache.Stats{}, false
	}
	return p.cache.Stats(), true
}

// NormalizeTarget trims the target and checks it can be scanned. URL targets
// without a scheme get http:// so bare hosts can be scanned.
func NormalizeTarget(t model.Target) (model.Target, error) {
	t.Value = strings.TrimSpace(t.Value)
	if t.Value == "" {
		return t, fmt.Errorf("%w: empty value", ErrInvalidTarget)
	}
	if t.Type == "" {
		t.Type = model.TargetURL
	}

	switch t.Type {
	case model.TargetURL:
		if !strings.Contains(t.Value, "://") {
			t.Value = "http://" + t.Value
		}
		u, err := url.Parse(t.Value)
		if err != nil {
			return t, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
		if u.Hostname() == "" {
			return t, fmt.Errorf("%w: no host in %q", ErrInvalidTarget, t.Value)
		}
	case model.TargetFile, model.TargetVpnConfig, model.TargetInstagram:
	default:
		return t, fmt.Errorf("%w: unknown type %q", ErrInvalidTarget, t.Type)
	}
	return t, nil
}
