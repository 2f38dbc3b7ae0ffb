package provider

import (
	"fmt"
	"sort"

	"github.com/ppiankov/threatfuse/internal/cache"
	"github.com/ppiankov/threatfuse/internal/fallback"
	"github.com/ppiankov/threatfuse/internal/logging"
	"github.com/ppiankov/threatfuse/internal/model"
	"github.com/ppiankov/threatfuse/internal/worker"
)

// Constructor builds the client for one provider
type Constructor func(cfg model.ProviderConfig, opts Options) (fallback.Client, error)

type registration struct {
	construct Constructor
	baseURL   string
	cacheable bool
}

var registry = map[model.Provider]registration{
	model.ProviderVirusTotal: {
		construct: func(cfg model.ProviderConfig, opts Options) (fallback.Client, error) {
			return NewVirusTotal(cfg, opts)
		},
		baseURL:   virusTotalBaseURL,
		cacheable: true,
	},
	model.ProviderGoogleSafeBrowsing: {
		construct: func(cfg model.ProviderConfig, opts Options) (fallback.Client, error) {
			return NewSafeBrowsing(cfg, opts)
		},
		baseURL:   safeBrowsingBaseURL,
		cacheable: true,
	},
	model.ProviderURLHaus: {
		construct: func(cfg model.ProviderConfig, opts Options) (fallback.Client, error) {
			return NewURLHaus(cfg, opts), nil
		},
		baseURL:   urlHausBaseURL,
		cacheable: true,
	},
	model.ProviderThreatFox: {
		construct: func(cfg model.ProviderConfig, opts Options) (fallback.Client, error) {
			return NewThreatFox(cfg, opts), nil
		},
		baseURL:   threatFoxBaseURL,
		cacheable: true,
	},
	model.ProviderPhishStats: {
		construct: func(cfg model.ProviderConfig, opts Options) (fallback.Client, error) {
			return NewPhishStats(cfg, opts), nil
		},
		baseURL:   phishStatsBaseURL,
		cacheable: true,
	},
	model.ProviderLocalHeuristic: {
		construct: func(model.ProviderConfig, Options) (fallback.Client, error) {
			return NewHeuristic(), nil
		},
	},
}

// Supported lists the providers that have an adapter, sorted by name
func Supported() []model.Provider {
	out := make([]model.Provider, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds a single client without caching or limiting
func New(p model.Provider, cfg model.ProviderConfig, opts Options) (fallback.Client, error) {
	reg, ok := registry[p]
	if !ok {
		return nil, fmt.Errorf("no adapter for provider: %s", p)
	}
	return reg.construct(cfg, opts)
}

// Build registers every enabled provider with a new resolver. Providers that
// cannot be constructed (usually a missing API key) are skipped with a warning;
// their slots fall through to the next link. c may be nil to disable caching.
func Build(cfg *model.Config, limiter *worker.Limiter, c cache.Cache) *fallback.Resolver {
	resolver := fallback.NewResolver()
	opts := OptionsFromConfig(cfg.HTTP, limiter)

	for _, p := range Supported() {
		pc, ok := cfg.Providers[p]
		if !ok || !pc.Enabled {
			continue
		}
		reg := registry[p]

		client, err := reg.construct(pc, opts)
		if err != nil {
			logging.Logger.Warnw("provider disabled", "provider", p, "error", err)
			continue
		}

		if limiter != nil && pc.RequestsPerSecond > 0 && reg.baseURL != "" {
			baseURL := pc.BaseURL
			if baseURL == "" {
				baseURL = reg.baseURL
			}
			limiter.SetHostRate(baseURL, pc.RequestsPerSecond, 1)
		}

		if c != nil && reg.cacheable {
			client = NewCached(client, c, 0)
		}
		resolver.Register(client)
	}

	for p, pc := range cfg.Providers {
		if _, ok := registry[p]; !ok && pc.Enabled {
			logging.Logger.Warnw("provider has no adapter", "provider", p)
		}
	}

	return resolver
}
