package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the complete threatfuse configuration
type Config struct {
	HTTP         HTTPConfig                  `yaml:"http"`
	Cache        CacheConfig                 `yaml:"cache"`
	RateLimiting RateLimitConfig             `yaml:"rate_limiting"`
	Concurrency  ConcurrencyConfig           `yaml:"concurrency"`
	Providers    map[Provider]ProviderConfig `yaml:"providers"`
	Slots        []SlotDefinition            `yaml:"slots"`
	ML           MLConfig                    `yaml:"ml"`
	Network      NetworkConfig               `yaml:"network"`
	Scoring      ScoringConfig               `yaml:"scoring"`
	Output       OutputConfig                `yaml:"output"`
}

// HTTPConfig controls outbound requests made by provider and analyzer adapters
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"` // Per-request timeout
	UserAgent  string        `yaml:"user_agent"`
	HTTPProxy  string        `yaml:"http_proxy,omitempty"`
	HTTPSProxy string        `yaml:"https_proxy,omitempty"`
	NoProxy    string        `yaml:"no_proxy,omitempty"`
}

// CacheConfig controls verdict caching across scans
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Dir       string        `yaml:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl"`
}

// RateLimitConfig is the default token bucket per provider API host
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// ConcurrencyConfig controls batch parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers"`
}

// ProviderConfig configures one vendor adapter
type ProviderConfig struct {
	Enabled           bool    `yaml:"enabled"`
	APIKey            string  `yaml:"api_key,omitempty"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // 0 = rate_limiting default
}

// SlotDefinition is one evidence slot: a primary provider and its ordered fallbacks
type SlotDefinition struct {
	Name        string       `yaml:"name"`
	Primary     Provider     `yaml:"primary"`
	Fallbacks   []Provider   `yaml:"fallbacks,omitempty"`
	TargetTypes []TargetType `yaml:"target_types,omitempty"` // Empty = every target type
}

// Chain returns the primary followed by the fallbacks
func (s SlotDefinition) Chain() []Provider {
	chain := make([]Provider, 0, len(s.Fallbacks)+1)
	chain = append(chain, s.Primary)
	return append(chain, s.Fallbacks...)
}

// AppliesTo reports whether the slot should run for the target type
func (s SlotDefinition) AppliesTo(t TargetType) bool {
	if len(s.TargetTypes) == 0 {
		return true
	}
	for _, tt := range s.TargetTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// Validate checks slot definitions and provider names
func (c *Config) Validate() error {
	for p := range c.Providers {
		if !p.Valid() {
			return fmt.Errorf("providers: unknown provider %q", p)
		}
	}

	seen := make(map[string]bool, len(c.Slots))
	for i, s := range c.Slots {
		if s.Name == "" {
			return fmt.Errorf("slot %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("slot %s: duplicate name", s.Name)
		}
		seen[s.Name] = true

		for _, p := range s.Chain() {
			if !p.Valid() {
				return fmt.Errorf("slot %s: unknown provider %q", s.Name, p)
			}
		}
	}
	return nil
}

// MLConfig selects the classifier backend
type MLConfig struct {
	Provider string `yaml:"provider"` // openai, ollama, "" (disabled)
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// NetworkConfig controls the network posture analyzer
type NetworkConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DoHURL     string `yaml:"doh_url"` // DNS-over-HTTPS JSON resolver used for the DNSSEC signal
	MaxRetries int    `yaml:"max_retries"`
}

// ScoringConfig overrides scorer constants
type ScoringConfig struct {
	Trust map[Provider]float64 `yaml:"trust,omitempty"` // Per-provider trust weight overrides
}

// OutputConfig controls report output
type OutputConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultSlots are the fallback waterfalls used when the config defines none
func DefaultSlots() []SlotDefinition {
	return []SlotDefinition{
		{
			Name:        "reputation",
			Primary:     ProviderVirusTotal,
			Fallbacks:   []Provider{ProviderGoogleSafeBrowsing},
			TargetTypes: []TargetType{TargetURL},
		},
		{
			Name:        "abuse_feeds",
			Primary:     ProviderURLHaus,
			Fallbacks:   []Provider{ProviderThreatFox, ProviderPhishStats},
			TargetTypes: []TargetType{TargetURL},
		},
		{
			Name:        "heuristic",
			Primary:     ProviderLocalHeuristic,
			TargetTypes: []TargetType{TargetURL},
		},
	}
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	cacheDir := filepath.Join(os.TempDir(), "threatfuse-cache")
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".threatfuse", "cache")
	}

	return &Config{
		HTTP: HTTPConfig{
			Timeout:   15 * time.Second,
			UserAgent: "threatfuse/0.1 (+https://github.com/ppiankov/threatfuse)",
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       cacheDir,
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   6 * time.Hour,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 4,
			BurstSize:         4,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Providers: map[Provider]ProviderConfig{
			ProviderVirusTotal:         {Enabled: true, RequestsPerSecond: 0.07}, // public API: 4 lookups/minute
			ProviderGoogleSafeBrowsing: {Enabled: true},
			ProviderURLHaus:            {Enabled: true},
			ProviderThreatFox:          {Enabled: true},
			ProviderPhishStats:         {Enabled: true},
			ProviderLocalHeuristic:     {Enabled: true},
		},
		Slots: DefaultSlots(),
		ML: MLConfig{
			Provider: "", // Disabled by default
			Timeout:  30,
		},
		Network: NetworkConfig{
			Enabled:    true,
			DoHURL:     "https://dns.google/resolve",
			MaxRetries: 2,
		},
	}
}
