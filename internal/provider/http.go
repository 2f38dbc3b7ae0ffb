package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/threatfuse/internal/fallback"
	"github.com/ppiankov/threatfuse/internal/model"
	"github.com/ppiankov/threatfuse/internal/util"
	"github.com/ppiankov/threatfuse/internal/worker"
)

// maxResponseBytes caps how much of a provider response is read
const maxResponseBytes = 2 << 20

// Options are the transport settings shared by every HTTP adapter
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string

	// Limiter gates requests per API host; nil disables limiting
	Limiter *worker.Limiter
	// MaxWait is the longest a request may queue for a token before it
	// is abandoned as rate limited
	MaxWait time.Duration
}

// OptionsFromConfig derives adapter options from the HTTP config
func OptionsFromConfig(cfg model.HTTPConfig, limiter *worker.Limiter) Options {
	return Options{
		Timeout:    cfg.Timeout,
		UserAgent:  cfg.UserAgent,
		HTTPProxy:  cfg.HTTPProxy,
		HTTPSProxy: cfg.HTTPSProxy,
		NoProxy:    cfg.NoProxy,
		Limiter:    limiter,
		MaxWait:    2 * time.Second,
	}
}

// httpClient is the transport core embedded by the vendor adapters
type httpClient struct {
	provider  model.Provider
	client    *http.Client
	userAgent string
	limiter   *worker.Limiter
	maxWait   time.Duration
}

func newHTTPClient(p model.Provider, opts Options) *httpClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "threatfuse/0.1"
	}

	return &httpClient{
		provider: p,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy),
			},
		},
		userAgent: userAgent,
		limiter:   opts.Limiter,
		maxWait:   opts.MaxWait,
	}
}

// Provider returns the adapter's provider identity
func (c *httpClient) Provider() model.Provider {
	return c.provider
}

// do sends req and returns the body of a 2xx response. Every failure is a
// *fallback.ProviderError so the resolver can classify it.
func (c *httpClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, req.URL.String(), c.maxWait); err != nil {
			if errors.Is(err, worker.ErrThrottled) {
				err = fmt.Errorf("%w: %v", fallback.ErrRateLimited, err)
			}
			return nil, fallback.NewProviderError(c.provider, 0, err)
		}
	}

	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fallback.NewProviderError(c.provider, 0, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fallback.NewProviderError(c.provider, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fallback.NewProviderError(c.provider, resp.StatusCode,
			fmt.Errorf("unexpected status: %s", truncate(string(body), 200)))
	}

	return body, nil
}

// decode unmarshals a provider payload; malformed payloads count as unavailable
func (c *httpClient) decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fallback.NewProviderError(c.provider, 0, fmt.Errorf("unmarshal response: %w", err))
	}
	return nil
}

// noResults wraps the no-data sentinel for this provider
func (c *httpClient) noResults(format string, args ...any) error {
	return fallback.NewProviderError(c.provider, 0, fmt.Errorf("%w: %s", fallback.ErrNoResults, fmt.Sprintf(format, args...)))
}

// unavailable reports a response the adapter cannot interpret
func (c *httpClient) unavailable(format string, args ...any) error {
	return fallback.NewProviderError(c.provider, 0, fmt.Errorf(format, args...))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

var errNoHost = errors.New("target has no host")
