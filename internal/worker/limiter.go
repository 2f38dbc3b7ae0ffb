package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrThrottled is returned when a request would exceed the host's rate budget
var ErrThrottled = errors.New("rate budget exceeded")

// Limiter implements per-host rate limiting for provider APIs
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new rate limiter. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Acquire waits for a token unless the wait would exceed maxWait, in which
// case it returns ErrThrottled immediately without consuming the token.
func (l *Limiter) Acquire(ctx context.Context, rawURL string, maxWait time.Duration) error {
	host, err := hostKey(rawURL)
	if err != nil {
		return err
	}

	r := l.getLimiter(host).Reserve()
	if !r.OK() {
		return fmt.Errorf("%w: %s", ErrThrottled, host)
	}

	delay := r.Delay()
	if delay > maxWait {
		r.Cancel()
		return fmt.Errorf("%w: %s needs %s", ErrThrottled, host, delay.Round(time.Millisecond))
	}
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// getLimiter returns the rate limiter for a host
func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter

	return limiter
}

// SetHostRate sets a custom rate for the host of rawURL (or a bare host name)
func (l *Limiter) SetHostRate(rawURL string, requestsPerSecond float64, burst int) {
	host, err := hostKey(rawURL)
	if err != nil || host == "" {
		host = strings.ToLower(rawURL)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	l.limiters[host] = rate.NewLimiter(limit, burst)
}

// hostKey extracts the lower-cased host[:port] of a URL
func hostKey(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Host), nil
}
