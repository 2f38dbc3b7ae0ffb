package fallback

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ppiankov/threatfuse/internal/model"
)

var (
	// ErrProviderUnavailable covers timeouts, transport errors, non-success statuses and unparseable payloads
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNoResults is the sentinel a provider returns when it answered but knows nothing about the target
	ErrNoResults = errors.New("no results")

	// ErrRateLimited means the provider (or our own limiter) refused the request for quota reasons
	ErrRateLimited = errors.New("rate limited")
)

// ProviderError carries the provider and HTTP status behind a failed query
type ProviderError struct {
	Provider   model.Provider
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// Unwrap maps the failure onto one of the sentinel errors
func (e *ProviderError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *ProviderError) sentinel() error {
	switch {
	case errors.Is(e.Err, ErrNoResults), errors.Is(e.Err, ErrRateLimited):
		return e.Err
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusNotFound:
		return ErrNoResults
	default:
		return ErrProviderUnavailable
	}
}

// NewProviderError wraps err for provider p with an optional HTTP status code
func NewProviderError(p model.Provider, statusCode int, err error) *ProviderError {
	if err == nil {
		err = ErrProviderUnavailable
	}
	return &ProviderError{Provider: p, StatusCode: statusCode, Err: err}
}

// Classify maps a provider failure onto the fallback reason recorded in verdict details
func Classify(err error) model.FallbackReason {
	switch {
	case errors.Is(err, ErrRateLimited):
		return model.ReasonRateLimited
	case errors.Is(err, ErrNoResults):
		return model.ReasonNoResults
	default:
		return model.ReasonPrimaryUnavailable
	}
}
