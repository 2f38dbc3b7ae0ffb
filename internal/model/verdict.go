package model

import (
	"fmt"
	"math"
	"strings"
)

// VerdictStatus is a provider's classification of a target
type VerdictStatus string

const (
	StatusClean      VerdictStatus = "CLEAN"
	StatusSuspicious VerdictStatus = "SUSPICIOUS"
	StatusMalicious  VerdictStatus = "MALICIOUS"
	StatusUnknown    VerdictStatus = "UNKNOWN"
	StatusError      VerdictStatus = "ERROR" // No usable answer
)

// Rank orders statuses by severity: CLEAN < UNKNOWN < SUSPICIOUS < MALICIOUS.
// ERROR carries no severity and ranks -1.
func (s VerdictStatus) Rank() int {
	switch s {
	case StatusClean:
		return 0
	case StatusUnknown:
		return 1
	case StatusSuspicious:
		return 2
	case StatusMalicious:
		return 3
	default:
		return -1
	}
}

// Informative reports whether the status is an actual opinion about the target
func (s VerdictStatus) Informative() bool {
	return s == StatusClean || s == StatusSuspicious || s == StatusMalicious
}

// ParseStatus converts a status name into a VerdictStatus
func ParseStatus(name string) (VerdictStatus, error) {
	s := VerdictStatus(strings.ToUpper(strings.TrimSpace(name)))
	switch s {
	case StatusClean, StatusSuspicious, StatusMalicious, StatusUnknown, StatusError:
		return s, nil
	}
	return "", fmt.Errorf("unknown verdict status: %s", name)
}

// Detail keys carrying fallback provenance
const (
	DetailFallbackProvider      = "fallbackProvider"
	DetailFallbackReason        = "fallbackReason"
	DetailAllProvidersExhausted = "allProvidersExhausted"
	DetailFallbackAttempts      = "fallbackAttempts"
)

// FallbackReason explains why a slot's primary provider did not answer
type FallbackReason string

const (
	ReasonPrimaryUnavailable FallbackReason = "primary_unavailable"
	ReasonNoResults          FallbackReason = "no_results"
	ReasonRateLimited        FallbackReason = "rate_limited"
)

// VendorVerdict is one provider's opinion about a scan target
type VendorVerdict struct {
	Provider Provider          `json:"provider"`
	Status   VerdictStatus     `json:"status"`
	Score    float64           `json:"score"`             // Provider's own confidence/severity, [0,1]
	Details  map[string]string `json:"details,omitempty"` // Free-form provenance
}

// NewVerdict builds a verdict with the score clamped into [0,1]
func NewVerdict(provider Provider, status VerdictStatus, score float64) VendorVerdict {
	if status == StatusError {
		score = 0
	}
	return VendorVerdict{
		Provider: provider,
		Status:   status,
		Score:    Clamp01(score),
		Details:  map[string]string{},
	}
}

// ErrorVerdict builds an ERROR verdict, which always has a zero score
func ErrorVerdict(provider Provider, details map[string]string) VendorVerdict {
	v := NewVerdict(provider, StatusError, 0)
	for k, val := range details {
		v.Details[k] = val
	}
	return v
}

// WithDetail returns a copy of the verdict with the detail set
func (v VendorVerdict) WithDetail(key, value string) VendorVerdict {
	details := make(map[string]string, len(v.Details)+1)
	for k, val := range v.Details {
		details[k] = val
	}
	details[key] = value
	v.Details = details
	return v
}

// Detail returns a detail value, or "" when absent
func (v VendorVerdict) Detail(key string) string {
	if v.Details == nil {
		return ""
	}
	return v.Details[key]
}

// IsFallback reports whether a non-primary provider supplied this verdict
func (v VendorVerdict) IsFallback() bool {
	return v.Detail(DetailFallbackProvider) != ""
}

// Validate checks the verdict invariants
func (v VendorVerdict) Validate() error {
	if !v.Provider.Valid() {
		return fmt.Errorf("invalid provider: %q", v.Provider)
	}
	if v.Status.Rank() < 0 && v.Status != StatusError {
		return fmt.Errorf("invalid status: %q", v.Status)
	}
	if math.IsNaN(v.Score) || v.Score < 0 || v.Score > 1 {
		return fmt.Errorf("score out of range: %v", v.Score)
	}
	if v.Status == StatusError && v.Score != 0 {
		return fmt.Errorf("error verdict must have zero score, got %v", v.Score)
	}
	return nil
}

// Clamp01 clamps x into [0,1]; NaN becomes 0
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
