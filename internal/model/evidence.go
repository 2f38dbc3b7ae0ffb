package model

import (
	"fmt"
	"strings"
)

// TargetType classifies what is being scanned
type TargetType string

const (
	TargetURL       TargetType = "URL"
	TargetFile      TargetType = "FILE"
	TargetVpnConfig TargetType = "VPN_CONFIG"
	TargetInstagram TargetType = "INSTAGRAM"
)

// ParseTargetType converts a CLI/config name into a TargetType
func ParseTargetType(name string) (TargetType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "url":
		return TargetURL, nil
	case "file":
		return TargetFile, nil
	case "vpn", "vpn_config", "vpn-config":
		return TargetVpnConfig, nil
	case "instagram", "ig":
		return TargetInstagram, nil
	}
	return "", fmt.Errorf("unknown target type: %s (supported: url, file, vpn_config, instagram)", name)
}

// Target is the subject of one scan
type Target struct {
	Type  TargetType `json:"type"`
	Value string     `json:"value"` // URL, file path/hash, config path, or profile handle
}

// SubReport is the minimum every optional analyzer report exposes
type SubReport interface {
	RiskScore() float64
}

// Feature is one input that influenced the ML classifier
type Feature struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// MlReport is the machine-learning classifier output
type MlReport struct {
	Probability float64   `json:"probability"` // Probability the target is malicious, [0,1]
	TopFeatures []Feature `json:"top_features,omitempty"`
	Model       string    `json:"model,omitempty"`
}

// RiskScore returns the classifier probability
func (r *MlReport) RiskScore() float64 {
	return Clamp01(r.Probability)
}

// NetworkReport describes the transport security posture of a URL target.
// Nil pointer fields mean the signal could not be observed.
type NetworkReport struct {
	TLSVersion   *string           `json:"tls_version,omitempty"`
	CipherSuite  *string           `json:"cipher_suite,omitempty"`
	CertValid    *bool             `json:"cert_valid,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	DNSSECSignal *bool             `json:"dnssec_signal,omitempty"`
	StatusCode   int               `json:"status_code,omitempty"`
	FinalURL     string            `json:"final_url,omitempty"`
}

// HardeningHeaders are the response headers a well-configured site sends
var HardeningHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
}

// HasHeader reports whether the named header was observed (case-insensitive)
func (r *NetworkReport) HasHeader(name string) bool {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) && strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// MissingHardeningHeaders lists the hardening headers the target did not send
func (r *NetworkReport) MissingHardeningHeaders() []string {
	var missing []string
	for _, h := range HardeningHeaders {
		if !r.HasHeader(h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// FileReport is the static file analyzer output
type FileReport struct {
	Score      float64  `json:"risk_score"`
	SHA256     string   `json:"sha256,omitempty"`
	MimeType   string   `json:"mime_type,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
}

// RiskScore returns the analyzer's own score
func (r *FileReport) RiskScore() float64 { return Clamp01(r.Score) }

// VpnConfigReport is the VPN configuration analyzer output
type VpnConfigReport struct {
	Score    float64  `json:"risk_score"`
	Protocol string   `json:"protocol,omitempty"`
	Findings []string `json:"findings,omitempty"`
}

// RiskScore returns the analyzer's own score
func (r *VpnConfigReport) RiskScore() float64 { return Clamp01(r.Score) }

// InstagramReport is the social profile analyzer output
type InstagramReport struct {
	Score  float64  `json:"risk_score"`
	Handle string   `json:"handle,omitempty"`
	Flags  []string `json:"flags,omitempty"`
}

// RiskScore returns the analyzer's own score
func (r *InstagramReport) RiskScore() float64 { return Clamp01(r.Score) }

// EvidenceBundle is every signal collected for one scan target.
// It is built once by the collector and treated as read-only afterwards.
type EvidenceBundle struct {
	TargetType      TargetType       `json:"target_type"`
	VendorVerdicts  []VendorVerdict  `json:"vendor_verdicts"`
	MlReport        *MlReport        `json:"ml_report,omitempty"`
	NetworkReport   *NetworkReport   `json:"network_report,omitempty"`
	FileReport      *FileReport      `json:"file_report,omitempty"`
	VpnReport       *VpnConfigReport `json:"vpn_report,omitempty"`
	InstagramReport *InstagramReport `json:"instagram_report,omitempty"`
}

// FallbackCount returns how many verdicts were supplied by a fallback provider
func (b EvidenceBundle) FallbackCount() int {
	count := 0
	for _, v := range b.VendorVerdicts {
		if v.IsFallback() {
			count++
		}
	}
	return count
}

// HasEvidence reports whether any verdict or analyzer report offers an
// opinion about the target. UNKNOWN and ERROR verdicts do not count.
func (b EvidenceBundle) HasEvidence() bool {
	for _, v := range b.VendorVerdicts {
		if v.Status.Informative() {
			return true
		}
	}
	return b.MlReport != nil || b.NetworkReport != nil || b.FileReport != nil ||
		b.VpnReport != nil || b.InstagramReport != nil
}

// ExhaustedCount returns how many slots had every provider fail
func (b EvidenceBundle) ExhaustedCount() int {
	count := 0
	for _, v := range b.VendorVerdicts {
		if v.Detail(DetailAllProvidersExhausted) == "true" {
			count++
		}
	}
	return count
}
