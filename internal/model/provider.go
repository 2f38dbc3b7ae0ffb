package model

import (
	"fmt"
	"strings"
)

// Provider identifies a threat-intelligence vendor or an evidence source
type Provider string

const (
	ProviderVirusTotal         Provider = "virus_total"
	ProviderGoogleSafeBrowsing Provider = "google_safe_browsing"
	ProviderURLScan            Provider = "url_scan"
	ProviderURLHaus            Provider = "url_haus"
	ProviderPhishStats         Provider = "phish_stats"
	ProviderThreatFox          Provider = "threat_fox"
	ProviderLocalHeuristic     Provider = "local_heuristic"
	ProviderNetwork            Provider = "network"
	ProviderML                 Provider = "ml"
	ProviderFileStatic         Provider = "file_static"
	ProviderVpnConfig          Provider = "vpn_config"
	ProviderInstagram          Provider = "instagram"
)

var allProviders = []Provider{
	ProviderVirusTotal,
	ProviderGoogleSafeBrowsing,
	ProviderURLScan,
	ProviderURLHaus,
	ProviderPhishStats,
	ProviderThreatFox,
	ProviderLocalHeuristic,
	ProviderNetwork,
	ProviderML,
	ProviderFileStatic,
	ProviderVpnConfig,
	ProviderInstagram,
}

// AllProviders returns the closed set of known providers
func AllProviders() []Provider {
	out := make([]Provider, len(allProviders))
	copy(out, allProviders)
	return out
}

// Valid reports whether p belongs to the closed provider set
func (p Provider) Valid() bool {
	for _, known := range allProviders {
		if p == known {
			return true
		}
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}

// DisplayName returns a human-readable vendor name
func (p Provider) DisplayName() string {
	switch p {
	case ProviderVirusTotal:
		return "VirusTotal"
	case ProviderGoogleSafeBrowsing:
		return "Google Safe Browsing"
	case ProviderURLScan:
		return "urlscan.io"
	case ProviderURLHaus:
		return "URLhaus"
	case ProviderPhishStats:
		return "PhishStats"
	case ProviderThreatFox:
		return "ThreatFox"
	case ProviderLocalHeuristic:
		return "Local heuristic"
	case ProviderNetwork:
		return "Network posture"
	case ProviderML:
		return "ML classifier"
	case ProviderFileStatic:
		return "File static analysis"
	case ProviderVpnConfig:
		return "VPN config analysis"
	case ProviderInstagram:
		return "Instagram profile"
	default:
		return string(p)
	}
}

// ParseProvider converts a wire name (case-insensitive, '-' or '_') into a Provider
func ParseProvider(name string) (Provider, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")

	// Accept the joined spellings vendors use for themselves
	switch normalized {
	case "virustotal":
		normalized = string(ProviderVirusTotal)
	case "safebrowsing", "gsb":
		normalized = string(ProviderGoogleSafeBrowsing)
	case "urlhaus":
		normalized = string(ProviderURLHaus)
	case "urlscan":
		normalized = string(ProviderURLScan)
	case "phishstats":
		normalized = string(ProviderPhishStats)
	case "threatfox":
		normalized = string(ProviderThreatFox)
	}

	p := Provider(normalized)
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}
