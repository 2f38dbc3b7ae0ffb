package model

import "time"

// ScanReport represents the complete result of one scan
type ScanReport struct {
	ID        string        `json:"id"`         // Scan identifier (UUID)
	Target    Target        `json:"target"`     // What was scanned
	ScannedAt time.Time     `json:"scanned_at"` // When the scan started
	Duration  time.Duration `json:"duration_ns"`

	Bundle EvidenceBundle `json:"evidence"` // Everything the collector gathered

	Assessment Assessment `json:"assessment"` // Fused risk and its breakdown
}

// Assessment is the scorer output with its transparent scoring trail
type Assessment struct {
	Risk        float64       `json:"risk"`         // Overall risk, [0,5]
	Breakdown   RiskBreakdown `json:"breakdown"`    // Fuzzy category membership
	TopCategory RiskCategory  `json:"top_category"` // argmax of Breakdown
	Confidence  float64       `json:"confidence"`   // Confidence used by the adjuster, [0,1]
	Signals     []Signal      `json:"signals"`      // Per-component contributions
}

// Signal represents one scoring component with transparent data
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"` // Inputs, weights, formula
}

// SignalType classifies the scoring component
type SignalType string

const (
	SignalVendorConsensus SignalType = "vendor_consensus" // Trust-weighted vendor severity
	SignalConfidence      SignalType = "confidence"       // Confidence adjustment
	SignalMLProbability   SignalType = "ml_probability"   // ML classifier blend
	SignalNetworkPosture  SignalType = "network_posture"  // TLS / header / DNSSEC penalty
	SignalSubReport       SignalType = "sub_report"       // File / VPN / social analyzer
	SignalDegraded        SignalType = "degraded_evidence"
	SignalNoEvidence      SignalType = "no_evidence" // Nothing offered an opinion; risk is the neutral baseline
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
