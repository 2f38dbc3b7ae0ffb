package score

import (
	"fmt"
	"math"
	"sort"

	"github.com/ppiankov/threatfuse/internal/model"
)

// Weights holds every constant the scorer uses
type Weights struct {
	// Trust is the per-provider weight in the vendor average
	Trust map[model.Provider]float64
	// DefaultTrust applies to providers missing from Trust
	DefaultTrust float64
	// ErrorFactor scales the weight of ERROR verdicts
	ErrorFactor float64
	// Neutral is the severity of UNKNOWN/ERROR verdicts and the aggregate of an empty bundle
	Neutral float64
	// Volume damps confidence when little weighted evidence is present: conf = |d|·W/(W+Volume)
	Volume float64

	// Blend weights of each evidence line
	Vendor    float64
	ML        float64
	File      float64
	Vpn       float64
	Instagram float64

	Posture PostureWeights
}

// DefaultWeights returns the calibrated scoring constants
func DefaultWeights() Weights {
	return Weights{
		Trust: map[model.Provider]float64{
			model.ProviderVirusTotal:         1.00,
			model.ProviderGoogleSafeBrowsing: 1.00,
			model.ProviderURLHaus:            0.85,
			model.ProviderURLScan:            0.80,
			model.ProviderThreatFox:          0.80,
			model.ProviderPhishStats:         0.70,
			model.ProviderNetwork:            0.50,
			model.ProviderML:                 0.50,
			model.ProviderFileStatic:         0.50,
			model.ProviderVpnConfig:          0.50,
			model.ProviderInstagram:          0.50,
			model.ProviderLocalHeuristic:     0.40,
		},
		DefaultTrust: 0.50,
		ErrorFactor:  0.50,
		Neutral:      0.25,
		Volume:       0.50,
		Vendor:       0.65,
		ML:           0.35,
		File:         0.50,
		Vpn:          0.50,
		Instagram:    0.40,
		Posture:      DefaultPostureWeights(),
	}
}

// WithTrust returns a copy of w with the given trust overrides applied
func (w Weights) WithTrust(overrides map[model.Provider]float64) Weights {
	trust := make(map[model.Provider]float64, len(w.Trust)+len(overrides))
	for p, v := range w.Trust {
		trust[p] = v
	}
	for p, v := range overrides {
		trust[p] = v
	}
	w.Trust = trust
	return w
}

// TrustOf returns the trust weight for p, never negative
func (w Weights) TrustOf(p model.Provider) float64 {
	t, ok := w.Trust[p]
	if !ok {
		t = w.DefaultTrust
	}
	return clamp(t, 0, math.MaxFloat64)
}

// Scorer fuses an evidence bundle into a risk score. It holds no mutable state.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Weights returns the scorer's constants
func (s *Scorer) Weights() Weights {
	return s.weights
}

// AggregateRisk fuses the bundle with the default weights.
// risk is in [0,5]; breakdown memberships sum to 1.
func AggregateRisk(bundle model.EvidenceBundle) (float64, model.RiskBreakdown) {
	return NewScorer(DefaultWeights()).Score(bundle)
}

// Score returns only the risk and breakdown of Assess
func (s *Scorer) Score(bundle model.EvidenceBundle) (float64, model.RiskBreakdown) {
	a := s.Assess(bundle)
	return a.Risk, a.Breakdown
}

// blendPart is one line of evidence entering the weighted blend
type blendPart struct {
	name   string
	weight float64
	value  float64
}

// Assess computes the risk, breakdown, and the signals explaining them
func (s *Scorer) Assess(bundle model.EvidenceBundle) model.Assessment {
	var signals []model.Signal
	var parts []blendPart
	confidence := 0.0

	// 1-3. Vendor consensus, confidence adjusted
	if vc, ok := s.vendorConsensus(bundle.VendorVerdicts); ok {
		confidence = vc.confidence
		parts = append(parts, blendPart{"vendor", s.weights.Vendor, vc.adjusted})
		signals = append(signals, vc.signals()...)
	}

	// 4. ML probability
	if bundle.MlReport != nil {
		p := bundle.MlReport.RiskScore()
		parts = append(parts, blendPart{"ml", s.weights.ML, p})
		signals = append(signals, mlSignal(bundle.MlReport, p, s.weights.ML))
	}

	// 6. Domain sub-reports
	for _, sub := range []struct {
		name   string
		report model.SubReport
		weight float64
	}{
		{"file", fileReport(bundle), s.weights.File},
		{"vpn_config", vpnReport(bundle), s.weights.Vpn},
		{"instagram", instagramReport(bundle), s.weights.Instagram},
	} {
		if sub.report == nil {
			continue
		}
		v := model.Clamp01(sub.report.RiskScore())
		parts = append(parts, blendPart{sub.name, sub.weight, v})
		signals = append(signals, subReportSignal(sub.name, v, sub.weight))
	}

	x := s.blend(parts)

	// 5. Network posture
	if bundle.NetworkReport != nil {
		delta, findings := postureDelta(bundle.NetworkReport, s.weights.Posture)
		x += delta
		signals = append(signals, postureSignal(delta, findings))
	}

	if sig, ok := degradedSignal(bundle); ok {
		signals = append(signals, sig)
	}
	if !bundle.HasEvidence() {
		signals = append(signals, noEvidenceSignal(bundle, x))
	}

	// 7. Scale and categorise
	x = clamp(x, 0, 1)
	breakdown := Categorize(x)

	return model.Assessment{
		Risk:        5 * x,
		Breakdown:   breakdown,
		TopCategory: breakdown.Dominant(),
		Confidence:  confidence,
		Signals:     signals,
	}
}

// blend returns the weighted mean of the parts, or the neutral value when none are present
func (s *Scorer) blend(parts []blendPart) float64 {
	num, den := 0.0, 0.0
	for _, p := range parts {
		w := clamp(p.weight, 0, math.MaxFloat64)
		num += w * model.Clamp01(p.value)
		den += w
	}
	if den == 0 {
		return s.weights.Neutral
	}
	return num / den
}

// vendorResult is the intermediate state of the vendor consensus
type vendorResult struct {
	base       float64
	direction  float64
	confidence float64
	adjusted   float64
	weight     float64
	counts     map[model.VerdictStatus]int
	volume     float64
}

func (s *Scorer) vendorConsensus(verdicts []model.VendorVerdict) (vendorResult, bool) {
	r := vendorResult{counts: make(map[model.VerdictStatus]int), volume: s.weights.Volume}
	sevSum, dirSum := 0.0, 0.0

	for _, v := range verdicts {
		w := s.weights.TrustOf(v.Provider)
		if v.Status.Rank() < 0 {
			w *= s.weights.ErrorFactor
		}
		score := model.Clamp01(v.Score)

		r.weight += w
		sevSum += w * s.severity(v.Status, score)
		dirSum += w * direction(v.Status, score)
		r.counts[v.Status]++
	}

	if r.weight <= 0 {
		return r, false
	}

	r.base = sevSum / r.weight
	r.direction = dirSum / r.weight
	r.confidence = math.Abs(r.direction) * r.weight / (r.weight + s.weights.Volume)
	r.adjusted = Adjust(r.base, r.direction, r.confidence)
	return r, true
}

// severity maps a verdict onto [0,1]. Absence of information sits at the neutral baseline.
func (s *Scorer) severity(status model.VerdictStatus, score float64) float64 {
	switch status {
	case model.StatusClean:
		return 0.02
	case model.StatusSuspicious:
		return 0.30 + 0.30*score
	case model.StatusMalicious:
		return 0.65 + 0.35*score
	default:
		return s.weights.Neutral
	}
}

// direction is the verdict's pull on the score: -1 clean, +1 malicious, 0 no opinion
func direction(status model.VerdictStatus, score float64) float64 {
	switch status {
	case model.StatusClean:
		return -1
	case model.StatusSuspicious:
		return 0.5 * score
	case model.StatusMalicious:
		return 0.5 + 0.5*score
	default:
		return 0
	}
}

func (r vendorResult) signals() []model.Signal {
	severity := model.SeverityInfo
	switch {
	case r.counts[model.StatusMalicious] > 0:
		severity = model.SeverityCritical
	case r.counts[model.StatusSuspicious] > 0:
		severity = model.SeverityWarning
	}

	consensus := model.Signal{
		Type:        model.SignalVendorConsensus,
		Severity:    severity,
		Description: fmt.Sprintf("Vendor consensus: %s (weighted severity %.2f)", describeCounts(r.counts), r.base),
		Data: map[string]any{
			"counts":        r.counts,
			"total_weight":  r.weight,
			"base_severity": r.base,
			"direction":     r.direction,
			"formula":       "sum(trust_i * severity_i) / sum(trust_i)",
		},
	}

	confSeverity := model.SeverityInfo
	if r.confidence < 0.3 {
		confSeverity = model.SeverityWarning
	}

	conf := model.Signal{
		Type:        model.SignalConfidence,
		Severity:    confSeverity,
		Description: fmt.Sprintf("Confidence %.2f moved vendor score %.2f -> %.2f", r.confidence, r.base, r.adjusted),
		Data: map[string]any{
			"confidence": r.confidence,
			"direction":  r.direction,
			"base":       r.base,
			"adjusted":   r.adjusted,
			"volume":     r.volume,
			"formula":    "conf = |d| * W / (W + volume); d>=0: b + conf*d*(1-b), d<0: b + conf*d*b",
		},
	}

	return []model.Signal{consensus, conf}
}

func describeCounts(counts map[model.VerdictStatus]int) string {
	statuses := make([]model.VerdictStatus, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, st)
	}
	// MALICIOUS first, ERROR last
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Rank() > statuses[j].Rank()
	})

	out := ""
	for i, st := range statuses {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d %s", counts[st], st)
	}
	return out
}

func mlSignal(r *model.MlReport, p, weight float64) model.Signal {
	severity := model.SeverityInfo
	switch {
	case p >= 0.7:
		severity = model.SeverityCritical
	case p >= 0.4:
		severity = model.SeverityWarning
	}

	data := map[string]any{
		"probability":  p,
		"blend_weight": weight,
	}
	if r.Model != "" {
		data["model"] = r.Model
	}
	if len(r.TopFeatures) > 0 {
		data["top_features"] = r.TopFeatures
	}

	return model.Signal{
		Type:        model.SignalMLProbability,
		Severity:    severity,
		Description: fmt.Sprintf("ML classifier probability: %.2f", p),
		Data:        data,
	}
}

func subReportSignal(name string, v, weight float64) model.Signal {
	severity := model.SeverityInfo
	if v >= 0.5 {
		severity = model.SeverityWarning
	}
	return model.Signal{
		Type:        model.SignalSubReport,
		Severity:    severity,
		Description: fmt.Sprintf("%s analyzer risk: %.2f", name, v),
		Data: map[string]any{
			"analyzer":     name,
			"risk_score":   v,
			"blend_weight": weight,
		},
	}
}

func postureSignal(delta float64, findings []postureFinding) model.Signal {
	severity := model.SeverityInfo
	switch {
	case delta >= 0.2:
		severity = model.SeverityCritical
	case delta > 0:
		severity = model.SeverityWarning
	}

	issues := make([]string, len(findings))
	for i, f := range findings {
		issues[i] = f.Issue
	}

	return model.Signal{
		Type:        model.SignalNetworkPosture,
		Severity:    severity,
		Description: fmt.Sprintf("Network posture %+.2f: %s", delta, describeFindings(findings)),
		Data: map[string]any{
			"delta":   delta,
			"issues":  issues,
			"formula": "sum(penalty_i), or full-posture bonus when no weakness",
		},
	}
}

func degradedSignal(b model.EvidenceBundle) (model.Signal, bool) {
	fallbacks := b.FallbackCount()
	exhausted := b.ExhaustedCount()
	if fallbacks == 0 && exhausted == 0 {
		return model.Signal{}, false
	}

	severity := model.SeverityInfo
	if exhausted > 0 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalDegraded,
		Severity:    severity,
		Description: fmt.Sprintf("Degraded evidence: %d fallback answers, %d exhausted slots", fallbacks, exhausted),
		Data: map[string]any{
			"fallback_verdicts": fallbacks,
			"exhausted_slots":   exhausted,
			"total_slots":       len(b.VendorVerdicts),
		},
	}, true
}

func noEvidenceSignal(b model.EvidenceBundle, x float64) model.Signal {
	return model.Signal{
		Type:        model.SignalNoEvidence,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("No evidence collected: risk %.2f is the neutral baseline", 5*x),
		Data: map[string]any{
			"target_type":     string(b.TargetType),
			"vendor_verdicts": len(b.VendorVerdicts),
			"baseline":        x,
		},
	}
}

// typed nil pointers must not leak into the SubReport interface

func fileReport(b model.EvidenceBundle) model.SubReport {
	if b.FileReport == nil {
		return nil
	}
	return b.FileReport
}

func vpnReport(b model.EvidenceBundle) model.SubReport {
	if b.VpnReport == nil {
		return nil
	}
	return b.VpnReport
}

func instagramReport(b model.EvidenceBundle) model.SubReport {
	if b.InstagramReport == nil {
		return nil
	}
	return b.InstagramReport
}
