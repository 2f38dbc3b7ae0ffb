package score

import (
	"fmt"
	"strings"

	"github.com/ppiankov/threatfuse/internal/model"
)

// PostureWeights are the additive adjustments applied for a NetworkReport
type PostureWeights struct {
	NoTLS         float64 // Plain HTTP or TLS not observed
	LegacyTLS     float64 // TLS 1.0 / 1.1
	BadCert       float64 // Invalid or unverified certificate
	MissingHeader float64 // Per missing hardening header
	NoDNSSEC      float64 // DNSSEC not confirmed
	FullBonus     float64 // Negative: modern TLS, valid cert, all headers, DNSSEC
}

// DefaultPostureWeights returns the calibrated posture adjustments
func DefaultPostureWeights() PostureWeights {
	return PostureWeights{
		NoTLS:         0.10,
		LegacyTLS:     0.06,
		BadCert:       0.08,
		MissingHeader: 0.02,
		NoDNSSEC:      0.04,
		FullBonus:     -0.05,
	}
}

// postureFinding is one weakness counted against the target
type postureFinding struct {
	Issue string
	Delta float64
}

// postureDelta returns the additive adjustment for a network report and the
// weaknesses that produced it. A nil report contributes nothing.
func postureDelta(r *model.NetworkReport, w PostureWeights) (float64, []postureFinding) {
	if r == nil {
		return 0, nil
	}

	var findings []postureFinding

	switch tls := tlsVersion(r); {
	case tls == "":
		findings = append(findings, postureFinding{"no TLS", w.NoTLS})
	case isLegacyTLS(tls):
		findings = append(findings, postureFinding{"legacy " + tls, w.LegacyTLS})
	}

	if r.CertValid == nil || !*r.CertValid {
		findings = append(findings, postureFinding{"certificate not valid", w.BadCert})
	}

	for _, h := range r.MissingHardeningHeaders() {
		findings = append(findings, postureFinding{"missing " + h, w.MissingHeader})
	}

	if r.DNSSECSignal == nil || !*r.DNSSECSignal {
		findings = append(findings, postureFinding{"DNSSEC not confirmed", w.NoDNSSEC})
	}

	if len(findings) == 0 {
		return w.FullBonus, nil
	}

	delta := 0.0
	for _, f := range findings {
		delta += f.Delta
	}
	return delta, findings
}

func tlsVersion(r *model.NetworkReport) string {
	if r.TLSVersion == nil {
		return ""
	}
	return strings.TrimSpace(*r.TLSVersion)
}

// isLegacyTLS reports TLS versions older than 1.2. Accepts "TLS 1.0", "TLSv1.1", "1.0", "SSLv3".
func isLegacyTLS(version string) bool {
	v := strings.ToUpper(version)
	if strings.HasPrefix(v, "SSL") {
		return true
	}
	v = strings.TrimPrefix(v, "TLS")
	v = strings.TrimPrefix(v, "V")
	v = strings.TrimSpace(v)
	switch v {
	case "1", "1.0", "1.1":
		return true
	}
	return false
}

func describeFindings(findings []postureFinding) string {
	if len(findings) == 0 {
		return "full posture"
	}
	parts := make([]string, len(findings))
	for i, f := range findings {
		parts[i] = fmt.Sprintf("%s (+%.2f)", f.Issue, f.Delta)
	}
	return strings.Join(parts, ", ")
}
