package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/threatfuse/internal/model"
	"github.com/ppiankov/threatfuse/internal/provider"
)

const rule = "═══════════════════════════════════════════════════════════"

// Renderer writes scan reports as JSON files and terminal summaries
type Renderer struct {
	out     io.Writer
	verbose bool
}

// NewRenderer creates a renderer writing summaries to out
func NewRenderer(out io.Writer, verbose bool) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{out: out, verbose: verbose}
}

// RenderJSON writes the report as indented JSON; "-" writes to the summary output
func (r *Renderer) RenderJSON(report *model.ScanReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err := r.out.Write(data)
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderSummary prints the human-readable report
func (r *Renderer) RenderSummary(report *model.ScanReport) {
	a := report.Assessment
	w := r.out

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "  threatfuse scan report")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Target:      %s %s\n", report.Target.Type, report.Target.Value)
	fmt.Fprintf(w, "  Risk:        %.2f / 5  (%s)\n", a.Risk, a.TopCategory)
	fmt.Fprintf(w, "  Confidence:  %.2f\n", a.Confidence)
	if !report.Bundle.HasEvidence() {
		fmt.Fprintln(w, "  ⚠ No evidence collected: risk is the neutral baseline")
	}
	fmt.Fprintln(w)

	if len(report.Bundle.VendorVerdicts) > 0 {
		fmt.Fprintln(w, "  Vendor verdicts:")
		for _, v := range report.Bundle.VendorVerdicts {
			fmt.Fprintf(w, "    %-22s %-10s %.2f%s\n", v.Provider, v.Status, v.Score, provenance(v))
		}
		fmt.Fprintln(w)
	}

	if reports := subReports(report.Bundle); len(reports) > 0 {
		fmt.Fprintln(w, "  Analyzers:")
		for _, line := range reports {
			fmt.Fprintf(w, "    %s\n", line)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "  Risk breakdown:")
	for _, c := range model.RiskCategories {
		m := a.Breakdown.Membership(c)
		fmt.Fprintf(w, "    %-9s %s  %.2f\n", c, bar(m, 20), m)
	}
	fmt.Fprintln(w)

	if r.verbose && len(a.Signals) > 0 {
		fmt.Fprintln(w, "  Signals:")
		for _, s := range a.Signals {
			fmt.Fprintf(w, "    [%s] %s\n", s.Severity, s.Description)
		}
		fmt.Fprintln(w)
	}
}

// provenance describes how a slot's verdict was obtained
func provenance(v model.VendorVerdict) string {
	var parts []string
	switch {
	case v.Detail(model.DetailAllProvidersExhausted) == "true":
		parts = append(parts, "all providers exhausted")
	case v.IsFallback():
		parts = append(parts, "fallback: "+v.Detail(model.DetailFallbackReason))
	}
	if attempts := v.Detail(model.DetailFallbackAttempts); attempts != "" {
		parts = append(parts, "tried "+attempts)
	}
	if v.Detail(provider.DetailCached) == "true" {
		parts = append(parts, "cached")
	}
	if len(parts) == 0 {
		return ""
	}
	return "  (" + strings.Join(parts, "; ") + ")"
}

func subReports(b model.EvidenceBundle) []string {
	var lines []string
	if b.MlReport != nil {
		lines = append(lines, fmt.Sprintf("%-12s probability %.2f", "ml", b.MlReport.Probability))
	}
	if n := b.NetworkReport; n != nil {
		tlsVersion := "no TLS"
		if n.TLSVersion != nil {
			tlsVersion = *n.TLSVersion
		}
		cert := "unknown"
		if n.CertValid != nil {
			cert = fmt.Sprintf("%t", *n.CertValid)
		}
		lines = append(lines, fmt.Sprintf("%-12s %s, cert valid: %s, missing headers: %d",
			"network", tlsVersion, cert, len(n.MissingHardeningHeaders())))
	}
	if b.FileReport != nil {
		lines = append(lines, fmt.Sprintf("%-12s risk %.2f", "file", b.FileReport.RiskScore()))
	}
	if b.VpnReport != nil {
		lines = append(lines, fmt.Sprintf("%-12s risk %.2f", "vpn_config", b.VpnReport.RiskScore()))
	}
	if b.InstagramReport != nil {
		lines = append(lines, fmt.Sprintf("%-12s risk %.2f", "instagram", b.InstagramReport.RiskScore()))
	}
	return lines
}

func bar(v float64, width int) string {
	filled := int(v*float64(width) + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
