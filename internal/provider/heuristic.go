package provider

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/threatfuse/internal/fallback"
	"github.com/ppiankov/threatfuse/internal/model"
)

// Indicator weights for the offline URL heuristic
const (
	weightIPHost         = 0.35
	weightPunycode       = 0.30
	weightMixedScript    = 0.20
	weightSuspiciousTLD  = 0.20
	weightBrandSubdomain = 0.30
	weightUserinfo       = 0.25
	weightDeepSubdomains = 0.15
	weightLongHost       = 0.10
	weightPlainHTTP      = 0.10
	weightCredentialPath = 0.15
)

var defaultSuspiciousTLDs = []string{
	"top", "xyz", "tk", "ml", "ga", "cf", "gq", "zip", "mov", "click",
	"country", "kim", "work", "support", "rest", "fit", "cam", "icu",
}

var defaultBrandKeywords = []string{
	"paypal", "apple", "icloud", "microsoft", "office365", "outlook", "google",
	"amazon", "netflix", "facebook", "instagram", "whatsapp", "binance",
	"coinbase", "metamask", "chase", "wellsfargo", "bankofamerica", "dhl",
}

var defaultTrustedDomains = []string{
	"google.com", "youtube.com", "wikipedia.org", "github.com", "microsoft.com",
	"apple.com", "amazon.com", "paypal.com", "facebook.com", "instagram.com",
	"netflix.com", "cloudflare.com", "mozilla.org",
}

var credentialPathWords = []string{
	"login", "signin", "sign-in", "verify", "account", "secure", "update",
	"wallet", "password", "unlock", "confirm",
}

// Heuristic scores URLs offline from their structure alone. It never fails
// for a parseable target and needs no network access.
type Heuristic struct {
	suspiciousTLDs map[string]bool
	trusted        map[string]bool
	brands         []string
}

// NewHeuristic creates the local heuristic with the built-in lists
func NewHeuristic() *Heuristic {
	h := &Heuristic{
		suspiciousTLDs: make(map[string]bool),
		trusted:        make(map[string]bool),
		brands:         defaultBrandKeywords,
	}
	for _, tld := range defaultSuspiciousTLDs {
		h.suspiciousTLDs[tld] = true
	}
	for _, d := range defaultTrustedDomains {
		h.trusted[d] = true
	}
	return h
}

// Provider returns local_heuristic
func (h *Heuristic) Provider() model.Provider {
	return model.ProviderLocalHeuristic
}

// Query classifies the target. Only an unparseable target is an error.
func (h *Heuristic) Query(_ context.Context, target string) (model.VendorVerdict, error) {
	raw := strings.TrimSpace(target)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return model.VendorVerdict{}, fallback.NewProviderError(model.ProviderLocalHeuristic, 0,
			fmt.Errorf("%w: %q", errNoHost, target))
	}

	indicators := h.inspect(u)
	names := make([]string, 0, len(indicators))
	for name := range indicators {
		names = append(names, name)
	}
	sort.Strings(names)

	risk := 0.0
	for _, name := range names {
		risk += indicators[name]
	}
	risk = model.Clamp01(risk)

	var verdict model.VendorVerdict
	switch {
	case risk >= 0.6:
		verdict = model.NewVerdict(model.ProviderLocalHeuristic, model.StatusMalicious, risk)
	case risk >= 0.3:
		verdict = model.NewVerdict(model.ProviderLocalHeuristic, model.StatusSuspicious, risk)
	default:
		verdict = model.NewVerdict(model.ProviderLocalHeuristic, model.StatusClean, 1-risk)
	}
	if len(names) > 0 {
		verdict.Details["indicators"] = strings.Join(names, ",")
	}
	if reg := registrableDomain(u.Hostname()); reg != "" {
		verdict.Details["registrableDomain"] = reg
	}
	return verdict, nil
}

// inspect returns the matched indicators and their weights
func (h *Heuristic) inspect(u *url.URL) map[string]float64 {
	found := make(map[string]float64)
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))

	if u.User != nil {
		found["userinfo"] = weightUserinfo
	}
	if u.Scheme == "http" {
		found["plain_http"] = weightPlainHTTP
	}
	if hasCredentialPath(u.Path) {
		found["credential_path"] = weightCredentialPath
	}

	if net.ParseIP(host) != nil {
		found["ip_host"] = weightIPHost
		return found
	}

	reg := registrableDomain(host)
	if h.trusted[reg] {
		// Known registrable domains only keep transport and userinfo findings
		delete(found, "credential_path")
		return found
	}

	if strings.Contains(host, "xn--") {
		found["punycode"] = weightPunycode
		if unicodeHost, err := idna.Lookup.ToUnicode(host); err == nil && mixedScript(unicodeHost) {
			found["mixed_script"] = weightMixedScript
		}
	}

	if suffix, _ := publicsuffix.PublicSuffix(host); h.suspiciousTLDs[lastLabel(suffix)] {
		found["suspicious_tld"] = weightSuspiciousTLD
	}

	sub := strings.TrimSuffix(strings.TrimSuffix(host, reg), ".")
	for _, brand := range h.brands {
		if strings.Contains(sub, brand) || (reg != "" && strings.Contains(reg, brand) && !h.trusted[reg]) {
			found["brand_impersonation"] = weightBrandSubdomain
			break
		}
	}
	if sub != "" && strings.Count(sub, ".") >= 2 {
		found["deep_subdomains"] = weightDeepSubdomains
	}
	if len(host) > 50 {
		found["long_host"] = weightLongHost
	}
	return found
}

// registrableDomain returns eTLD+1, or "" for hosts without one
func registrableDomain(host string) string {
	reg, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host))
	if err != nil {
		return ""
	}
	return reg
}

func lastLabel(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

func hasCredentialPath(path string) bool {
	p := strings.ToLower(path)
	for _, w := range credentialPathWords {
		if strings.Contains(p, w) {
			return true
		}
	}
	return false
}

// mixedScript reports whether letters from Latin and another script share a label
func mixedScript(host string) bool {
	for _, label := range strings.Split(host, ".") {
		latin, other := false, false
		for _, r := range label {
			if !unicode.IsLetter(r) {
				continue
			}
			if unicode.Is(unicode.Latin, r) {
				latin = true
			} else {
				other = true
			}
		}
		if latin && other {
			return true
		}
	}
	return false
}
