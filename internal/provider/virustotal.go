package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ppiankov/threatfuse/internal/model"
)

const virusTotalBaseURL = "https://www.virustotal.com"

// VirusTotal looks URLs up in the VirusTotal v3 API
type VirusTotal struct {
	*httpClient
	apiKey  string
	baseURL string
}

type vtURLResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			LastAnalysisStats vtAnalysisStats `json:"last_analysis_stats"`
			Reputation        int             `json:"reputation"`
			LastAnalysisDate  int64           `json:"last_analysis_date"`
		} `json:"attributes"`
	} `json:"data"`
}

type vtAnalysisStats struct {
	Harmless   int `json:"harmless"`
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Undetected int `json:"undetected"`
	Timeout    int `json:"timeout"`
}

// NewVirusTotal creates a VirusTotal adapter; an API key is required
func NewVirusTotal(cfg model.ProviderConfig, opts Options) (*VirusTotal, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("virus_total: API key is required (set VIRUSTOTAL_API_KEY)")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = virusTotalBaseURL
	}
	return &VirusTotal{
		httpClient: newHTTPClient(model.ProviderVirusTotal, opts),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Query fetches the latest analysis of target. Unknown URLs (404) are ErrNoResults.
func (v *VirusTotal) Query(ctx context.Context, target string) (model.VendorVerdict, error) {
	id := base64.RawURLEncoding.EncodeToString([]byte(target))
	req, err := http.NewRequest(http.MethodGet, v.baseURL+"/api/v3/urls/"+id, nil)
	if err != nil {
		return model.VendorVerdict{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-apikey", v.apiKey)

	body, err := v.do(ctx, req)
	if err != nil {
		return model.VendorVerdict{}, err
	}

	var resp vtURLResponse
	if err := v.decode(body, &resp); err != nil {
		return model.VendorVerdict{}, err
	}

	stats := resp.Data.Attributes.LastAnalysisStats
	engines := stats.Harmless + stats.Malicious + stats.Suspicious + stats.Undetected
	if engines == 0 {
		return model.VendorVerdict{}, v.noResults("no engine has analysed %s", target)
	}

	verdict := vtVerdict(stats, engines)
	verdict.Details["malicious"] = strconv.Itoa(stats.Malicious)
	verdict.Details["suspicious"] = strconv.Itoa(stats.Suspicious)
	verdict.Details["harmless"] = strconv.Itoa(stats.Harmless)
	verdict.Details["engines"] = strconv.Itoa(engines)
	verdict.Details["reputation"] = strconv.Itoa(resp.Data.Attributes.Reputation)
	return verdict, nil
}

// vtVerdict maps engine counts onto a verdict. Two or more malicious engines
// make the URL malicious; a single detection is only suspicious.
func vtVerdict(s vtAnalysisStats, engines int) model.VendorVerdict {
	switch {
	case s.Malicious >= 2:
		return model.NewVerdict(model.ProviderVirusTotal, model.StatusMalicious, 0.6+0.05*float64(s.Malicious))
	case s.Malicious == 1 || s.Suspicious > 0:
		return model.NewVerdict(model.ProviderVirusTotal, model.StatusSuspicious, 0.3+0.1*float64(s.Malicious+s.Suspicious))
	default:
		return model.NewVerdict(model.ProviderVirusTotal, model.StatusClean, float64(s.Harmless)/float64(engines))
	}
}
