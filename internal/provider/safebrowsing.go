package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ppiankov/threatfuse/internal/model"
)

const safeBrowsingBaseURL = "https://safebrowsing.googleapis.com"

// SafeBrowsing checks URLs against Google Safe Browsing v4 threat lists
type SafeBrowsing struct {
	*httpClient
	apiKey  string
	baseURL string
}

type gsbRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string         `json:"threatTypes"`
		PlatformTypes    []string         `json:"platformTypes"`
		ThreatEntryTypes []string         `json:"threatEntryTypes"`
		ThreatEntries    []gsbThreatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

type gsbThreatEntry struct {
	URL string `json:"url"`
}

type gsbResponse struct {
	Matches []struct {
		ThreatType   string `json:"threatType"`
		PlatformType string `json:"platformType"`
	} `json:"matches"`
}

var gsbThreatTypes = []string{
	"MALWARE",
	"SOCIAL_ENGINEERING",
	"UNWANTED_SOFTWARE",
	"POTENTIALLY_HARMFUL_APPLICATION",
}

// NewSafeBrowsing creates a Safe Browsing adapter; an API key is required
func NewSafeBrowsing(cfg model.ProviderConfig, opts Options) (*SafeBrowsing, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google_safe_browsing: API key is required (set GSB_API_KEY)")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = safeBrowsingBaseURL
	}
	return &SafeBrowsing{
		httpClient: newHTTPClient(model.ProviderGoogleSafeBrowsing, opts),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Query reports MALICIOUS on any threat match and CLEAN when the lists have no entry
func (s *SafeBrowsing) Query(ctx context.Context, target string) (model.VendorVerdict, error) {
	var payload gsbRequest
	payload.Client.ClientID = "threatfuse"
	payload.Client.ClientVersion = "0.1"
	payload.ThreatInfo.ThreatTypes = gsbThreatTypes
	payload.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	payload.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	payload.ThreatInfo.ThreatEntries = []gsbThreatEntry{{URL: target}}

	data, err := json.Marshal(payload)
	if err != nil {
		return model.VendorVerdict{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := s.baseURL + "/v4/threatMatches:find?key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return model.VendorVerdict{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := s.do(ctx, req)
	if err != nil {
		return model.VendorVerdict{}, err
	}

	var resp gsbResponse
	if err := s.decode(body, &resp); err != nil {
		return model.VendorVerdict{}, err
	}

	if len(resp.Matches) == 0 {
		return model.NewVerdict(model.ProviderGoogleSafeBrowsing, model.StatusClean, 0.5), nil
	}

	types := make([]string, 0, len(resp.Matches))
	severe := false
	for _, m := range resp.Matches {
		types = append(types, m.ThreatType)
		if m.ThreatType == "MALWARE" || m.ThreatType == "SOCIAL_ENGINEERING" {
			severe = true
		}
	}

	verdict := model.NewVerdict(model.ProviderGoogleSafeBrowsing, model.StatusSuspicious, 0.6)
	if severe {
		verdict = model.NewVerdict(model.ProviderGoogleSafeBrowsing, model.StatusMalicious, 0.9)
	}
	verdict.Details["threatType"] = strings.Join(types, ",")
	return verdict, nil
}
