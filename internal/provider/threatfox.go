package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/threatfuse/internal/model"
)

const threatFoxBaseURL = "https://threatfox-api.abuse.ch"

// ThreatFox searches the abuse.ch ThreatFox IOC database by host
type ThreatFox struct {
	*httpClient
	authKey string
	baseURL string
}

type threatFoxRequest struct {
	Query      string `json:"query"`
	SearchTerm string `json:"search_term"`
}

type threatFoxResponse struct {
	QueryStatus string `json:"query_status"`
	// Data is an array of IOCs on success and a message string otherwise
	Data json.RawMessage `json:"data"`
}

type threatFoxIOC struct {
	IOC             string `json:"ioc"`
	ThreatType      string `json:"threat_type"`
	Malware         string `json:"malware_printable"`
	ConfidenceLevel int    `json:"confidence_level"`
}

// NewThreatFox creates a ThreatFox adapter. The auth key is optional.
func NewThreatFox(cfg model.ProviderConfig, opts Options) *ThreatFox {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = threatFoxBaseURL
	}
	return &ThreatFox{
		httpClient: newHTTPClient(model.ProviderThreatFox, opts),
		authKey:    cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Query looks the target's host up as an IOC
func (t *ThreatFox) Query(ctx context.Context, target string) (model.VendorVerdict, error) {
	host := hostOf(target)
	if host == "" {
		return model.VendorVerdict{}, t.noResults("no host in %q", target)
	}

	data, err := json.Marshal(threatFoxRequest{Query: "search_ioc", SearchTerm: host})
	if err != nil {
		return model.VendorVerdict{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, t.baseURL+"/api/v1/", bytes.NewReader(data))
	if err != nil {
		return model.VendorVerdict{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.authKey != "" {
		req.Header.Set("Auth-Key", t.authKey)
	}

	body, err := t.do(ctx, req)
	if err != nil {
		return model.VendorVerdict{}, err
	}

	var resp threatFoxResponse
	if err := t.decode(body, &resp); err != nil {
		return model.VendorVerdict{}, err
	}

	switch resp.QueryStatus {
	case "ok":
	case "no_result":
		return model.VendorVerdict{}, t.noResults("%s is not a known IOC", host)
	default:
		return model.VendorVerdict{}, t.unavailable("query_status %q", resp.QueryStatus)
	}

	var iocs []threatFoxIOC
	if err := t.decode(resp.Data, &iocs); err != nil {
		return model.VendorVerdict{}, err
	}
	if len(iocs) == 0 {
		return model.VendorVerdict{}, t.noResults("%s is not a known IOC", host)
	}

	best := iocs[0]
	for _, ioc := range iocs[1:] {
		if ioc.ConfidenceLevel > best.ConfidenceLevel {
			best = ioc
		}
	}

	verdict := model.NewVerdict(model.ProviderThreatFox, model.StatusMalicious, float64(best.ConfidenceLevel)/100)
	verdict.Details["threatType"] = best.ThreatType
	verdict.Details["malware"] = best.Malware
	verdict.Details["iocs"] = strconv.Itoa(len(iocs))
	return verdict, nil
}

// hostOf returns the lowercased host of a URL, or the input itself when it is a bare host
func hostOf(target string) string {
	target = strings.TrimSpace(target)
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
