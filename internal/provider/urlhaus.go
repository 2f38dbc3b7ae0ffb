package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ppiankov/threatfuse/internal/model"
)

const urlHausBaseURL = "https://urlhaus-api.abuse.ch"

// URLHaus queries the abuse.ch URLhaus malware URL feed
type URLHaus struct {
	*httpClient
	authKey string
	baseURL string
}

type urlHausResponse struct {
	QueryStatus string   `json:"query_status"`
	URLStatus   string   `json:"url_status"`
	Threat      string   `json:"threat"`
	DateAdded   string   `json:"date_added"`
	Tags        []string `json:"tags"`
}

// NewURLHaus creates a URLhaus adapter. The auth key is optional.
func NewURLHaus(cfg model.ProviderConfig, opts Options) *URLHaus {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = urlHausBaseURL
	}
	return &URLHaus{
		httpClient: newHTTPClient(model.ProviderURLHaus, opts),
		authKey:    cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Query reports MALICIOUS for any listed URL; live distribution scores higher
func (u *URLHaus) Query(ctx context.Context, target string) (model.VendorVerdict, error) {
	form := url.Values{"url": {target}}
	req, err := http.NewRequest(http.MethodPost, u.baseURL+"/v1/url/", strings.NewReader(form.Encode()))
	if err != nil {
		return model.VendorVerdict{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if u.authKey != "" {
		req.Header.Set("Auth-Key", u.authKey)
	}

	body, err := u.do(ctx, req)
	if err != nil {
		return model.VendorVerdict{}, err
	}

	var resp urlHausResponse
	if err := u.decode(body, &resp); err != nil {
		return model.VendorVerdict{}, err
	}

	switch resp.QueryStatus {
	case "ok":
	case "no_results":
		return model.VendorVerdict{}, u.noResults("%s is not listed", target)
	default:
		return model.VendorVerdict{}, u.unavailable("query_status %q", resp.QueryStatus)
	}

	score := 0.75
	if resp.URLStatus == "online" {
		score = 0.95
	}
	verdict := model.NewVerdict(model.ProviderURLHaus, model.StatusMalicious, score)
	verdict.Details["urlStatus"] = resp.URLStatus
	if resp.Threat != "" {
		verdict.Details["threat"] = resp.Threat
	}
	if len(resp.Tags) > 0 {
		verdict.Details["tags"] = strings.Join(resp.Tags, ",")
	}
	return verdict, nil
}
