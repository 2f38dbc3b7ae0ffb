package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/threatfuse/internal/model"
)

const phishStatsBaseURL = "https://phishstats.info:2096"

// PhishStats searches the PhishStats phishing URL database
type PhishStats struct {
	*httpClient
	baseURL string
}

type phishStatsEntry struct {
	ID    int     `json:"id"`
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"` // 0-10
	Date  string  `json:"date"`
}

// NewPhishStats creates a PhishStats adapter
func NewPhishStats(cfg model.ProviderConfig, opts Options) *PhishStats {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = phishStatsBaseURL
	}
	return &PhishStats{
		httpClient: newHTTPClient(model.ProviderPhishStats, opts),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Query scores a listed URL by its PhishStats score (5 and above is malicious)
func (p *PhishStats) Query(ctx context.Context, target string) (model.VendorVerdict, error) {
	q := url.Values{"_where": {fmt.Sprintf("(url,eq,%s)", target)}}
	req, err := http.NewRequest(http.MethodGet, p.baseURL+"/api/phishing?"+q.Encode(), nil)
	if err != nil {
		return model.VendorVerdict{}, fmt.Errorf("create request: %w", err)
	}

	body, err := p.do(ctx, req)
	if err != nil {
		return model.VendorVerdict{}, err
	}

	var entries []phishStatsEntry
	if err := p.decode(body, &entries); err != nil {
		return model.VendorVerdict{}, err
	}
	if len(entries) == 0 {
		return model.VendorVerdict{}, p.noResults("%s is not listed", target)
	}

	top := entries[0]
	for _, e := range entries[1:] {
		if e.Score > top.Score {
			top = e
		}
	}

	status := model.StatusSuspicious
	if top.Score >= 5 {
		status = model.StatusMalicious
	}
	verdict := model.NewVerdict(model.ProviderPhishStats, status, top.Score/10)
	verdict.Details["phishScore"] = strconv.FormatFloat(top.Score, 'f', 1, 64)
	verdict.Details["entries"] = strconv.Itoa(len(entries))
	if top.Title != "" {
		verdict.Details["title"] = truncate(top.Title, 80)
	}
	return verdict, nil
}
