package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/threatfuse/internal/fallback"
	"github.com/ppiankov/threatfuse/internal/model"
	"github.com/ppiankov/threatfuse/internal/worker"
)

func newTestVirusTotal(t *testing.T, handler http.HandlerFunc, opts Options) *VirusTotal {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	vt, err := NewVirusTotal(model.ProviderConfig{APIKey: "test-key", BaseURL: server.URL}, opts)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return vt
}

func TestVirusTotal_Query_Malicious(t *testing.T) {
	target := "http://evil.example/login"
	vt := newTestVirusTotal(t, func(w http.ResponseWriter, r *http.Request) {
		want := "/api/v3/urls/" + base64.RawURLEncoding.EncodeToString([]byte(target))
		if r.URL.Path != want {
			t.Errorf("Expected path %s, got %s", want, r.URL.Path)
		}
		if r.Header.Get("x-apikey") != "test-key" {
			t.Errorf("Missing API key header")
		}
		_, _ = w.Write([]byte(`{"data":{"id":"x","attributes":{"last_analysis_stats":
			{"harmless":60,"malicious":5,"suspicious":1,"undetected":10,"timeout":0},"reputation":-12}}}`))
	}, Options{})

	verdict, err := vt.Query(context.Background(), target)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if verdict.Provider != model.ProviderVirusTotal {
		t.Errorf("Expected provider virus_total, got %s", verdict.Provider)
	}
	if verdict.Status != model.StatusMalicious {
		t.Errorf("Expected MALICIOUS, got %s", verdict.Status)
	}
	if verdict.Score < 0.8 || verdict.Score > 1 {
		t.Errorf("Unexpected score: %v", verdict.Score)
	}
	if verdict.Detail("engines") != "76" || verdict.Detail("malicious") != "5" {
		t.Errorf("Unexpected details: %v", verdict.Details)
	}
}

func TestVirusTotal_Query_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		stats  string
		status model.VerdictStatus
	}{
		{"single detection", `{"harmless":70,"malicious":1,"suspicious":0,"undetected":5}`, model.StatusSuspicious},
		{"suspicious only", `{"harmless":70,"malicious":0,"suspicious":2,"undetected":5}`, model.StatusSuspicious},
		{"clean", `{"harmless":70,"malicious":0,"suspicious":0,"undetected":5}`, model.StatusClean},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vt := newTestVirusTotal(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":` + tt.stats + `}}}`))
			}, Options{})

			verdict, err := vt.Query(context.Background(), "https://example.com")
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if verdict.Status != tt.status {
				t.Errorf("Expected %s, got %s", tt.status, verdict.Status)
			}
			if err := verdict.Validate(); err != nil {
				t.Errorf("Invalid verdict: %v", err)
			}
		})
	}
}

func TestVirusTotal_Query_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unknown url", http.StatusNotFound, `{"error":{"code":"NotFoundError"}}`, fallback.ErrNoResults},
		{"quota", http.StatusTooManyRequests, `{"error":{"code":"QuotaExceededError"}}`, fallback.ErrRateLimited},
		{"server error", http.StatusInternalServerError, `oops`, fallback.ErrProviderUnavailable},
		{"malformed", http.StatusOK, `{"data":`, fallback.ErrProviderUnavailable},
		{"no engines", http.StatusOK, `{"data":{"attributes":{"last_analysis_stats":{}}}}`, fallback.ErrNoResults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vt := newTestVirusTotal(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, Options{})

			_, err := vt.Query(context.Background(), "https://example.com")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}

			var perr *fallback.ProviderError
			if !errors.As(err, &perr) || perr.Provider != model.ProviderVirusTotal {
				t.Errorf("Expected a virus_total ProviderError, got %T", err)
			}
		})
	}
}

func TestVirusTotal_Query_Throttled(t *testing.T) {
	var calls atomic.Int32
	vt := newTestVirusTotal(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{"harmless":1}}}}`))
	}, Options{
		Limiter: worker.NewLimiter(0.001, 1),
		MaxWait: 10 * time.Millisecond,
	})

	if _, err := vt.Query(context.Background(), "https://a.example"); err != nil {
		t.Fatalf("First query should use the burst token: %v", err)
	}

	_, err := vt.Query(context.Background(), "https://b.example")
	if !errors.Is(err, fallback.ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}
	if fallback.Classify(err) != model.ReasonRateLimited {
		t.Errorf("Expected rate_limited reason, got %s", fallback.Classify(err))
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("Throttled query must not reach the API, got %d calls", n)
	}
}

func TestNewVirusTotal_RequiresKey(t *testing.T) {
	if _, err := NewVirusTotal(model.ProviderConfig{}, Options{}); err == nil {
		t.Error("Expected error without API key")
	}
}

func TestHTTPClient_SetsUserAgent(t *testing.T) {
	vt := newTestVirusTotal(t, func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "threatfuse-test" {
			t.Errorf("Expected custom user agent, got %q", ua)
		}
		_, _ = w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{"harmless":1}}}}`))
	}, Options{UserAgent: "threatfuse-test"})

	if _, err := vt.Query(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	if got := truncate("quota", 200); got != "quota" {
		t.Errorf("short bodies must be kept, got %q", got)
	}

	body := strings.Repeat("x", 199) + "ошибка"
	got := truncate(body, 200)
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got)
	}
	if got != strings.Repeat("x", 199)+"..." {
		t.Errorf("unexpected truncation: %q", got)
	}
}
