package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/threatfuse/internal/fallback"
	"github.com/ppiankov/threatfuse/internal/model"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestSafeBrowsing_Query(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    model.VerdictStatus
		score     float64
		threatTyp string
	}{
		{"malware match", `{"matches":[{"threatType":"MALWARE","platformType":"ANY_PLATFORM"}]}`, model.StatusMalicious, 0.9, "MALWARE"},
		{"unwanted software", `{"matches":[{"threatType":"UNWANTED_SOFTWARE"}]}`, model.StatusSuspicious, 0.6, "UNWANTED_SOFTWARE"},
		{"no match", `{}`, model.StatusClean, 0.5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/v4/threatMatches:find" {
					t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
				}
				if r.URL.Query().Get("key") != "gsb-key" {
					t.Errorf("Missing key parameter")
				}
				var req gsbRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("Bad request body: %v", err)
				}
				if len(req.ThreatInfo.ThreatEntries) != 1 || req.ThreatInfo.ThreatEntries[0].URL != "http://bad.example" {
					t.Errorf("Unexpected threat entries: %+v", req.ThreatInfo.ThreatEntries)
				}
				_, _ = w.Write([]byte(tt.body))
			})

			gsb, err := NewSafeBrowsing(model.ProviderConfig{APIKey: "gsb-key", BaseURL: server.URL}, Options{})
			if err != nil {
				t.Fatalf("Failed to create client: %v", err)
			}

			verdict, err := gsb.Query(context.Background(), "http://bad.example")
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if verdict.Status != tt.status || verdict.Score != tt.score {
				t.Errorf("Expected %s/%v, got %s/%v", tt.status, tt.score, verdict.Status, verdict.Score)
			}
			if verdict.Detail("threatType") != tt.threatTyp {
				t.Errorf("Expected threatType %q, got %q", tt.threatTyp, verdict.Detail("threatType"))
			}
		})
	}
}

func TestURLHaus_Query(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  model.VerdictStatus
		score   float64
		wantErr error
	}{
		{"online", `{"query_status":"ok","url_status":"online","threat":"malware_download","tags":["emotet","doc"]}`, model.StatusMalicious, 0.95, nil},
		{"offline", `{"query_status":"ok","url_status":"offline","threat":"malware_download"}`, model.StatusMalicious, 0.75, nil},
		{"not listed", `{"query_status":"no_results"}`, "", 0, fallback.ErrNoResults},
		{"bad query", `{"query_status":"invalid_url"}`, "", 0, fallback.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/url/" {
					t.Errorf("Expected path /v1/url/, got %s", r.URL.Path)
				}
				if err := r.ParseForm(); err != nil || r.PostForm.Get("url") != "http://dropper.example/a.doc" {
					t.Errorf("Expected url form field, got %v", r.PostForm)
				}
				if r.Header.Get("Auth-Key") != "abuse-key" {
					t.Errorf("Missing Auth-Key header")
				}
				_, _ = w.Write([]byte(tt.body))
			})

			uh := NewURLHaus(model.ProviderConfig{APIKey: "abuse-key", BaseURL: server.URL}, Options{})
			verdict, err := uh.Query(context.Background(), "http://dropper.example/a.doc")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if verdict.Status != tt.status || verdict.Score != tt.score {
				t.Errorf("Expected %s/%v, got %s/%v", tt.status, tt.score, verdict.Status, verdict.Score)
			}
		})
	}
}

func TestThreatFox_Query(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req threatFoxRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		if req.Query != "search_ioc" {
			t.Errorf("Expected search_ioc, got %s", req.Query)
		}
		switch req.SearchTerm {
		case "c2.example":
			_, _ = w.Write([]byte(`{"query_status":"ok","data":[
				{"ioc":"c2.example","threat_type":"botnet_cc","malware_printable":"Cobalt Strike","confidence_level":50},
				{"ioc":"c2.example:443","threat_type":"botnet_cc","malware_printable":"Cobalt Strike","confidence_level":100}]}`))
		default:
			_, _ = w.Write([]byte(`{"query_status":"no_result","data":"Your search did not yield any results"}`))
		}
	})

	tf := NewThreatFox(model.ProviderConfig{BaseURL: server.URL}, Options{})

	verdict, err := tf.Query(context.Background(), "https://C2.example/gate.php")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if verdict.Status != model.StatusMalicious || verdict.Score != 1 {
		t.Errorf("Expected MALICIOUS/1, got %s/%v", verdict.Status, verdict.Score)
	}
	if verdict.Detail("malware") != "Cobalt Strike" || verdict.Detail("iocs") != "2" {
		t.Errorf("Unexpected details: %v", verdict.Details)
	}

	_, err = tf.Query(context.Background(), "https://benign.example/")
	if !errors.Is(err, fallback.ErrNoResults) {
		t.Errorf("Expected ErrNoResults, got %v", err)
	}
}

func TestPhishStats_Query(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  model.VerdictStatus
		score   float64
		wantErr error
	}{
		{"high score", `[{"id":1,"url":"x","title":"Sign in","score":8.0},{"id":2,"url":"x","score":3.5}]`, model.StatusMalicious, 0.8, nil},
		{"low score", `[{"id":3,"url":"x","score":3.0}]`, model.StatusSuspicious, 0.3, nil},
		{"empty", `[]`, "", 0, fallback.ErrNoResults},
		{"not json", `<html>`, "", 0, fallback.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/phishing" {
					t.Errorf("Expected path /api/phishing, got %s", r.URL.Path)
				}
				if where := r.URL.Query().Get("_where"); where != "(url,eq,http://phish.example/)" {
					t.Errorf("Unexpected _where: %s", where)
				}
				_, _ = w.Write([]byte(tt.body))
			})

			ps := NewPhishStats(model.ProviderConfig{BaseURL: server.URL}, Options{})
			verdict, err := ps.Query(context.Background(), "http://phish.example/")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if verdict.Status != tt.status || verdict.Score != tt.score {
				t.Errorf("Expected %s/%v, got %s/%v", tt.status, tt.score, verdict.Status, verdict.Score)
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	tests := map[string]string{
		"https://Example.COM:8443/path": "example.com",
		"evil.example":                  "evil.example",
		"http://[::1]/":                 "::1",
		"":                              "",
	}
	for in, want := range tests {
		if got := hostOf(in); got != want {
			t.Errorf("hostOf(%q) = %q, want %q", in, got, want)
		}
	}
}
