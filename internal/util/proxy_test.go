package util

import (
	"net/http"
	"net/url"
	"testing"
)

func proxyFor(t *testing.T, fn func(*http.Request) (*url.URL, error), rawURL string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	u, err := fn(req)
	if err != nil {
		t.Fatalf("proxy func failed: %v", err)
	}
	if u == nil {
		return ""
	}
	return u.String()
}

func TestNewProxyFunc_Explicit(t *testing.T) {
	fn := NewProxyFunc("http://proxy.internal:3128", "http://secure-proxy.internal:3129", "urlhaus-api.abuse.ch,.corp.example")

	if got := proxyFor(t, fn, "http://phishstats.info/api"); got != "http://proxy.internal:3128" {
		t.Errorf("http: expected http proxy, got %q", got)
	}
	if got := proxyFor(t, fn, "https://www.virustotal.com/api/v3"); got != "http://secure-proxy.internal:3129" {
		t.Errorf("https: expected https proxy, got %q", got)
	}
	if got := proxyFor(t, fn, "https://urlhaus-api.abuse.ch/v1/url/"); got != "" {
		t.Errorf("no_proxy host should bypass the proxy, got %q", got)
	}
	if got := proxyFor(t, fn, "https://intel.corp.example/lookup"); got != "" {
		t.Errorf("no_proxy domain should bypass the proxy, got %q", got)
	}
}

func TestNewProxyFunc_HTTPProxyCoversHTTPS(t *testing.T) {
	fn := NewProxyFunc("http://proxy.internal:3128", "", "")

	if got := proxyFor(t, fn, "https://safebrowsing.googleapis.com/v4/threatMatches:find"); got != "http://proxy.internal:3128" {
		t.Errorf("expected http proxy for https request, got %q", got)
	}
}
