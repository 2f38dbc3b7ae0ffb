package util

import (
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// NewProxyFunc creates a proxy function for outbound provider clients.
// Explicit settings override the environment; an HTTP proxy alone is used
// for HTTPS too. noProxy follows NO_PROXY syntax (comma-separated hosts,
// domains, CIDRs). With no explicit proxy the environment decides.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	cfg := httpproxy.FromEnvironment()
	cfg.HTTPProxy = httpProxy
	cfg.HTTPSProxy = httpsProxy
	if cfg.HTTPSProxy == "" {
		cfg.HTTPSProxy = httpProxy
	}
	if noProxy != "" {
		cfg.NoProxy = noProxy
	}

	proxyFor := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return proxyFor(req.URL)
	}
}
