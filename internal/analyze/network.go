// Package analyze holds the optional sub-analyzers the collector runs next to
// the vendor slots: network posture and the ML classifier.
package analyze

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/ppiankov/threatfuse/internal/logging"
	"github.com/ppiankov/threatfuse/internal/model"
	"github.com/ppiankov/threatfuse/internal/util"
)

// ErrUnsupportedTarget is returned for targets an analyzer does not handle
var ErrUnsupportedTarget = errors.New("unsupported target type")

const maxRedirects = 5

// networkSleepFunc waits between retries and returns early when ctx is done
// (injectable for tests)
var networkSleepFunc = sleepContext

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NetworkOptions configures the network posture analyzer
type NetworkOptions struct {
	Timeout    time.Duration
	UserAgent  string
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
	DoHURL     string // DNS-over-HTTPS JSON endpoint; empty disables the DNSSEC signal
	MaxRetries int
	RootCAs    *x509.CertPool // nil uses the system roots
}

// NetworkOptionsFromConfig derives analyzer options from the config
func NetworkOptionsFromConfig(h model.HTTPConfig, n model.NetworkConfig) NetworkOptions {
	return NetworkOptions{
		Timeout:    h.Timeout,
		UserAgent:  h.UserAgent,
		HTTPProxy:  h.HTTPProxy,
		HTTPSProxy: h.HTTPSProxy,
		NoProxy:    h.NoProxy,
		DoHURL:     n.DoHURL,
		MaxRetries: n.MaxRetries,
	}
}

// NetworkAnalyzer observes the transport security posture of URL targets
type NetworkAnalyzer struct {
	verifying  *http.Client
	insecure   *http.Client // Used only to observe sites whose certificate fails verification
	userAgent  string
	dohURL     string
	maxRetries int
}

// NewNetworkAnalyzer creates a network posture analyzer
func NewNetworkAnalyzer(opts NetworkOptions) *NetworkAnalyzer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "threatfuse/0.1"
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}

	proxy := util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy)
	newClient := func(insecure bool) *http.Client {
		return &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: proxy,
				TLSClientConfig: &tls.Config{
					RootCAs:            opts.RootCAs,
					InsecureSkipVerify: insecure,
				},
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		}
	}

	return &NetworkAnalyzer{
		verifying:  newClient(false),
		insecure:   newClient(true),
		userAgent:  userAgent,
		dohURL:     opts.DoHURL,
		maxRetries: retries,
	}
}

// Analyze probes the target and reports TLS, certificate, header and DNSSEC posture.
// It fails when the target is not a URL or the host cannot be reached at all.
func (a *NetworkAnalyzer) Analyze(ctx context.Context, target model.Target) (*model.NetworkReport, error) {
	if target.Type != model.TargetURL {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTarget, target.Type)
	}

	u, err := url.Parse(strings.TrimSpace(target.Value))
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("not an http(s) URL: %q", target.Value)
	}

	report := &model.NetworkReport{}

	resp, err := a.probeWithRetry(ctx, a.verifying, u.String())
	if err != nil && u.Scheme == "https" && isCertificateError(err) {
		invalid := false
		report.CertValid = &invalid
		resp, err = a.probeWithRetry(ctx, a.insecure, u.String())
	}
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", u.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	report.StatusCode = resp.StatusCode
	report.FinalURL = resp.Request.URL.String()

	if state := resp.TLS; state != nil {
		version := tls.VersionName(state.Version)
		cipher := tls.CipherSuiteName(state.CipherSuite)
		report.TLSVersion = &version
		report.CipherSuite = &cipher
		if report.CertValid == nil {
			valid := true
			report.CertValid = &valid
		}
	}

	report.Headers = make(map[string]string)
	for _, name := range model.HardeningHeaders {
		if v := resp.Header.Get(name); v != "" {
			report.Headers[name] = v
		}
	}

	if signal, ok := a.dnssec(ctx, u.Hostname()); ok {
		report.DNSSECSignal = &signal
	}

	return report, nil
}

// probe sends HEAD, falling back to GET for servers that reject HEAD
func (a *NetworkAnalyzer) probe(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	resp, err := a.send(ctx, client, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotImplemented {
		return resp, nil
	}
	_ = resp.Body.Close()
	return a.send(ctx, client, http.MethodGet, rawURL)
}

func (a *NetworkAnalyzer) send(ctx context.Context, client *http.Client, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	return client.Do(req)
}

// probeWithRetry retries transient failures with exponential backoff
func (a *NetworkAnalyzer) probeWithRetry(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		resp, err = a.probe(ctx, client, rawURL)
		if !isRetryable(resp, err) || attempt == a.maxRetries || ctx.Err() != nil {
			return resp, err
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		backoff := time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
		logging.Logger.Debugw("network probe retry", "url", rawURL, "attempt", attempt+1, "backoff", backoff)
		if err := networkSleepFunc(ctx, backoff); err != nil {
			return nil, fmt.Errorf("probe cancelled: %w", err)
		}
	}
	return resp, err
}

// isRetryable returns true for 5xx, 429 and transient network failures
func isRetryable(resp *http.Response, err error) bool {
	if err != nil {
		if isCertificateError(err) {
			return false
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// isCertificateError reports whether err came from certificate verification
func isCertificateError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

type dohResponse struct {
	Status int  `json:"Status"`
	AD     bool `json:"AD"` // Authenticated Data: the resolver validated DNSSEC
}

// dnssec asks the DoH resolver whether the host's records validate. The second
// result is false when no signal could be observed.
func (a *NetworkAnalyzer) dnssec(ctx context.Context, host string) (bool, bool) {
	if a.dohURL == "" || net.ParseIP(host) != nil {
		return false, false
	}

	q := url.Values{"name": {host}, "type": {"A"}, "do": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.dohURL+"?"+q.Encode(), nil)
	if err != nil {
		return false, false
	}
	req.Header.Set("Accept", "application/dns-json")
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.verifying.Do(req)
	if err != nil {
		logging.Logger.Debugw("dnssec lookup failed", "host", host, "error", err)
		return false, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return false, false
	}
	var answer dohResponse
	if err := json.Unmarshal(body, &answer); err != nil || answer.Status != 0 {
		return false, false
	}
	return answer.AD, true
}
