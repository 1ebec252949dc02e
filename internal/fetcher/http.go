package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/f1-etl/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher. Insecure, CABundle and Proxy are
// applied once to the transport; every API client shares the result.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	BaseBackoff  time.Duration
	Insecure     bool
	CABundle     string
	Proxy        string
	RateLimiters map[string]*rate.Limiter
	Adaptive     map[string]*AdaptiveLimiter
}

// AdaptiveLimiter wraps a rate.Limiter that halves its rate on 429 responses
// (down to initial/4) and recovers by 20% per success, never above the
// initial rate.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to the initial rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.initialRate {
		newRate = a.initialRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements ConditionalFetcher using net/http with retry and
// per-host rate limiting.
type HTTPFetcher struct {
	client           *http.Client
	opts             HTTPOptions
	limiters         map[string]*rate.Limiter
	adaptiveLimiters map[string]*AdaptiveLimiter
}

// DefaultRateLimiters returns the fixed per-host rate limiters.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"api.open-meteo.com":         rate.NewLimiter(10, 10),
		"archive-api.open-meteo.com": rate.NewLimiter(10, 10),
	}
}

// DefaultAdaptiveLimiters returns adaptive rate limiters for hosts that
// answer bursts with 429. ergastRate overrides the jolpica limit when > 0.
func DefaultAdaptiveLimiters(ergastRate float64) map[string]*AdaptiveLimiter {
	if ergastRate <= 0 {
		ergastRate = 4
	}
	return map[string]*AdaptiveLimiter{
		"api.jolpi.ca":   NewAdaptiveLimiter(rate.Limit(ergastRate), int(math.Max(1, ergastRate))),
		"api.openf1.org": NewAdaptiveLimiter(3, 3),
	}
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options. It fails
// when the CA bundle cannot be read or the proxy URL is malformed.
func NewHTTPFetcher(opts HTTPOptions) (*HTTPFetcher, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = 2 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "f1-etl/1.0"
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	adaptive := make(map[string]*AdaptiveLimiter)
	for k, v := range opts.Adaptive {
		adaptive[k] = v
	}

	transport, err := newTransport(opts)
	if err != nil {
		return nil, err
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:             opts,
		limiters:         limiters,
		adaptiveLimiters: adaptive,
	}, nil
}

func newTransport(opts HTTPOptions) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	switch {
	case opts.Insecure:
		tlsCfg.InsecureSkipVerify = true //nolint:gosec // opt-in via --insecure
		zap.L().Warn("TLS verification disabled; use only on trusted networks")
	case opts.CABundle != "":
		pem, err := os.ReadFile(opts.CABundle)
		if err != nil {
			return nil, eris.Wrapf(err, "read CA bundle %s", opts.CABundle)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, eris.Errorf("CA bundle %s contains no certificates", opts.CABundle)
		}
		tlsCfg.RootCAs = pool
		zap.L().Info("using custom CA bundle", zap.String("path", opts.CABundle))
	}
	transport.TLSClientConfig = tlsCfg

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, eris.Errorf("invalid proxy url %q", opts.Proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		zap.L().Info("using proxy", zap.String("proxy", proxyURL.Redacted()))
	}

	return transport, nil
}

func (f *HTTPFetcher) adaptiveLimiterFor(u *url.URL) *AdaptiveLimiter {
	return f.adaptiveLimiters[u.Host]
}

func (f *HTTPFetcher) limiterFor(u *url.URL) *rate.Limiter {
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	return nil
}

func (f *HTTPFetcher) wait(ctx context.Context, u *url.URL) error {
	if adaptive := f.adaptiveLimiterFor(u); adaptive != nil {
		return adaptive.Wait(ctx)
	}
	if lim := f.limiterFor(u); lim != nil {
		return lim.Wait(ctx)
	}
	return nil
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	adaptive := f.adaptiveLimiterFor(req.URL)

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if attempt > 0 {
			if err := f.backoff(ctx, attempt-1); err != nil {
				return nil, eris.Wrap(err, "retry backoff")
			}
		}
		if err := f.wait(ctx, req.URL); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			zap.L().Warn("http request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = resilience.NewTransientError(eris.Errorf("http 429 from %s", req.URL.String()), resp.StatusCode)
			if adaptive != nil {
				adaptive.OnRateLimit()
			}
			zap.L().Warn("rate limited (429), backing off",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = resilience.NewTransientError(eris.Errorf("http %d from %s", resp.StatusCode, req.URL.String()), resp.StatusCode)
			zap.L().Warn("server error, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		if adaptive != nil {
			adaptive.OnSuccess()
		}
		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

// backoff sleeps BaseBackoff * 2^attempt plus up to 50% jitter, capped at 30s.
func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) error {
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(f.opts.BaseBackoff) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *HTTPFetcher) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	return req, nil
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := f.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to the given path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeFile(path, body)
}

// DownloadIfChanged fetches the URL only if the ETag has changed.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	req, err := f.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, "", false, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "download if changed")
	}

	if resp.StatusCode == http.StatusNotModified {
		_ = resp.Body.Close()
		return nil, etag, false, nil
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, "", false, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	return resp.Body, resp.Header.Get("ETag"), true, nil
}

// StatusError reports a non-retryable, non-200 response.
type StatusError struct {
	Code int
	URL  string
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int {
	return e.Code
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

func writeFile(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, r)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}
	return n, nil
}
