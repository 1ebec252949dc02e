package fetcher

import (
	"context"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/f1-etl/internal/resilience"
)

func newTestFetcherWith(t *testing.T, opts HTTPOptions) *HTTPFetcher {
	t.Helper()
	if opts.UserAgent == "" {
		opts.UserAgent = "test-agent"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Millisecond
	}
	f, err := NewHTTPFetcher(opts)
	require.NoError(t, err)
	return f
}

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	return newTestFetcherWith(t, HTTPOptions{MaxRetries: 3})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("raceId,year\n1,2024\n"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(t).Download(context.Background(), srv.URL+"/races.csv")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "raceId,year\n1,2024\n", string(data))
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file content here"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.txt")
	n, err := newTestFetcher(t).DownloadToFile(context.Background(), srv.URL+"/file", path)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file content here", string(data))
}

func TestDownloadToFile_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.txt")
	_, err := newTestFetcher(t).DownloadToFile(context.Background(), srv.URL+"/missing", path)
	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestDownload_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t).Download(context.Background(), srv.URL+"/forbidden")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestDownloadIfChanged_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"etag1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte("should not reach"))
	}))
	defer srv.Close()

	body, etag, changed, err := newTestFetcher(t).DownloadIfChanged(context.Background(), srv.URL+"/archive.zip", `"etag1"`)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, body)
	assert.Equal(t, `"etag1"`, etag)
}

func TestDownloadIfChanged_Changed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"etag2"`)
		_, _ = w.Write([]byte("new content"))
	}))
	defer srv.Close()

	body, etag, changed, err := newTestFetcher(t).DownloadIfChanged(context.Background(), srv.URL+"/archive.zip", `"etag1"`)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, `"etag2"`, etag)

	data, err := io.ReadAll(body)
	_ = body.Close()
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))
}

func TestDownloadIfChanged_NoETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		_, _ = w.Write([]byte("content"))
	}))
	defer srv.Close()

	body, _, changed, err := newTestFetcher(t).DownloadIfChanged(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.True(t, changed)
	_ = body.Close()
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(t).Download(context.Background(), srv.URL+"/retry")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "success", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcherWith(t, HTTPOptions{MaxRetries: 2})
	_, err := f.Download(context.Background(), srv.URL+"/fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted")
	assert.Equal(t, int32(2), attempts.Load())

	var te *resilience.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.True(t, resilience.IsTransient(err))
}

func TestNoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t).Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRateLimiting(t *testing.T) {
	var reqTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqTimes = append(reqTimes, time.Now())
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcherWith(t, HTTPOptions{
		MaxRetries: 1,
		RateLimiters: map[string]*rate.Limiter{
			srv.Listener.Addr().String(): rate.NewLimiter(2, 1),
		},
	})

	for range 3 {
		body, err := f.Download(context.Background(), srv.URL+"/limited")
		require.NoError(t, err)
		_ = body.Close()
	}

	// 2 req/s with burst 1: three requests span at least ~1s.
	require.Len(t, reqTimes, 3)
	assert.GreaterOrEqual(t, reqTimes[2].Sub(reqTimes[0]).Milliseconds(), int64(500))
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(t).Download(ctx, srv.URL+"/data")
	require.Error(t, err)
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f, err := NewHTTPFetcher(HTTPOptions{})
	require.NoError(t, err)
	assert.Equal(t, "f1-etl/1.0", f.opts.UserAgent)
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, 3, f.opts.MaxRetries)
	assert.Equal(t, 2*time.Second, f.opts.BaseBackoff)

	transport, ok := f.client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, transport.MaxIdleConnsPerHost)
	assert.False(t, transport.TLSClientConfig.InsecureSkipVerify)
}

func TestTLS_UnknownAuthorityFails(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	f := newTestFetcherWith(t, HTTPOptions{MaxRetries: 1})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestTLS_Insecure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	f := newTestFetcherWith(t, HTTPOptions{MaxRetries: 1, Insecure: true})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	_ = body.Close()
	assert.Equal(t, "secure", string(data))
}

func TestTLS_CABundle(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("trusted"))
	}))
	defer srv.Close()

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, pemBytes, 0o600))

	f := newTestFetcherWith(t, HTTPOptions{MaxRetries: 1, CABundle: bundle})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	_ = body.Close()
	assert.Equal(t, "trusted", string(data))
}

func TestTLS_CABundleMissing(t *testing.T) {
	_, err := NewHTTPFetcher(HTTPOptions{CABundle: filepath.Join(t.TempDir(), "nope.pem")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read CA bundle")
}

func TestTLS_CABundleEmpty(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(bundle, []byte("not a certificate"), 0o600))

	_, err := NewHTTPFetcher(HTTPOptions{CABundle: bundle})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains no certificates")
}

func TestProxy(t *testing.T) {
	var seenHost string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHost = r.URL.Host
		_, _ = w.Write([]byte("via proxy"))
	}))
	defer proxy.Close()

	f := newTestFetcherWith(t, HTTPOptions{MaxRetries: 1, Proxy: proxy.URL})
	body, err := f.Download(context.Background(), "http://weather.invalid/v1/forecast")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	_ = body.Close()

	assert.Equal(t, "via proxy", string(data))
	assert.Equal(t, "weather.invalid", seenHost)
}

func TestProxy_Invalid(t *testing.T) {
	_, err := NewHTTPFetcher(HTTPOptions{Proxy: "::not a url"})
	require.Error(t, err)
}

func TestAdaptiveLimiter_OnSuccess_CapsAtInitial(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 4)
	lim.OnRateLimit()
	assert.InDelta(t, 2.0, float64(lim.Limit()), 0.01)

	lim.OnSuccess()
	assert.InDelta(t, 2.4, float64(lim.Limit()), 0.01)

	for range 20 {
		lim.OnSuccess()
	}
	assert.InDelta(t, 4.0, float64(lim.Limit()), 0.01)
}

func TestAdaptiveLimiter_OnRateLimit_FloorAtQuarter(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)
	for range 10 {
		lim.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_Wait_ContextCancelled(t *testing.T) {
	lim := NewAdaptiveLimiter(0.001, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, lim.Wait(ctx))
}

func TestDoWithRetry_429_AdaptiveBackoff(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	lim := NewAdaptiveLimiter(100, 100)
	f := newTestFetcherWith(t, HTTPOptions{
		MaxRetries: 3,
		Adaptive:   map[string]*AdaptiveLimiter{u.Host: lim},
	})

	body, err := f.Download(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	_ = body.Close()
	assert.Equal(t, int32(3), attempts.Load())

	// 100 -> 50 -> 25 -> 30
	assert.InDelta(t, 30.0, float64(lim.Limit()), 0.1)
}

func TestDefaultLimiters(t *testing.T) {
	assert.Contains(t, DefaultRateLimiters(), "archive-api.open-meteo.com")

	adaptive := DefaultAdaptiveLimiters(0)
	require.Contains(t, adaptive, "api.jolpi.ca")
	assert.InDelta(t, 4.0, float64(adaptive["api.jolpi.ca"].Limit()), 0.01)
	assert.Contains(t, adaptive, "api.openf1.org")

	assert.InDelta(t, 2.0, float64(DefaultAdaptiveLimiters(2)["api.jolpi.ca"].Limit()), 0.01)
}
