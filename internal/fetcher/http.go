package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/industry-viz/internal/resilience"
)

// DefaultUserAgent is sent when HTTPOptions.UserAgent is empty.
const DefaultUserAgent = "industry-viz/1.0"

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxAttempts bounds the number of tries per request. 1 disables retries.
	MaxAttempts int
	// RateLimit is the initial requests per second allowed for each host.
	RateLimit rate.Limit
	// Limiters overrides the limiter for specific hosts.
	Limiters map[string]*AdaptiveLimiter
	// Transport replaces the pooled default transport (tests).
	Transport http.RoundTripper
	// Breakers guards each host with a circuit breaker. Nil disables.
	Breakers *resilience.Breakers
}

// StatusError is returned when the server answers with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	limiters := make(map[string]*AdaptiveLimiter, len(opts.Limiters))
	for host, lim := range opts.Limiters {
		limiters[host] = lim
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
	}
}

// limiterFor returns the limiter shared by every request to the URL's host,
// creating it on first use.
func (f *HTTPFetcher) limiterFor(u *url.URL) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.RateLimit, int(math.Ceil(float64(f.opts.RateLimit))))
		f.limiters[u.Host] = lim
	}
	return lim
}

// doWithRetry sends req through the host's breaker and limiter. The breaker
// sees one outcome per request, after retries.
func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	if f.opts.Breakers == nil {
		return f.retry(ctx, req)
	}
	br := f.opts.Breakers.For(req.URL.Host)
	if err := br.Allow(); err != nil {
		return nil, err
	}
	resp, err := f.retry(ctx, req)
	br.Record(err)
	return resp, err
}

// TripsBreaker reports whether err means the upstream host is unhealthy.
// Caller cancellation and rate limiting do not count.
func TripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

func (f *HTTPFetcher) retry(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiterFor(req.URL)
	target := req.URL.String()

	var lastErr error
	for attempt := range f.opts.MaxAttempts {
		if attempt > 0 {
			if !f.backoff(ctx, attempt-1) {
				break
			}
		}
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			zap.L().Warn("fetcher: request failed",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lim.OnRateLimit()
			lastErr = &StatusError{URL: target, StatusCode: resp.StatusCode}
			zap.L().Warn("fetcher: rate limited",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = &StatusError{URL: target, StatusCode: resp.StatusCode}
			zap.L().Warn("fetcher: server error",
				zap.String("url", target),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		lim.OnSuccess()
		return resp, nil
	}

	if ctx.Err() != nil && lastErr == nil {
		lastErr = ctx.Err()
	}
	if f.opts.MaxAttempts > 1 {
		return nil, eris.Wrapf(lastErr, "gave up after %d attempts", f.opts.MaxAttempts)
	}
	return nil, eris.Wrap(lastErr, "request")
}

// backoff sleeps before the next attempt. It reports false when ctx ends first.
func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) bool {
	base := 500 * time.Millisecond
	maxBackoff := 10 * time.Second
	d := min(time.Duration(float64(base)*math.Pow(2, float64(attempt))), maxBackoff)
	d += time.Duration(rand.Int64N(int64(d)/2 + 1))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (f *HTTPFetcher) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := f.newRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Wrap(&StatusError{URL: rawURL, StatusCode: resp.StatusCode}, "download")
	}

	return resp.Body, nil
}

// DownloadIfChanged fetches the URL only if the ETag has changed.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	req, err := f.newRequest(ctx, rawURL)
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
		return nil, "", false, eris.Wrap(&StatusError{URL: rawURL, StatusCode: resp.StatusCode}, "download if changed")
	}

	return resp.Body, resp.Header.Get("ETag"), true, nil
}
