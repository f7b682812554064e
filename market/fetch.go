package market

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/internal/retry"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes     = 16 << 20
)

// Fetcher performs rate-limited, retried HTTP GETs. It is safe for
// concurrent use and shared by every source.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retry     retry.Config
	userAgent string
	logger    *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithRateLimit allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) FetcherOption {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg retry.Config) FetcherOption {
	return func(f *Fetcher) { f.retry = cfg }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher returns a Fetcher with a cookie-aware client, 5 requests per
// second and the market retry policy.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	jar, _ := cookiejar.New(nil)
	f := &Fetcher{
		client:    &http.Client{Timeout: 20 * time.Second, Jar: jar},
		limiter:   rate.NewLimiter(5, 5),
		retry:     retry.MarketConfig(),
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.retry.OnRetry == nil {
		f.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
			f.logger.Warn("market request retry", "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
		}
	}
	return f
}

// Get fetches url and returns the body. Non-2xx responses become
// categorized errors carrying the status code and any Retry-After delay.
func (f *Fetcher) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	return retry.Do(ctx, f.retry, func() ([]byte, error) {
		return f.get(ctx, url, header)
	})
}

func (f *Fetcher) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ai.NewPermanentError("market: build request", 0, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	f.logger.Debug("market request", "url", req.URL.Redacted(), "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("market: %s returned %d", req.URL.Host, resp.StatusCode)
		return nil, ai.NewStatusError(msg, resp.StatusCode, parseRetryAfter(resp), nil)
	}
	return body, nil
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
