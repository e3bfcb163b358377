// Package collyfetcher implements the resilient HTTP client on top of gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/metrics"
)

const defaultSnippetLength = 200

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	Headers       http.Header
	RespectRobots bool
	Timeout       time.Duration
	// MaxRetryWait caps any single wait, including a server's Retry-After.
	MaxRetryWait  time.Duration
	SnippetLength int
}

// Fetcher implements crawler.Fetcher using the Colly collector. Every
// attempt is throttled, guarded by the run's rate-limit breaker for the
// target host, and retried per the configured RetryPolicy.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	policy        crawler.RetryPolicy
	throttle      *crawler.Throttle
	pauser        crawler.Pauser
	logger        *zap.Logger
	now           func() time.Time
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p crawler.RetryPolicy) Option {
	return func(f *Fetcher) { f.policy = p }
}

// WithThrottle sets the pacing applied before every attempt.
func WithThrottle(t *crawler.Throttle) Option {
	return func(f *Fetcher) { f.throttle = t }
}

// WithPauser replaces the sleeper used between retries.
func WithPauser(p crawler.Pauser) Option {
	return func(f *Fetcher) { f.pauser = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(newHTTPTransport())
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c.SetRequestTimeout(timeout)
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = 30 * time.Second
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = defaultSnippetLength
	}

	f := &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		pauser:        crawler.TimerPauser{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.policy == nil {
		f.policy = crawler.NewExponentialRetryPolicy(crawler.RetryConfig{MaxDelay: cfg.MaxRetryWait})
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

// Fetch performs request with throttling, retries and breaker checks. The
// last response seen is returned even when an error is reported; an error
// always wraps crawler.ErrNetwork.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if request.Method == "" {
		request.Method = http.MethodGet
	}
	host := crawler.HostOf(request.URL)
	state := crawler.RunStateFrom(ctx)

	var (
		last    crawler.FetchResponse
		lastErr error
		attempt int
	)
	for attempt = 1; ; attempt++ {
		if err := f.throttle.Wait(ctx); err != nil {
			lastErr = fmt.Errorf("throttle wait: %w", err)
			break
		}
		var resp crawler.FetchResponse
		err := state.Guard(host, func() error {
			var attemptErr error
			resp, attemptErr = f.attempt(ctx, request)
			return attemptErr
		})
		if !resp.Empty() {
			last = resp
		}
		f.logAttempt(request, resp, attempt, err)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.ObserveBreakerRejection(request.URL)
		}
		if !f.policy.ShouldRetry(err, attempt) {
			break
		}
		wait := f.retryWait(err, attempt)
		metrics.ObserveRetry(request.URL)
		if perr := f.pauser.Pause(ctx, wait); perr != nil {
			lastErr = fmt.Errorf("retry wait: %w", perr)
			break
		}
	}
	return last, fmt.Errorf("%w: %s %s failed after %d attempt(s): %w",
		crawler.ErrNetwork, request.Method, request.URL, attempt, lastErr)
}

func (f *Fetcher) retryWait(err error, attempt int) time.Duration {
	wait := f.policy.Backoff(attempt)
	var statusErr *crawler.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		wait = statusErr.RetryAfter
	}
	if wait > f.cfg.MaxRetryWait {
		wait = f.cfg.MaxRetryWait
	}
	return wait
}

func (f *Fetcher) attempt(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, request, start, &result, &fetchErr)

	err := f.runCollector(ctx, collector, request.Method, request.URL, &fetchErr)
	code := result.StatusCode
	metrics.ObserveHTTPRequest(request.Method, code, time.Since(start))
	if err != nil {
		return result, err
	}
	if code == http.StatusTooManyRequests {
		metrics.ObserveRateLimited(request.URL)
	}
	if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
		return result, &crawler.HTTPStatusError{
			URL:        request.URL,
			StatusCode: code,
			RetryAfter: parseRetryAfter(result.Headers.Get("Retry-After"), f.now()),
		}
	}
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.Context = ctx
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = crawler.FetchResponse{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: headers.Get("Content-Type"),
			Headers:     headers,
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	method, url string,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, url, nil, nil, nil)
	}()

	select {
	case <-ctx.Done():
		// The request carries ctx, so the collector returns promptly. Its
		// callbacks write into the caller's result until then.
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	for key, values := range f.cfg.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
	for key, values := range request.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func (f *Fetcher) logAttempt(request crawler.FetchRequest, resp crawler.FetchResponse, attempt int, err error) {
	fields := []zap.Field{
		zap.String("method", request.Method),
		zap.String("url", request.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", resp.Duration),
		zap.Int("attempt", attempt),
		zap.String("snippet", crawler.Snippet(resp.Body, f.cfg.SnippetLength)),
	}
	if err != nil {
		f.logger.Warn("HTTP attempt failed", append(fields, zap.Error(err))...)
		return
	}
	f.logger.Info("HTTP fetch", fields...)
}

// parseRetryAfter reads a Retry-After value given as delta-seconds or an
// HTTP-date. Non-positive or unparseable values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
