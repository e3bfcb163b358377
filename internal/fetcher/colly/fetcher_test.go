package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, delay)
	return nil
}

func (p *recordingPauser) Delays() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

func newTestFetcher(pauser *recordingPauser, maxAttempts int) *Fetcher {
	return New(
		Config{UserAgent: "test-agent", Timeout: 2 * time.Second, MaxRetryWait: 30 * time.Second},
		WithPauser(pauser),
		WithThrottle(crawler.NewThrottle(200*time.Millisecond, 600*time.Millisecond, pauser)),
		WithRetryPolicy(crawler.NewExponentialRetryPolicy(crawler.RetryConfig{
			MaxAttempts: maxAttempts,
			BaseDelay:   time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
		})),
	)
}

func TestFetchRetriesRateLimitThenSucceeds(t *testing.T) {
	t.Parallel()

	var (
		hits      atomic.Int32
		userAgent atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte("<rss></rss>"))
	}))
	defer srv.Close()

	pauser := &recordingPauser{}
	f := newTestFetcher(pauser, 5)
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/feed"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/rss+xml", resp.ContentType)
	require.Equal(t, "<rss></rss>", string(resp.Body))
	require.EqualValues(t, 3, hits.Load())
	require.Equal(t, "test-agent", userAgent.Load())

	// three throttle pauses interleaved with two Retry-After waits
	delays := pauser.Delays()
	require.Len(t, delays, 5)
	require.Equal(t, 3*time.Second, delays[1])
	require.Equal(t, 3*time.Second, delays[3])
	for _, i := range []int{0, 2, 4} {
		require.GreaterOrEqual(t, delays[i], 200*time.Millisecond)
		require.Less(t, delays[i], 800*time.Millisecond)
	}
}

func TestFetchExhaustsAttemptsOnServerError(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher(&recordingPauser{}, 5)
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, crawler.ErrNetwork)
	var statusErr *crawler.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	require.EqualValues(t, 5, hits.Load())
	require.Equal(t, http.StatusBadGateway, resp.StatusCode, "last response is returned with the error")
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	f := newTestFetcher(&recordingPauser{}, 5)
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/missing"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.EqualValues(t, 1, hits.Load())
}

func TestFetchUsesRequestMethod(t *testing.T) {
	t.Parallel()

	var method atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		w.Header().Set("Content-Type", "application/atom+xml")
	}))
	defer srv.Close()

	f := newTestFetcher(&recordingPauser{}, 1)
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{Method: http.MethodHead, URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.MethodHead, method.Load())
	require.Equal(t, "application/atom+xml", resp.ContentType)
}

func TestFetchStopsWhenBreakerOpens(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx := crawler.WithRunState(context.Background(), crawler.NewRunState(2, time.Hour, nil))
	f := newTestFetcher(&recordingPauser{}, 5)
	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, crawler.ErrRateLimited)
	require.ErrorIs(t, err, crawler.ErrNetwork)
	require.EqualValues(t, 2, hits.Load())

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/other"})
	require.ErrorIs(t, err, crawler.ErrRateLimited)
	require.EqualValues(t, 2, hits.Load(), "open breaker suppresses further requests to the host")
}

func TestFetchTransportErrorWrapsNetwork(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close()

	f := newTestFetcher(&recordingPauser{}, 2)
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: target})
	require.ErrorIs(t, err, crawler.ErrNetwork)
	require.True(t, resp.Empty())
}

func TestFetchCanceledMidRequest(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	resp, err := newTestFetcher(&recordingPauser{}, 1).Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, resp.StatusCode)
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	require.Zero(t, parseRetryAfter("0", now))
	require.Zero(t, parseRetryAfter("-3", now))
	require.Zero(t, parseRetryAfter("soon", now))
	require.Zero(t, parseRetryAfter("", now))
	require.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	require.Zero(t, parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

func TestRetryWaitCappedByMaxRetryWait(t *testing.T) {
	t.Parallel()

	f := New(Config{MaxRetryWait: 2 * time.Second})
	wait := f.retryWait(&crawler.HTTPStatusError{StatusCode: 429, RetryAfter: time.Hour}, 1)
	require.Equal(t, 2*time.Second, wait)
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true})
	ctx := context.Background()
	collector := f.buildCollector(ctx)
	if collector.UserAgent != "coverage-agent" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if collector.IgnoreRobotsTxt {
		t.Fatal("expected robots.txt to be respected")
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"Accept-Language": {"en-US"}}})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	start := time.Unix(0, 0)
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("X-Trace") != "yes" || collyReq.Headers.Get("Accept-Language") != "en-US" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/xml"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com"),
		},
	})
	if result.StatusCode != http.StatusCreated || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ContentType != "text/xml" {
		t.Fatalf("expected content type copied, got %q", result.ContentType)
	}

	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	if len(*collyReq.Headers) != 0 {
		t.Fatalf("expected no headers to be copied, got %+v", *collyReq.Headers)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
