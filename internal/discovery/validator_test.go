package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/entries"
	collyfetcher "github.com/JakeFAU/yacht-feed-crawler/internal/fetcher/colly"
)

func newValidatorServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/feed.xml":
			writeRSS(w)
		case "/empty.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title></channel></rss>`))
		case "/page":
			writeHTML(w, http.StatusOK, "<html></html>")
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestValidator() *FeedValidator {
	plain := collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second},
		collyfetcher.WithRetryPolicy(crawler.NewExponentialRetryPolicy(crawler.RetryConfig{MaxAttempts: 1})),
	)
	return NewFeedValidator(plain, entries.NewParser(plain), time.Minute, nil)
}

func TestFeedValidatorParseMode(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newValidatorServer(t, &hits)
	v := newTestValidator()
	ctx := context.Background()

	require.True(t, v.Validate(ctx, ModeParse, srv.URL+"/feed.xml"))
	require.False(t, v.Validate(ctx, ModeParse, srv.URL+"/empty.xml"), "a feed without entries is not confirmed")
	require.False(t, v.Validate(ctx, ModeParse, srv.URL+"/page"))
	require.False(t, v.Validate(ctx, ModeParse, srv.URL+"/missing"))
}

func TestFeedValidatorLightweightMode(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newValidatorServer(t, &hits)
	v := newTestValidator()
	ctx := context.Background()

	require.True(t, v.Validate(ctx, ModeLightweight, srv.URL+"/feed.xml"))
	require.True(t, v.Validate(ctx, ModeLightweight, srv.URL+"/json"), "application/* passes the lightweight check")
	require.False(t, v.Validate(ctx, ModeLightweight, srv.URL+"/page"))
	require.False(t, v.Validate(ctx, ModeLightweight, srv.URL+"/missing"))
}

func TestFeedValidatorMemoizesVerdicts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newValidatorServer(t, &hits)
	v := newTestValidator()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, v.Validate(ctx, ModeParse, srv.URL+"/feed.xml"))
	}
	require.Equal(t, int32(1), hits.Load())

	require.True(t, v.Validate(ctx, ModeLightweight, srv.URL+"/feed.xml"))
	require.Equal(t, int32(2), hits.Load(), "modes are cached separately")
}
