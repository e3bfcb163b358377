// Package ratelimit paces browser sessions with one token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// Config sets the per-host budget. A non-positive QPS disables pacing.
type Config struct {
	QPS   float64
	Burst int
}

// Limiter hands out per-host rate.Limiters created on first use.
type Limiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	l := &Limiter{limit: rate.Inf, burst: max(cfg.Burst, 1), hosts: map[string]*rate.Limiter{}}
	if cfg.QPS > 0 {
		l.limit = rate.Limit(cfg.QPS)
	}
	return l
}

// Wait blocks until the host of rawURL may start another session.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil || l.limit == rate.Inf {
		return nil
	}
	if err := l.bucket(crawler.HostOf(rawURL)).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.hosts[host] = b
	}
	return b
}
