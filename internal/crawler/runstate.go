package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RunState carries mutable per-run bookkeeping. A fresh RunState is created
// for every pipeline run so counters never leak across runs or tests.
type RunState struct {
	mu        sync.Mutex
	threshold uint32
	cooldown  time.Duration
	breakers  map[string]*gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewRunState creates a RunState whose per-host breakers open after
// threshold consecutive rate-limit failures. A zero threshold disables them.
func NewRunState(threshold int, cooldown time.Duration, logger *zap.Logger) *RunState {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	if threshold < 0 {
		threshold = 0
	}
	return &RunState{
		threshold: uint32(threshold),
		cooldown:  cooldown,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		logger:    logger,
	}
}

// Breaker returns the circuit breaker for host, or nil when disabled.
func (s *RunState) Breaker(host string) *gobreaker.CircuitBreaker {
	if s == nil || s.threshold == 0 {
		return nil
	}
	key := strings.ToLower(host)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[key]; ok {
		return cb
	}
	threshold := s.threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     s.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrRateLimited)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("Rate-limit breaker state change",
				zap.String("host", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	s.breakers[key] = cb
	return cb
}

// Guard runs fn through host's breaker. An open breaker returns an error
// wrapping both ErrRateLimited and gobreaker.ErrOpenState.
func (s *RunState) Guard(host string, fn func() error) error {
	cb := s.Breaker(host)
	if cb == nil {
		return fn()
	}
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrRateLimited, host, err)
	}
	return err
}

// Open reports whether host's breaker currently rejects calls.
func (s *RunState) Open(host string) bool {
	cb := s.Breaker(host)
	return cb != nil && cb.State() == gobreaker.StateOpen
}

type runStateKey struct{}

// WithRunState attaches state to ctx.
func WithRunState(ctx context.Context, state *RunState) context.Context {
	return context.WithValue(ctx, runStateKey{}, state)
}

// RunStateFrom returns the RunState attached to ctx, or nil.
func RunStateFrom(ctx context.Context) *RunState {
	state, _ := ctx.Value(runStateKey{}).(*RunState)
	return state
}
