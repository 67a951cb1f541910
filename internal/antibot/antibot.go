// Package antibot implements the pre-fetch throttling middleware: a token
// bucket plus a fixed delay with optional jitter. One Middleware instance is
// scoped to one crawl run, matching the engine's sequential dispatch.
package antibot

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/leobrain/crawler/internal/crawl"
	"github.com/leobrain/crawler/internal/metrics"
)

const maxJitter = 500 * time.Millisecond

const defaultQPS = 1.0

// Config holds throttling knobs. QPS <= 0 falls back to the 1.0/s default,
// so a constructed Middleware always carries a token bucket; Delay <= 0
// disables the fixed sleep.
type Config struct {
	QPS    float64
	Delay  time.Duration
	Jitter bool
}

// Middleware throttles outgoing requests. A nil *Middleware is a valid no-op.
type Middleware struct {
	limiter *rate.Limiter
	delay   time.Duration
	jitter  bool
}

// New builds a Middleware from config.
func New(cfg Config) *Middleware {
	qps := cfg.QPS
	if qps <= 0 {
		qps = defaultQPS
	}
	return &Middleware{
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
		delay:   cfg.Delay,
		jitter:  cfg.Jitter,
	}
}

// BeforeRequest blocks until the request may proceed: first a bucket token,
// then the fixed delay plus jitter. Both constraints apply sequentially.
func (m *Middleware) BeforeRequest(ctx context.Context, _ crawl.Request) error {
	if m == nil {
		return nil
	}
	start := time.Now()
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	wait := m.delay
	if m.jitter {
		wait += time.Duration(rand.Int63n(int64(maxJitter)))
	}
	if wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

// AfterRequest is a side-effect hook for future throttling adjustments.
func (m *Middleware) AfterRequest(_ *crawl.Response, _ crawl.Request) {}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("throttle sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
