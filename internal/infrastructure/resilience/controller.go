package resilience

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/formvault/formvault/internal/core/domain"
)

type Config struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	RateLimitBaseDelay time.Duration
	RateLimitMaxDelay  time.Duration
	BreakerTimeout     time.Duration
	ErrorRateWindow    time.Duration
	ErrorRateThreshold float64 // errors per minute
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:         3,
		BaseDelay:          time.Second,
		MaxDelay:           30 * time.Second,
		RateLimitBaseDelay: 5 * time.Second,
		RateLimitMaxDelay:  120 * time.Second,
		BreakerTimeout:     DefaultBreakerTimeout,
		ErrorRateWindow:    10 * time.Minute,
		ErrorRateThreshold: 0.5,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.MaxRetries <= 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = def.BaseDelay
	}
	if out.MaxDelay < out.BaseDelay {
		out.MaxDelay = def.MaxDelay
	}
	if out.RateLimitBaseDelay <= 0 {
		out.RateLimitBaseDelay = def.RateLimitBaseDelay
	}
	if out.RateLimitMaxDelay < out.RateLimitBaseDelay {
		out.RateLimitMaxDelay = def.RateLimitMaxDelay
	}
	if out.BreakerTimeout <= 0 {
		out.BreakerTimeout = def.BreakerTimeout
	}
	if out.ErrorRateWindow <= 0 {
		out.ErrorRateWindow = def.ErrorRateWindow
	}
	if out.ErrorRateThreshold <= 0 {
		out.ErrorRateThreshold = def.ErrorRateThreshold
	}
	return out
}

// KeywordFallback is the first rung of the fallback chain: a cheap
// text-only classification with capped confidence.
type KeywordFallback interface {
	ClassifyPage(pageNumber int, text string) (domain.PageAnalysis, bool)
}

// RecoverFunc attempts to salvage one page's analysis from a malformed
// raw response. Second rung, tried only on parsing failures.
type RecoverFunc func(raw string, pageNumber int) (domain.PageAnalysis, bool)

// Controller wraps every classifier call-site: retry with exponential
// backoff, breaker activation after exhausted retries, proactive
// fallback on high error rate, and the fixed fallback chain when the
// real call is skipped or lost.
type Controller struct {
	cfg     Config
	breaker *Breaker
	stats   *ErrorStats
	keyword KeywordFallback
	recover RecoverFunc

	sleep func(context.Context, time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewController(cfg Config, stats *ErrorStats, keyword KeywordFallback, recoverFn RecoverFunc) *Controller {
	cfg = cfg.normalize()
	if stats == nil {
		stats = NewErrorStats()
	}
	return &Controller{
		cfg:     cfg,
		breaker: NewBreaker(cfg.BreakerTimeout),
		stats:   stats,
		keyword: keyword,
		recover: recoverFn,
		sleep:   sleepContext,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Controller) Breaker() *Breaker  { return c.breaker }
func (c *Controller) Stats() *ErrorStats { return c.stats }

// RecordParseFailure records a transported but unusable classifier
// response under the parsing category. These feed the same sliding
// error rate as transport failures, so a classifier returning garbage
// successfully still trips the proactive fallback guard.
func (c *Controller) RecordParseFailure(operation string, cause error) {
	c.stats.Record(CategoryParsing, cause.Error(), operation)
}

// SetSleep replaces the backoff sleeper. Test hook.
func (c *Controller) SetSleep(sleep func(context.Context, time.Duration) error) {
	c.sleep = sleep
}

// ShouldUseFallback reports whether the call-site should skip the real
// classifier: either the breaker is open, or the sliding error rate has
// crossed the threshold even with the breaker closed.
func (c *Controller) ShouldUseFallback() bool {
	if c.breaker.Open() {
		return true
	}
	rate := c.stats.RatePerMinute(c.cfg.ErrorRateWindow)
	if rate > c.cfg.ErrorRateThreshold {
		slog.Warn("error_rate_fallback", "rate_per_min", rate, "threshold", c.cfg.ErrorRateThreshold)
		return true
	}
	return false
}

// Call invokes the classifier with retries. Rate-limit-flavored errors
// back off on a longer, separately capped curve. After the final retry
// fails the breaker is activated and the last error returned; the
// caller is expected to take the fallback chain.
func (c *Controller) Call(ctx context.Context, operation string, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		raw, err := fn(ctx)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		c.stats.Record(CategoryAPI, err.Error(), operation)

		if attempt == c.cfg.MaxRetries {
			break
		}
		delay := c.backoffDelay(attempt, domain.IsRateLimited(err))
		slog.Warn("classifier_retry",
			"operation", operation,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"backoff_ms", float64(delay.Microseconds())/1000.0,
			"error_kind", string(domain.ClassifierErrorKindOf(err)),
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return "", lastErr
		}
	}

	c.breaker.Activate()
	return "", lastErr
}

// backoffDelay computes base * 2^attempt + jitter, capped.
func (c *Controller) backoffDelay(attempt int, rateLimited bool) time.Duration {
	base, ceiling := c.cfg.BaseDelay, c.cfg.MaxDelay
	if rateLimited {
		base, ceiling = c.cfg.RateLimitBaseDelay, c.cfg.RateLimitMaxDelay
	}

	delay := base << uint(attempt)
	if delay > ceiling || delay <= 0 {
		delay = ceiling
	}
	c.mu.Lock()
	jitter := time.Duration(c.rnd.Int63n(int64(delay)/4 + 1))
	c.mu.Unlock()
	if delay+jitter > ceiling {
		return ceiling
	}
	return delay + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
