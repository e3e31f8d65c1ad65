package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// Breaker is the classifier-path circuit breaker. Unlike the gobreaker
// circuit used for infrastructure calls, it has no half-open probe
// state: once the timeout has elapsed since opening, the next state
// check closes it outright, and the next exhausted retry cycle reopens
// it immediately. Activation happens only after retries are exhausted,
// so the trip decision stays with the retry policy, not with raw counts.
type Breaker struct {
	mu      sync.Mutex
	open    bool
	since   time.Time
	timeout time.Duration
	clock   func() time.Time
}

const DefaultBreakerTimeout = 300 * time.Second

func NewBreaker(timeout time.Duration) *Breaker {
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}
	return &Breaker{timeout: timeout, clock: time.Now}
}

// SetClock replaces the time source. Test hook.
func (b *Breaker) SetClock(clock func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = clock
}

// Activate opens the breaker for the configured timeout window.
func (b *Breaker) Activate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		slog.Warn("circuit_breaker_open", "timeout_s", b.timeout.Seconds())
	}
	b.open = true
	b.since = b.clock()
}

// Open reports whether the breaker currently blocks calls, closing it
// as a side effect once the timeout window has elapsed.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return false
	}
	if b.clock().Sub(b.since) >= b.timeout {
		b.open = false
		slog.Info("circuit_breaker_closed", "open_for_s", b.clock().Sub(b.since).Seconds())
		return false
	}
	return true
}
