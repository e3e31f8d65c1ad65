package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer serializes the request-issuance moment across workers: a
// sliding one-minute window of request timestamps plus a minimum
// inter-request spacing. Wait sleeps the calling goroutine until the
// window has room, then releases it to make the call; the response wait
// itself is not serialized.
type Pacer struct {
	mu        sync.Mutex
	stamps    []time.Time
	perMinute int
	spacing   *rate.Limiter

	clock func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewPacer(requestsPerMinute int, minInterval time.Duration) *Pacer {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 50
	}
	if minInterval <= 0 {
		minInterval = 100 * time.Millisecond
	}
	return &Pacer{
		perMinute: requestsPerMinute,
		spacing:   rate.NewLimiter(rate.Every(minInterval), 1),
		clock:     time.Now,
		sleep:     sleepContext,
	}
}

// SetClock replaces time source and sleeper. Test hook.
func (p *Pacer) SetClock(clock func() time.Time, sleep func(context.Context, time.Duration) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
	p.sleep = sleep
}

func (p *Pacer) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		now := p.clock()
		p.pruneLocked(now)
		if len(p.stamps) < p.perMinute {
			p.stamps = append(p.stamps, now)
			p.mu.Unlock()
			return p.spacing.Wait(ctx)
		}
		wait := p.stamps[0].Add(time.Minute).Sub(now)
		sleep := p.sleep
		p.mu.Unlock()

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p *Pacer) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	idx := 0
	for idx < len(p.stamps) && !p.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		p.stamps = append(p.stamps[:0], p.stamps[idx:]...)
	}
}

// Window reports how many requests were issued in the last minute.
func (p *Pacer) Window() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked(p.clock())
	return len(p.stamps)
}
