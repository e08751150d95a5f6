package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer spaces successive actions of one scrape by a random delay between
// min and max. A zero Pacer never waits. It is not safe for concurrent use.
type Pacer struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	jitter     func(n int64) int64
}

func NewPacer(minDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   rand.Int64N,
	}
}

// Wait blocks until the delay since the previous Wait has passed, or ctx is
// done. The first call returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.maxDelay <= 0 {
		return nil
	}

	if !p.lastAction.IsZero() {
		elapsed := time.Since(p.lastAction)
		delay := p.calculateDelay()

		if elapsed < delay {
			timer := time.NewTimer(delay - elapsed)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	p.lastAction = time.Now()
	return nil
}

// Mark records an action without waiting, so the next Wait is spaced from it.
func (p *Pacer) Mark() {
	if p == nil {
		return
	}
	p.lastAction = time.Now()
}

func (p *Pacer) calculateDelay() time.Duration {
	if p.minDelay == p.maxDelay {
		return p.minDelay
	}
	delta := p.maxDelay - p.minDelay
	return p.minDelay + time.Duration(p.jitter(int64(delta)))
}
