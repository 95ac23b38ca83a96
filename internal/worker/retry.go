package worker

import (
	"math"
	"time"
)

// Policy defines the retry budget and exponential backoff for queued items.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Factor     float64
}

// DefaultPolicy matches the engine's bounded-retry contract: three attempts,
// doubling delay from two seconds, capped at one minute.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   time.Minute,
		Factor:     2,
	}
}

// Delay returns the backoff before the given retry (1-based), clamped to
// [BaseDelay, MaxDelay].
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 2
	}

	d := time.Duration(float64(base) * math.Pow(factor, float64(retry-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < base {
		d = base
	}
	return d
}
