package retry

import (
	"context"
	"math"
	"time"
)

// Strategy selects how the delay grows between attempts
type Strategy string

const (
	StrategyExponential Strategy = "exponential" // base * multiplier^(n-1)
	StrategyLinear      Strategy = "linear"      // base * n
)

// Policy is an explicit backoff policy shared by the fetch layer and the queue processor
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts"`         // Total attempts including the first one
	BaseDelay   time.Duration `yaml:"base_delay"`           // Delay before the first retry
	Multiplier  float64       `yaml:"multiplier,omitempty"` // Growth factor for exponential strategy
	MaxDelay    time.Duration `yaml:"max_delay,omitempty"`  // Cap on any single delay (0 = uncapped)
	Strategy    Strategy      `yaml:"strategy,omitempty"`
}

// Exponential returns a doubling policy: base, 2*base, 4*base, ...
func Exponential(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		Multiplier:  2,
		Strategy:    StrategyExponential,
	}
}

// Linear returns a policy whose n-th retry waits n*base
func Linear(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		Strategy:    StrategyLinear,
	}
}

// Delay returns the wait before retry number n (1-based); n <= 0 yields no delay
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 || p.BaseDelay <= 0 {
		return 0
	}

	var delay float64
	switch p.Strategy {
	case StrategyLinear:
		delay = float64(p.BaseDelay) * float64(n)
	default:
		mult := p.Multiplier
		if mult <= 0 {
			mult = 2
		}
		delay = float64(p.BaseDelay) * math.Pow(mult, float64(n-1))
	}

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Attempts returns the effective attempt bound (at least one attempt is always made)
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Sleep waits for d or until ctx is done, whichever comes first.
// Returns ctx.Err() if the wait was interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
