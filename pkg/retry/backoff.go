package retry

import (
	"context"
	"math/rand"
	"time"
)

// Backoff computes the wait after a failed attempt
type Backoff interface {
	// Delay returns the wait after the given failed attempt (1-based)
	Delay(attempt int) time.Duration
}

// Exponential grows the delay by Multiplier per attempt up to Max, then
// spreads it by up to Jitter (a fraction of the delay) in either direction.
type Exponential struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultExponential is the backoff used when the retry section is absent
func DefaultExponential() *Exponential {
	return &Exponential{
		Base:       time.Second,
		Max:        time.Minute,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// Throttled is the slower schedule used after an archive answers 429
// without saying how long to wait.
func Throttled() *Exponential {
	return &Exponential{
		Base:       30 * time.Second,
		Max:        5 * time.Minute,
		Multiplier: 1.5,
		Jitter:     0.3,
	}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	m := e.Multiplier
	if m < 1 {
		m = 1
	}
	d := float64(e.Base)
	for i := 1; i < attempt; i++ {
		d *= m
		if e.Max > 0 && d >= float64(e.Max) {
			break
		}
	}
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}

	if e.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * e.Jitter
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Constant waits the same duration after every failure
type Constant time.Duration

func (c Constant) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(c)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
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
