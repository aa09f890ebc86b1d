package ratelimit

import (
	"context"
	"sync"
	"time"

	"heliodata/pkg/config"
)

// Limiter paces requests to an archive
type Limiter interface {
	// Allow reports whether a request may proceed now and consumes a slot
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the limiter to its initial state
	Reset()
}

// New builds the limiter described by cfg. Both limits apply when both are
// set; with neither the result never blocks.
func New(cfg config.RateLimitConfig) Limiter {
	var all Chain
	if cfg.RequestsPerMinute > 0 {
		all = append(all, NewWindow(cfg.RequestsPerMinute, time.Minute))
	}
	if cfg.MinInterval > 0 {
		all = append(all, NewSpacing(cfg.MinInterval))
	}
	switch len(all) {
	case 0:
		return Unlimited{}
	case 1:
		return all[0]
	}
	return all
}

// PerMinute admits rpm requests per rolling minute, or everything when rpm
// is not positive.
func PerMinute(rpm int) Limiter {
	return New(config.RateLimitConfig{RequestsPerMinute: rpm})
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}

// Window admits at most max requests in any rolling window of size
type Window struct {
	mu   sync.Mutex
	max  int
	size time.Duration
	sent []time.Time
	now  func() time.Time
}

// NewWindow creates a rolling-window limiter
func NewWindow(max int, size time.Duration) *Window {
	return &Window{max: max, size: size, sent: make([]time.Time, 0, max), now: time.Now}
}

func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.reserve()
	return ok
}

func (w *Window) Wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		delay, ok := w.reserve()
		w.mu.Unlock()
		if ok {
			return nil
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (w *Window) Reset() {
	w.mu.Lock()
	w.sent = w.sent[:0]
	w.mu.Unlock()
}

// reserve records a request when the window has room; otherwise it returns
// how long until the oldest request leaves the window. Callers hold mu.
func (w *Window) reserve() (time.Duration, bool) {
	now := w.now()
	cutoff := now.Add(-w.size)
	drop := 0
	for drop < len(w.sent) && !w.sent[drop].After(cutoff) {
		drop++
	}
	w.sent = append(w.sent[:0], w.sent[drop:]...)

	if len(w.sent) < w.max {
		w.sent = append(w.sent, now)
		return 0, true
	}
	return w.sent[0].Sub(cutoff), false
}

// Spacing keeps at least gap between consecutive requests. JSOC and VSO ask
// clients not to fire requests back to back even at low volume.
type Spacing struct {
	mu   sync.Mutex
	gap  time.Duration
	last time.Time
	now  func() time.Time
}

// NewSpacing creates a limiter enforcing a minimum gap between requests
func NewSpacing(gap time.Duration) *Spacing {
	return &Spacing{gap: gap, now: time.Now}
}

func (s *Spacing) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reserve()
	return ok
}

func (s *Spacing) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		delay, ok := s.reserve()
		s.mu.Unlock()
		if ok {
			return nil
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *Spacing) Reset() {
	s.mu.Lock()
	s.last = time.Time{}
	s.mu.Unlock()
}

func (s *Spacing) reserve() (time.Duration, bool) {
	now := s.now()
	if !s.last.IsZero() {
		if wait := s.last.Add(s.gap).Sub(now); wait > 0 {
			return wait, false
		}
	}
	s.last = now
	return 0, true
}

// Chain requires every limiter to admit a request. Wait acquires them in
// order, so a slot taken from an earlier limiter may go unused if a later
// one is cancelled.
type Chain []Limiter

func (c Chain) Allow() bool {
	for _, l := range c {
		if !l.Allow() {
			return false
		}
	}
	return true
}

func (c Chain) Wait(ctx context.Context) error {
	for _, l := range c {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) Reset() {
	for _, l := range c {
		l.Reset()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = 10 * time.Millisecond
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
