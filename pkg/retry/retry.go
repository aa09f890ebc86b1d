package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"heliodata/pkg/config"
	herrors "heliodata/pkg/errors"
	"heliodata/pkg/logger"
)

// Config controls how one archive request is retried
type Config struct {
	// MaxAttempts caps the number of attempts; 0 means unlimited
	MaxAttempts int
	// Backoff schedules waits between attempts
	Backoff Backoff
	// Throttled replaces Backoff for rate_limit errors when set
	Throttled Backoff
	// MaxRetryAfter caps a server-requested wait; 0 means no cap
	MaxRetryAfter time.Duration
	// RetryIf reports whether err is worth another attempt
	RetryIf func(error) bool
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig returns three attempts with exponential backoff
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:   3,
		Backoff:       DefaultExponential(),
		Throttled:     Throttled(),
		MaxRetryAfter: 10 * time.Minute,
		RetryIf:       DefaultRetryIf,
		Logger:        logger.Nop(),
	}
}

// FromSettings builds a Config from the retry section of the configuration.
// A disabled section yields a single attempt.
func FromSettings(rc config.RetryConfig, log logger.Logger) *Config {
	cfg := DefaultConfig()
	if log != nil {
		cfg.Logger = log
	}
	if !rc.Enabled {
		cfg.MaxAttempts = 1
		return cfg
	}
	cfg.MaxAttempts = rc.MaxAttempts
	cfg.Backoff = &Exponential{
		Base:       rc.BaseDelay,
		Max:        rc.MaxDelay,
		Multiplier: rc.Multiplier,
		Jitter:     rc.JitterFactor,
	}
	return cfg
}

// DefaultRetryIf retries errors classified as retriable. Context
// cancellation is never retried.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return herrors.KindOf(err) == herrors.KindRetriable
}

// ExhaustedError is returned when every attempt failed with a retriable
// error. It unwraps to the last error, so its Kind stays retriable.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs op until it succeeds, fails permanently, runs out of attempts or
// ctx is done.
func Do(ctx context.Context, cfg *Config, op func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("Request succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		if !retryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := cfg.delay(attempt, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WithError(err).WarnWithFields("Retrying request", map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		})

		if werr := sleep(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

// DoWithResult is Do for operations that return a value
func DoWithResult[T any](ctx context.Context, cfg *Config, op func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}

// delay picks the wait after a failed attempt. A Retry-After hint from the
// archive replaces the throttled schedule and otherwise only lengthens the
// wait.
func (c *Config) delay(attempt int, err error) time.Duration {
	throttled := herrors.TypeOf(err) == herrors.ErrorTypeRateLimit

	hint := herrors.RetryAfterOf(err)
	if c.MaxRetryAfter > 0 && hint > c.MaxRetryAfter {
		hint = c.MaxRetryAfter
	}
	if throttled && hint > 0 {
		return hint
	}

	b := c.Backoff
	if throttled && c.Throttled != nil {
		b = c.Throttled
	}
	if b == nil {
		b = DefaultExponential()
	}
	if d := b.Delay(attempt); d > hint {
		return d
	}
	return hint
}
