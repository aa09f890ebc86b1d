package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heliodata/pkg/config"
	herrors "heliodata/pkg/errors"
	"heliodata/pkg/logger"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     Constant(time.Millisecond),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewTestLogger(),
	}
}

func TestExponential(t *testing.T) {
	backoff := &Exponential{
		Base:       100 * time.Millisecond,
		Max:        1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	backoff := &Exponential{
		Base:       100 * time.Millisecond,
		Max:        1 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.3,
	}

	for i := 0; i < 50; i++ {
		d := backoff.Delay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func TestDoSucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	var retried []int

	cfg := fastConfig(5)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return herrors.FromStatusCode(503, "http://archive")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		attempts++
		return herrors.NotAvailable("no data for 2021-06")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, herrors.ErrNotAvailable)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return herrors.New(herrors.ErrorTypeNetwork, "connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, herrors.KindRetriable, herrors.KindOf(err))
	assert.Equal(t, herrors.ErrorTypeNetwork, herrors.TypeOf(err))
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(0)
	cfg.Backoff = Constant(time.Hour)

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func() error {
			attempts++
			return herrors.New(herrors.ErrorTypeNetwork, "timeout")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}

	err := Do(ctx, cfg, func() error {
		t.Fatal("operation must not run with a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitUsesThrottledBackoff(t *testing.T) {
	cfg := fastConfig(2)
	cfg.Throttled = Constant(2 * time.Millisecond)

	var delays []time.Duration
	cfg.OnRetry = func(_ int, _ error, d time.Duration) { delays = append(delays, d) }

	_ = Do(context.Background(), cfg, func() error { return herrors.FromStatusCode(429, "u") })
	_ = Do(context.Background(), cfg, func() error { return herrors.FromStatusCode(502, "u") })

	assert.Equal(t, []time.Duration{2 * time.Millisecond, time.Millisecond}, delays)
}

func TestRetryAfterHint(t *testing.T) {
	cfg := fastConfig(2)
	cfg.Throttled = Constant(time.Hour)
	cfg.MaxRetryAfter = 50 * time.Millisecond

	throttled := herrors.FromStatusCode(429, "u")
	throttled.RetryAfter = 5 * time.Millisecond
	assert.Equal(t, 5*time.Millisecond, cfg.delay(1, throttled), "hint replaces the throttled schedule")

	throttled.RetryAfter = time.Minute
	assert.Equal(t, 50*time.Millisecond, cfg.delay(1, throttled), "hint is capped")

	busy := herrors.FromStatusCode(503, "u")
	busy.RetryAfter = 20 * time.Millisecond
	assert.Equal(t, 20*time.Millisecond, cfg.delay(1, busy), "hint lengthens a shorter backoff")

	cfg.Backoff = Constant(40 * time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, cfg.delay(1, busy), "hint never shortens the backoff")
	assert.Equal(t, 40*time.Millisecond, cfg.delay(1, errors.New("reset")))
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	path, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("untyped failure")
		}
		return "/tmp/a.fits", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.fits", path)
	assert.Equal(t, 2, calls)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.False(t, DefaultRetryIf(herrors.FromStatusCode(404, "u")))
	assert.True(t, DefaultRetryIf(herrors.FromStatusCode(500, "u")))
	assert.True(t, DefaultRetryIf(errors.New("flaky")))
}

func TestFromSettings(t *testing.T) {
	rc := config.RetryConfig{
		Enabled:      true,
		MaxAttempts:  4,
		BaseDelay:    2 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   3,
		JitterFactor: 0,
	}
	cfg := FromSettings(rc, nil)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 6*time.Second, cfg.Backoff.Delay(2))
	assert.NotNil(t, cfg.Logger)

	rc.Enabled = false
	assert.Equal(t, 1, FromSettings(rc, nil).MaxAttempts)
}
