package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(retries int) RetryConfig {
	return RetryConfig{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestDefaultRetryConfig(t *testing.T) {
	c := DefaultRetryConfig()
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, c.BaseDelay)
	assert.Equal(t, 10*time.Second, c.MaxDelay)
	assert.True(t, c.Jitter)
}

func TestDoEventualSuccess(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, nil)

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.NoError(t, res.LastError)
}

func TestDoGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	res := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return boom
	}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, res.LastError, boom)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("not found")
	calls := 0
	res := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, res.LastError, permanent)
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	calls := 0
	res := Do(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("timeout")
	}, nil)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, res.LastError, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 0))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10))

	cfg.Jitter = true
	for i := 0; i < 50; i++ {
		d := calculateDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 180*time.Millisecond)
		assert.LessOrEqual(t, d, 220*time.Millisecond)
	}
}
