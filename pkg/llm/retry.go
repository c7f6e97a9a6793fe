package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/harunnryd/asisten/pkg/resilience"
)

// RetryConfig bounds how often a generation is attempted. Zero values pick
// 3 attempts with exponential backoff from 100ms capped at 2s.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter adds up to this fraction of the delay at random.
	Jitter      float64
	IsRetryable func(error) bool
	// Sleep replaces the context-aware wait between attempts, mainly in tests.
	Sleep func(time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.IsRetryable == nil {
		c.IsRetryable = DefaultIsRetryable
	}
	return c
}

// delay is the wait after the given zero-based failed attempt.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := c.MaxDelay
	if attempt < 32 {
		d = c.BaseDelay << attempt
	}
	if d <= 0 || d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter > 0 {
		d += time.Duration(float64(d) * c.Jitter * rand.Float64())
	}
	return d
}

func (c RetryConfig) wait(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		c.Sleep(d)
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx ends. Cancellation is returned as ctx.Err() unwrapped.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) (Response, error)) (Response, error) {
	cfg = cfg.withDefaults()
	var lastErr error
	for attempt := range cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == cfg.MaxAttempts-1 || !cfg.IsRetryable(err) {
			break
		}
		if werr := cfg.wait(ctx, cfg.delay(attempt)); werr != nil {
			return Response{}, werr
		}
	}
	return Response{}, fmt.Errorf("llm retry failed: %w", lastErr)
}

// DefaultIsRetryable retries network errors, rate limits and 5xx responses.
// Cancellation and 4xx responses are final.
func DefaultIsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case resilience.IsRateLimit(err):
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	var status StatusError
	if errors.As(err, &status) {
		return status.Code >= 500 || status.Code == 429
	}
	return true
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}
