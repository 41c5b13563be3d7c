package llm

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	derrors "github.com/snowpilotorg/dedupit/internal/errors"
)

// RetryConfig configures the rate-limit retry policy.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including
	// the initial attempt).
	MaxRetries int

	// InitialDelay is the delay before the first retry; it doubles on
	// each subsequent retry unless the API supplies a retry-after.
	InitialDelay time.Duration
}

// DefaultRetryConfig returns the default rate-limit retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   5,
		InitialDelay: 1 * time.Second,
	}
}

// RetryRateLimited runs fn, retrying only on API rate-limit errors. The wait
// before retry n is the API's retry-after when supplied, otherwise
// InitialDelay * 2^(n-1). Any other error kind propagates immediately; after
// exhaustion the last rate-limit error propagates. Context cancellation
// aborts both the call and the waits.
func RetryRateLimited[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.InitialDelay

	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !isRateLimit(err) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			slog.Error("rate limit retries exhausted",
				slog.Int("max_retries", cfg.MaxRetries))
			return zero, derrors.Wrap(derrors.ErrCodeRateLimited, err)
		}

		wait := delay
		if ra, ok := retryAfter(err); ok {
			wait = ra
		}

		slog.Warn("rate limit hit, backing off",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", cfg.MaxRetries),
			slog.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

// isRateLimit reports whether err is an Anthropic API rate-limit error.
func isRateLimit(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// retryAfter extracts the API's retry-after hint when present.
func retryAfter(err error) (time.Duration, bool) {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) || apiErr.Response == nil {
		return 0, false
	}
	header := apiErr.Response.Header.Get("retry-after")
	if header == "" {
		return 0, false
	}
	secs, perr := strconv.ParseFloat(header, 64)
	if perr != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
