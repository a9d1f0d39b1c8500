// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package resilience provides retry, timeout and error classification helpers
// shared by every upstream provider call in the demo gateway.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig holds configuration for exponential backoff retry logic
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxRetries  int
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
	RetryOnFunc func(error) bool
}

const (
	// DefaultMaxRetries is the default maximum number of retry attempts
	DefaultMaxRetries = 3
	// DefaultMaxDelaySeconds is the default maximum delay in seconds
	DefaultMaxDelaySeconds = 30
	// DefaultMultiplier is the default exponential backoff multiplier
	DefaultMultiplier = 2.0
	// DefaultBaseDelay is the delay before the first retry
	DefaultBaseDelay = time.Second
	// JitterModulus is used for random jitter calculation
	JitterModulus = 1000
)

// DefaultBackoffConfig returns the default configuration for exponential backoff:
// base delay 1s, max retries 3, doubles per retry, jittered.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:   DefaultBaseDelay,
		MaxRetries:  DefaultMaxRetries,
		MaxDelay:    DefaultMaxDelaySeconds * time.Second,
		Multiplier:  DefaultMultiplier,
		Jitter:      true,
		RetryOnFunc: DefaultRetryOnFunc,
	}
}

// DefaultRetryOnFunc retries only errors tagged as retryable by the client layer.
func DefaultRetryOnFunc(err error) bool {
	if err == nil {
		return false
	}

	// A provider budget expiring is tagged by WithTimeout; a bare context
	// error means the caller gave up.
	if errors.Is(err, context.Canceled) {
		return false
	}

	return IsRetryable(err)
}

// RetryFunc is a function that can be retried with exponential backoff
type RetryFunc func(ctx context.Context) error

// WithExponentialBackoff executes a function with exponential backoff retry logic
func WithExponentialBackoff(ctx context.Context, logger *zap.Logger, config BackoffConfig, fn RetryFunc) error {
	attempts, exhausted, err := runWithBackoff(ctx, logger, config, fn)
	if exhausted {
		return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
	}
	return err
}

// runWithBackoff drives the retry loop. exhausted reports whether every
// allowed attempt ran and failed with a retryable error.
func runWithBackoff(ctx context.Context, logger *zap.Logger, config BackoffConfig, fn RetryFunc) (int, bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	retryOn := config.RetryOnFunc
	if retryOn == nil {
		retryOn = DefaultRetryOnFunc
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		attempts++
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt+1),
					zap.Int("total_attempts", config.MaxRetries+1))
			}
			return attempts, false, nil
		}

		lastErr = err

		if !retryOn(err) {
			logger.Debug("Error is not retryable, stopping attempts",
				zap.Error(err),
				zap.Int("attempt", attempt+1))
			return attempts, false, err
		}

		// Don't sleep on the last attempt
		if attempt == config.MaxRetries {
			break
		}

		delay := backoffDelay(config, attempt, err)

		logger.Debug("Retrying after delay",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Int("max_retries", config.MaxRetries))

		select {
		case <-ctx.Done():
			return attempts, false, ctx.Err()
		case <-time.After(delay):
		}
	}

	logger.Error("All retry attempts exhausted",
		zap.Error(lastErr),
		zap.Int("total_attempts", attempts))

	return attempts, true, lastErr
}

// backoffDelay computes the wait before the retry that follows attempt.
func backoffDelay(config BackoffConfig, attempt int, err error) time.Duration {
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	// A Retry-After hint from the provider can only lengthen the wait.
	var retryErr *RetryableError
	if errors.As(err, &retryErr) && retryErr.RetryAfter > delay {
		delay = retryErr.RetryAfter
	}

	if config.Jitter {
		jitter := time.Duration(float64(delay) * 0.1 * (2*float64(time.Now().UnixNano()%JitterModulus)/JitterModulus - 1))
		delay += jitter
	}

	return delay
}

// RetryPolicy is the fixed, unjittered policy used around provider calls:
// fn runs at most MaxAttempts times and the wait before attempt i (0-indexed)
// is 2^(i-1) * BaseDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns three attempts with a one second base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxRetries,
		BaseDelay:   DefaultBaseDelay,
	}
}

// RetriesExhaustedError is returned once every attempt of RetryWithBackoff
// failed with a retryable error. The message only names the attempt count;
// the last provider error stays reachable through errors.As and Unwrap.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d retries", e.Attempts)
}

// Unwrap returns the error from the final attempt.
func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// RetryWithBackoff calls fn until it succeeds, returns a non-retryable error,
// or the policy's attempts run out.
func RetryWithBackoff[T any](ctx context.Context, logger *zap.Logger, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	config := BackoffConfig{
		BaseDelay:   policy.BaseDelay,
		MaxRetries:  maxAttempts - 1,
		Multiplier:  DefaultMultiplier,
		Jitter:      false,
		RetryOnFunc: IsRetryable,
	}

	var result T
	_, exhausted, err := runWithBackoff(ctx, logger, config, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if exhausted {
		return zero, &RetriesExhaustedError{Attempts: maxAttempts, Last: err}
	}
	if err != nil {
		return zero, err
	}
	return result, nil
}
