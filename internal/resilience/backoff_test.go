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

package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func transient() error {
	return &RetryableError{Provider: "test", StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
}

func TestDefaultBackoffConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	if config.BaseDelay != 1*time.Second {
		t.Errorf("Expected BaseDelay to be 1 second, got %v", config.BaseDelay)
	}

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries to be 3, got %d", config.MaxRetries)
	}

	if config.Multiplier != 2.0 {
		t.Errorf("Expected Multiplier to be 2.0, got %f", config.Multiplier)
	}
}

func TestWithExponentialBackoff_SuccessAfterRetry(t *testing.T) {
	config := DefaultBackoffConfig()
	config.BaseDelay = 10 * time.Millisecond

	attempts := 0
	fn := func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return transient()
		}
		return nil
	}

	if err := WithExponentialBackoff(context.Background(), zap.NewNop(), config, fn); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestWithExponentialBackoff_ExhaustRetries(t *testing.T) {
	config := DefaultBackoffConfig()
	config.BaseDelay = time.Millisecond
	config.MaxRetries = 2

	attempts := 0
	testError := transient()
	fn := func(_ context.Context) error {
		attempts++
		return testError
	}

	err := WithExponentialBackoff(context.Background(), zap.NewNop(), config, fn)
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	if !errors.Is(err, testError) {
		t.Errorf("Expected wrapped error to contain original error")
	}
}

func TestWithExponentialBackoff_UntaggedErrorNotRetried(t *testing.T) {
	config := DefaultBackoffConfig()
	config.BaseDelay = time.Millisecond

	attempts := 0
	fn := func(_ context.Context) error {
		attempts++
		// Message mentions "rate" and "timeout" but carries no tag.
		return errors.New("rate limit timeout")
	}

	err := WithExponentialBackoff(context.Background(), zap.NewNop(), config, fn)
	if err == nil {
		t.Fatal("Expected error")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for untagged error, got %d", attempts)
	}
}

func TestWithExponentialBackoff_ContextCancellation(t *testing.T) {
	config := DefaultBackoffConfig()
	config.BaseDelay = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	fn := func(_ context.Context) error {
		attempts++
		return transient()
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := WithExponentialBackoff(ctx, zap.NewNop(), config, fn)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	if attempts != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestRetryWithBackoff_ReturnsValue(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond}

	calls := 0
	got, err := RetryWithBackoff(context.Background(), zap.NewNop(), policy, func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", transient()
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got != "ok" {
		t.Errorf("Expected ok, got %q", got)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_Timing(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the real one second base delay")
	}

	var stamps []time.Time
	got, err := RetryWithBackoff(context.Background(), zap.NewNop(), DefaultRetryPolicy(), func(_ context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return 0, &RetryableError{StatusCode: StatusOverloaded, Message: "overloaded"}
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	if len(stamps) != 3 {
		t.Fatalf("Expected 3 calls, got %d", len(stamps))
	}
	if d := stamps[1].Sub(stamps[0]); d < time.Second {
		t.Errorf("Expected at least 1s before second attempt, got %v", d)
	}
	if d := stamps[2].Sub(stamps[1]); d < 2*time.Second {
		t.Errorf("Expected at least 2s before third attempt, got %v", d)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	last := transient()

	calls := 0
	_, err := RetryWithBackoff(context.Background(), nil, policy, func(_ context.Context) (struct{}, error) {
		calls++
		return struct{}{}, last
	})

	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if err == nil || err.Error() != "failed after 3 retries" {
		t.Fatalf("Expected 'failed after 3 retries', got %v", err)
	}

	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected RetriesExhaustedError, got %T", err)
	}
	if !errors.Is(err, last) {
		t.Errorf("Expected last attempt error to stay reachable")
	}
}

func TestRetryWithBackoff_NonRetryablePropagates(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	boom := errors.New("bad request")

	calls := 0
	_, err := RetryWithBackoff(context.Background(), nil, policy, func(_ context.Context) (int, error) {
		calls++
		return 0, boom
	})

	if err != boom {
		t.Errorf("Expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), nil, RetryPolicy{}, func(_ context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestBackoffDelayHonoursRetryAfter(t *testing.T) {
	config := BackoffConfig{BaseDelay: 10 * time.Millisecond, Multiplier: 2}
	err := &RetryableError{StatusCode: http.StatusTooManyRequests, RetryAfter: time.Second}

	if d := backoffDelay(config, 0, err); d != time.Second {
		t.Errorf("Expected Retry-After to win, got %v", d)
	}
	if d := backoffDelay(config, 2, transient()); d != 40*time.Millisecond {
		t.Errorf("Expected 40ms, got %v", d)
	}
}
