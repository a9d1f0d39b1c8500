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
	"time"

	"go.uber.org/zap"
)

const (
	// MinProviderTimeout is the smallest budget accepted for one provider call
	MinProviderTimeout = 15 * time.Second
	// MaxProviderTimeout is the largest budget accepted for one provider call
	MaxProviderTimeout = 30 * time.Second
)

// TimeoutFunc is a function that can be executed with a timeout
type TimeoutFunc func(ctx context.Context) error

// WithTimeout executes fn under a budget derived from ctx. When the budget
// expires first, the call is abandoned and a retryable timeout error is
// returned. Cancellation of ctx itself is returned unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, logger *zap.Logger, fn TimeoutFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()

	select {
	case err := <-done:
		if err != nil && timeoutCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			// fn noticed the expired budget before we did
			return newTimeoutError(timeout, err)
		}
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Operation timed out",
			zap.Duration("timeout", timeout),
			zap.Error(timeoutCtx.Err()))
		return newTimeoutError(timeout, timeoutCtx.Err())
	}
}

// ClampProviderTimeout keeps a configured budget within the provider range.
func ClampProviderTimeout(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return MaxProviderTimeout
	case timeout < MinProviderTimeout:
		return MinProviderTimeout
	case timeout > MaxProviderTimeout:
		return MaxProviderTimeout
	default:
		return timeout
	}
}

func newTimeoutError(timeout time.Duration, err error) *RetryableError {
	return &RetryableError{
		Message: "no response within " + timeout.String(),
		Timeout: true,
		Err:     err,
	}
}
