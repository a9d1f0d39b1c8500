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
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusOverloaded is the non-standard status Anthropic returns when the API is overloaded.
const StatusOverloaded = 529

// RetryableError marks a transient upstream failure. The HTTP client layer
// creates it; the retry loop only ever inspects the tag, never the message.
type RetryableError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Timeout    bool
	Err        error
}

func (e *RetryableError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s request timed out: %s", e.providerName(), e.Message)
	}
	return fmt.Sprintf("retryable error from %s (status %d): %s", e.providerName(), e.StatusCode, e.Message)
}

// Unwrap returns the underlying transport error, if any.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable reports true; it is the tag checked by IsRetryable.
func (e *RetryableError) Retryable() bool {
	return true
}

func (e *RetryableError) providerName() string {
	if e.Provider == "" {
		return "provider"
	}
	return e.Provider
}

// IsRetryable reports whether err, or anything it wraps, is tagged retryable.
func IsRetryable(err error) bool {
	var tagged interface{ Retryable() bool }
	if errors.As(err, &tagged) {
		return tagged.Retryable()
	}
	return false
}

// IsTimeout reports whether err is a retryable error raised by an expired budget.
func IsTimeout(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr) && retryErr.Timeout
}

// IsRetryableStatus reports whether an upstream HTTP status is worth retrying.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, StatusOverloaded,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ParseRetryAfter converts a Retry-After header holding seconds into a duration.
func ParseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
