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

package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/resilience"
)

type retryingCompleter struct {
	next   Completer
	policy resilience.RetryPolicy
	logger *zap.Logger
}

// WithRetry wraps c so transient failures (429, 529, gateway 5xx, expired
// budget) are retried with exponential backoff under policy.
func WithRetry(c Completer, policy resilience.RetryPolicy, logger *zap.Logger) Completer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryingCompleter{next: c, policy: policy, logger: logger}
}

func (r *retryingCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	return resilience.RetryWithBackoff(ctx, r.logger, r.policy, func(ctx context.Context) (*Response, error) {
		return r.next.Complete(ctx, req)
	})
}

type retryingStreamCompleter struct {
	Completer
	stream StreamCompleter
}

// WithStreamRetry applies WithRetry to Complete. Streams are not retried:
// once deltas have reached the caller a replay would duplicate them.
func WithStreamRetry(c StreamCompleter, policy resilience.RetryPolicy, logger *zap.Logger) StreamCompleter {
	return &retryingStreamCompleter{Completer: WithRetry(c, policy, logger), stream: c}
}

func (r *retryingStreamCompleter) CompleteStream(ctx context.Context, req Request, onDelta func(string) error) error {
	return r.stream.CompleteStream(ctx, req, onDelta)
}
