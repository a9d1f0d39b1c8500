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

// Package llm defines the provider-neutral request and response types shared
// by the OpenAI, Groq and Claude clients, plus response envelope extraction.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/your-org/ai-demo-gateway/internal/resilience"
)

// Message roles accepted by every provider
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call. System is sent the way each provider
// expects it (a leading message for OpenAI, the top-level field for Claude).
type Request struct {
	Model        string
	System       string
	Messages     []Message
	MaxTokens    int
	Temperature  float32
	ImageDataURL string
}

// Usage reports token accounting returned by the provider
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response holds the extracted completion text
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// Completer issues one completion call to an upstream provider
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// StreamCompleter additionally streams completion deltas in arrival order
type StreamCompleter interface {
	Completer
	CompleteStream(ctx context.Context, req Request, onDelta func(delta string) error) error
}

// CompleterFunc adapts a function to the Completer interface
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

// Complete implements Completer
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// ProviderError is a non-retryable upstream failure with the provider's own
// error text preserved for diagnostics.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// StatusError builds the error for a non-2xx provider response, tagging it
// retryable when the status is transient.
func StatusError(provider string, resp *http.Response, body []byte) error {
	message := ExtractErrorMessage(body)
	if resilience.IsRetryableStatus(resp.StatusCode) {
		return &resilience.RetryableError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    message,
			RetryAfter: resilience.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Body: message}
}

// UserText returns a request holding a system prompt and one user message.
func UserText(system, text string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: text}},
	}
}

// ValidRole reports whether role may appear in a client-supplied conversation
func ValidRole(role string) bool {
	switch strings.ToLower(role) {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}
