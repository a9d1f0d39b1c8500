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

// Package openai adapts the go-openai client to the llm.Completer interface.
// Groq exposes an OpenAI-compatible API, so the same client serves both.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
)

const (
	// DefaultChatModel is used when neither the request nor the client names a model
	DefaultChatModel = "gpt-4o-mini"
	// DefaultGroqModel is the Groq model used by the voice chat demo
	DefaultGroqModel = "llama3-8b-8192"
	// GroqBaseURL is Groq's OpenAI-compatible endpoint
	GroqBaseURL = "https://api.groq.com/openai/v1"
	// DefaultMaxTokens bounds completions when the request leaves it unset
	DefaultMaxTokens = 1024
	// DefaultTimeout is the per-call provider budget
	DefaultTimeout = 30 * time.Second
)

// Client wraps the go-openai client with timeout handling and error tagging
type Client struct {
	client   *openai.Client
	logger   *zap.Logger
	model    string
	provider string
	timeout  time.Duration
}

// Option customises a Client
type Option func(*Client)

// WithModel sets the default model for requests that do not name one
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout sets the per-call budget
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = resilience.ClampProviderTimeout(timeout)
	}
}

// WithProviderName sets the name used in logs and errors
func WithProviderName(name string) Option {
	return func(c *Client) {
		c.provider = name
	}
}

// NewClient creates a new OpenAI client
func NewClient(apiKey string, logger *zap.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return NewClientWithConfig(openai.DefaultConfig(apiKey), logger, opts...), nil
}

// NewGroqClient creates a client pointed at Groq's OpenAI-compatible API
func NewGroqClient(apiKey, baseURL string, logger *zap.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = GroqBaseURL
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	opts = append([]Option{WithProviderName("groq"), WithModel(DefaultGroqModel)}, opts...)
	return NewClientWithConfig(cfg, logger, opts...), nil
}

// NewClientWithConfig creates a client from an explicit go-openai configuration
func NewClientWithConfig(cfg openai.ClientConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		client:   openai.NewClientWithConfig(cfg),
		logger:   logger,
		model:    DefaultChatModel,
		provider: "openai",
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("Chat client initialized",
		zap.String("provider", c.provider),
		zap.String("model", c.model),
		zap.Duration("timeout", c.timeout),
	)
	return c
}

// Model returns the client's default model
func (c *Client) Model() string {
	return c.model
}

// Complete implements llm.Completer
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	openaiReq := c.buildRequest(req)

	c.logger.Debug("Creating chat completion",
		zap.String("provider", c.provider),
		zap.String("model", openaiReq.Model),
		zap.Int("max_tokens", openaiReq.MaxTokens),
		zap.Float64("temperature", float64(openaiReq.Temperature)),
		zap.Int("message_count", len(openaiReq.Messages)),
		zap.Bool("has_image", req.ImageDataURL != ""),
	)

	var resp openai.ChatCompletionResponse
	err := resilience.WithTimeout(ctx, c.timeout, c.logger, func(ctx context.Context) error {
		r, err := c.client.CreateChatCompletion(ctx, openaiReq)
		if err != nil {
			return c.handleAPIError(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, c.tagTimeout(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from %s: %w", c.provider, llm.ErrEmptyCompletion)
	}

	c.logger.Debug("Chat completion successful",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &llm.Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// CompleteStream implements llm.StreamCompleter. Deltas are delivered in the
// order the provider sends them; an error from onDelta aborts the stream.
// Only opening the stream is bounded by the call budget; reading it is
// bounded by ctx.
func (c *Client) CompleteStream(ctx context.Context, req llm.Request, onDelta func(string) error) error {
	openaiReq := c.buildRequest(req)
	openaiReq.Stream = true

	var stream *openai.ChatCompletionStream
	err := resilience.WithTimeout(ctx, c.timeout, c.logger, func(tctx context.Context) error {
		s, err := c.client.CreateChatCompletionStream(ctx, openaiReq)
		if err != nil {
			return c.handleAPIError(err)
		}
		if tctx.Err() != nil {
			_ = s.Close()
			return tctx.Err()
		}
		stream = s
		return nil
	})
	if err != nil {
		return c.tagTimeout(err)
	}
	defer func() { _ = stream.Close() }()

	chunks := 0
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			c.logger.Debug("Chat stream finished", zap.Int("chunks", chunks))
			return nil
		}
		if err != nil {
			return c.handleAPIError(err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		chunks++
		if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

func (c *Client) buildRequest(req llm.Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for i, m := range req.Messages {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		// The image rides along with the final user turn.
		if req.ImageDataURL != "" && i == len(req.Messages)-1 && m.Role == llm.RoleUser {
			msg.Content = ""
			msg.MultiContent = []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: m.Content},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    req.ImageDataURL,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			}
		}
		messages = append(messages, msg)
	}

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
}

// handleAPIError tags transient provider failures as retryable
func (c *Client) handleAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if resilience.IsRetryableStatus(apiErr.HTTPStatusCode) {
			return &resilience.RetryableError{
				Provider:   c.provider,
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
				Err:        err,
			}
		}
		if apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("invalid API key or unauthorized access: %w",
				&llm.ProviderError{Provider: c.provider, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message})
		}
		return &llm.ProviderError{Provider: c.provider, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if resilience.IsRetryableStatus(reqErr.HTTPStatusCode) {
			return &resilience.RetryableError{
				Provider:   c.provider,
				StatusCode: reqErr.HTTPStatusCode,
				Message:    reqErr.Error(),
				Err:        err,
			}
		}
		return &llm.ProviderError{Provider: c.provider, StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}

	return fmt.Errorf("%s client error: %w", c.provider, err)
}

// tagTimeout names the provider on timeout errors raised by the budget
func (c *Client) tagTimeout(err error) error {
	var retryErr *resilience.RetryableError
	if errors.As(err, &retryErr) && retryErr.Provider == "" {
		retryErr.Provider = c.provider
	}
	return err
}
