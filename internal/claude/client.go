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

// Package claude is a minimal Anthropic Messages API client implementing
// llm.Completer.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
)

const (
	// DefaultBaseURL is the Anthropic API endpoint
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultModel is used when the request does not name a model
	DefaultModel = "claude-3-5-sonnet-20240620"
	// APIVersion is sent in the anthropic-version header
	APIVersion = "2023-06-01"
	// DefaultMaxTokens is required by the Messages API
	DefaultMaxTokens = 1024
	// DefaultTimeout is the per-call provider budget
	DefaultTimeout = 30 * time.Second

	providerName    = "claude"
	maxResponseSize = 1 << 20
)

// Config holds the Claude client settings
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the Anthropic Messages API
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []llm.Message `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
}

// NewClient creates a Claude client. The API key is required.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	config.Timeout = resilience.ClampProviderTimeout(config.Timeout)

	logger.Info("Claude client initialized",
		zap.String("model", config.Model),
		zap.Duration("timeout", config.Timeout))

	return &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// Complete implements llm.Completer
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = resilience.WithTimeout(ctx, c.config.Timeout, c.logger, func(ctx context.Context) error {
		b, err := c.post(ctx, payload)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, tagProvider(err)
	}

	text, err := llm.ExtractClaudeText(body)
	if err != nil {
		return nil, fmt.Errorf("malformed Claude response: %w", err)
	}

	result := gjson.ParseBytes(body)
	resp := &llm.Response{
		Content:      text,
		Model:        result.Get("model").String(),
		FinishReason: result.Get("stop_reason").String(),
		Usage: llm.Usage{
			PromptTokens:     int(result.Get("usage.input_tokens").Int()),
			CompletionTokens: int(result.Get("usage.output_tokens").Int()),
		},
	}

	c.logger.Debug("Claude completion successful",
		zap.String("model", resp.Model),
		zap.String("stop_reason", resp.FinishReason),
		zap.Int("input_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens))

	return resp, nil
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	// System turns are lifted into the top-level field; the Messages API only
	// accepts user and assistant roles.
	system := req.System
	messages := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		messages = append(messages, m)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one user message is required")
	}

	payload := messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		payload.Temperature = &t
	}

	return json.Marshal(payload)
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Claude API request failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)))
		return nil, llm.StatusError(providerName, resp, body)
	}

	return body, nil
}

func tagProvider(err error) error {
	if retryErr, ok := err.(*resilience.RetryableError); ok && retryErr.Provider == "" {
		retryErr.Provider = providerName
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
