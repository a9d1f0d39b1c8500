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

// Package chat forwards a client-held conversation to the chat model.
package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
	"github.com/your-org/ai-demo-gateway/internal/sanitize"
	"github.com/your-org/ai-demo-gateway/internal/streaming"
)

const (
	// MaxMessages bounds the conversation length
	MaxMessages = 50
	// MaxMessageLength bounds each sanitized message
	MaxMessageLength = 10000
)

// SystemPrompt is used when the conversation carries no system message
const SystemPrompt = "You are a helpful writing assistant. Be concise and concrete."

// Message is one client-supplied turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Service completes conversations
type Service struct {
	completer llm.StreamCompleter
	logger    *zap.Logger
}

// NewService creates a chat service
func NewService(completer llm.StreamCompleter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{completer: completer, logger: logger}
}

// BuildRequest validates and sanitizes a conversation. Roles are
// case-insensitive; empty messages are dropped.
func BuildRequest(messages []Message) (llm.Request, error) {
	if len(messages) == 0 {
		return llm.Request{}, resilience.NewBadRequestError("messages are required", nil)
	}
	if len(messages) > MaxMessages {
		return llm.Request{}, resilience.NewBadRequestError(
			fmt.Sprintf("too many messages: %d (max %d)", len(messages), MaxMessages), nil)
	}

	req := llm.Request{MaxTokens: 1024, Temperature: 0.7}
	for i, m := range messages {
		if !llm.ValidRole(m.Role) {
			return llm.Request{}, resilience.NewBadRequestError(
				fmt.Sprintf("message %d has invalid role %q", i, m.Role), nil)
		}
		content := sanitize.Sanitize(m.Content, MaxMessageLength)
		if content == "" {
			continue
		}
		role := strings.ToLower(m.Role)
		if role == llm.RoleSystem {
			if req.System != "" {
				req.System += "\n\n"
			}
			req.System += content
			continue
		}
		req.Messages = append(req.Messages, llm.Message{Role: role, Content: content})
	}

	if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Role != llm.RoleUser {
		return llm.Request{}, resilience.NewBadRequestError("the last message must be a non-empty user message", nil)
	}
	if req.System == "" {
		req.System = SystemPrompt
	}
	return req, nil
}

// Complete returns the assistant's next message
func (s *Service) Complete(ctx context.Context, messages []Message) (string, error) {
	req, err := BuildRequest(messages)
	if err != nil {
		return "", err
	}

	resp, err := s.completer.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return resp.Content, nil
}

// Stream writes the assistant's next message to w as it arrives
func (s *Service) Stream(ctx context.Context, messages []Message, w io.Writer) error {
	req, err := BuildRequest(messages)
	if err != nil {
		return err
	}

	out := streaming.NewWriter(w)
	err = s.completer.CompleteStream(ctx, req, func(delta string) error {
		_, err := out.WriteString(delta)
		return err
	})
	if err != nil {
		return fmt.Errorf("chat stream failed after %d bytes: %w", out.BytesWritten(), err)
	}
	s.logger.Debug("Chat streamed",
		zap.Int("messages", len(req.Messages)),
		zap.Int64("bytes", out.BytesWritten()))
	return nil
}
