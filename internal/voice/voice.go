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

// Package voice answers a spoken transcript with text and, when a speech
// synthesizer is configured, audio.
package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
	"github.com/your-org/ai-demo-gateway/internal/sanitize"
	"github.com/your-org/ai-demo-gateway/internal/speech"
)

// MaxTranscriptLength bounds the sanitized transcript
const MaxTranscriptLength = 2000

// SystemPrompt keeps answers short enough to be spoken
const SystemPrompt = `You are a friendly voice assistant. Answer in one to three short, conversational sentences.
Do not use markdown, lists, emojis or code, because your reply will be read aloud.`

// Reply is the assistant's answer. SpeechErr is set when text generation
// succeeded but synthesis failed.
type Reply struct {
	Text      string
	Audio     *speech.Audio
	SpeechErr error
}

// Partial reports whether the reply is missing audio it should have had
func (r *Reply) Partial() bool {
	return r.SpeechErr != nil
}

// Service answers transcripts
type Service struct {
	chat        llm.Completer
	tts         speech.Synthesizer
	speechRetry resilience.BackoffConfig
	logger      *zap.Logger
}

// NewService creates a voice service. tts may be nil for text-only replies.
func NewService(chat llm.Completer, tts speech.Synthesizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	// One quick jittered retry; the text answer is already waiting.
	speechRetry := resilience.DefaultBackoffConfig()
	speechRetry.MaxRetries = 1
	speechRetry.BaseDelay = 500 * time.Millisecond

	return &Service{chat: chat, tts: tts, speechRetry: speechRetry, logger: logger}
}

// Respond generates a reply for transcript. A synthesis failure does not fail
// the call; it is reported on the Reply.
func (s *Service) Respond(ctx context.Context, transcript string) (*Reply, error) {
	transcript = sanitize.Sanitize(transcript, MaxTranscriptLength)
	if transcript == "" {
		return nil, resilience.NewBadRequestError("transcript is required", nil)
	}

	resp, err := s.chat.Complete(ctx, llm.Request{
		System:      SystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: transcript}},
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("voice reply failed: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, fmt.Errorf("voice reply failed: %w", llm.ErrEmptyCompletion)
	}

	reply := &Reply{Text: text}
	if s.tts == nil {
		return reply, nil
	}

	var audio *speech.Audio
	err = resilience.WithExponentialBackoff(ctx, s.logger, s.speechRetry, func(ctx context.Context) error {
		var synthErr error
		audio, synthErr = s.tts.Synthesize(ctx, text)
		return synthErr
	})
	if err != nil {
		s.logger.Warn("Speech synthesis failed, returning text only", zap.Error(err))
		reply.SpeechErr = err
		return reply, nil
	}
	reply.Audio = audio
	return reply, nil
}
