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

// Package speech provides text-to-speech clients for the voice chat demo.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
)

const (
	// DefaultTimeout is the per-call synthesis budget
	DefaultTimeout = 30 * time.Second
	// MaxTextLength bounds the text sent for synthesis
	MaxTextLength = 5000

	maxAudioSize = 10 << 20
)

// Audio is a synthesized clip
type Audio struct {
	Data        []byte
	ContentType string
}

// Base64 returns the clip encoded for embedding in a JSON response
func (a *Audio) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// Format returns the short audio format name derived from the content type
func (a *Audio) Format() string {
	switch {
	case strings.Contains(a.ContentType, "mpeg"), strings.Contains(a.ContentType, "mp3"):
		return "mp3"
	case strings.Contains(a.ContentType, "wav"):
		return "wav"
	case strings.Contains(a.ContentType, "ogg"):
		return "ogg"
	default:
		return "mp3"
	}
}

// Synthesizer turns text into audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// httpSynthesizer holds the transport shared by the provider clients
type httpSynthesizer struct {
	provider   string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

func newHTTPSynthesizer(provider string, timeout time.Duration, logger *zap.Logger) httpSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return httpSynthesizer{
		provider:   provider,
		httpClient: &http.Client{},
		timeout:    resilience.ClampProviderTimeout(timeout),
		logger:     logger,
	}
}

// post sends payload and returns the audio body. Non-2xx responses become
// tagged provider errors.
func (s *httpSynthesizer) post(ctx context.Context, url string, headers map[string]string, payload any) (*Audio, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var audio *Audio
	err = resilience.WithTimeout(ctx, s.timeout, s.logger, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
		if err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return llm.StatusError(s.provider, resp, data)
		}
		if len(data) == 0 {
			return fmt.Errorf("%s returned no audio", s.provider)
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "audio/mpeg"
		}
		audio = &Audio{Data: data, ContentType: contentType}
		return nil
	})
	if err != nil {
		if retryErr, ok := err.(*resilience.RetryableError); ok && retryErr.Provider == "" {
			retryErr.Provider = s.provider
		}
		s.logger.Warn("Speech synthesis failed",
			zap.String("provider", s.provider),
			zap.Error(err))
		return nil, err
	}

	s.logger.Debug("Speech synthesized",
		zap.String("provider", s.provider),
		zap.Int("bytes", len(audio.Data)),
		zap.String("content_type", audio.ContentType))
	return audio, nil
}

func prepareText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("text is required")
	}
	if r := []rune(text); len(r) > MaxTextLength {
		text = string(r[:MaxTextLength])
	}
	return text, nil
}
