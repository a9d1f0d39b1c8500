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

package speech

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// ElevenLabsBaseURL is the ElevenLabs API endpoint
	ElevenLabsBaseURL = "https://api.elevenlabs.io"
	// DefaultElevenLabsModel is the ElevenLabs model used by the voice demo
	DefaultElevenLabsModel = "eleven_monolingual_v1"
	// DefaultElevenLabsVoice is the stock "Rachel" voice
	DefaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM"
)

// ElevenLabsConfig holds ElevenLabs client settings
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	VoiceID string
	Timeout time.Duration
}

// ElevenLabsClient synthesizes speech with the ElevenLabs text-to-speech API
type ElevenLabsClient struct {
	httpSynthesizer
	config ElevenLabsConfig
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// NewElevenLabsClient creates an ElevenLabs client
func NewElevenLabsClient(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsClient, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = ElevenLabsBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultElevenLabsModel
	}
	if config.VoiceID == "" {
		config.VoiceID = DefaultElevenLabsVoice
	}
	return &ElevenLabsClient{
		httpSynthesizer: newHTTPSynthesizer("elevenlabs", config.Timeout, logger),
		config:          config,
	}, nil
}

// Synthesize implements Synthesizer
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	text, err := prepareText(text)
	if err != nil {
		return nil, err
	}

	payload := elevenLabsRequest{
		Text:          text,
		ModelID:       c.config.Model,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
	}
	headers := map[string]string{
		"xi-api-key": c.config.APIKey,
		"Accept":     "audio/mpeg",
	}
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(c.config.VoiceID)
	return c.post(ctx, endpoint, headers, payload)
}
