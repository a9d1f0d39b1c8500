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
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// CartesiaBaseURL is the Cartesia API endpoint
	CartesiaBaseURL = "https://api.cartesia.ai"
	// CartesiaVersion is sent in the Cartesia-Version header
	CartesiaVersion = "2024-06-10"
	// DefaultCartesiaModel is the Sonic model used by the voice demo
	DefaultCartesiaModel = "sonic-english"
	// DefaultCartesiaVoice is a stock English voice
	DefaultCartesiaVoice = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

// CartesiaConfig holds Cartesia client settings
type CartesiaConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	VoiceID string
	Timeout time.Duration
}

// CartesiaClient synthesizes speech with Cartesia's /tts/bytes endpoint
type CartesiaClient struct {
	httpSynthesizer
	config CartesiaConfig
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type cartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        cartesiaVoice        `json:"voice"`
	OutputFormat cartesiaOutputFormat `json:"output_format"`
}

// NewCartesiaClient creates a Cartesia client
func NewCartesiaClient(config CartesiaConfig, logger *zap.Logger) (*CartesiaClient, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = CartesiaBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultCartesiaModel
	}
	if config.VoiceID == "" {
		config.VoiceID = DefaultCartesiaVoice
	}
	return &CartesiaClient{
		httpSynthesizer: newHTTPSynthesizer("cartesia", config.Timeout, logger),
		config:          config,
	}, nil
}

// Synthesize implements Synthesizer
func (c *CartesiaClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	text, err := prepareText(text)
	if err != nil {
		return nil, err
	}

	payload := cartesiaRequest{
		ModelID:    c.config.Model,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: c.config.VoiceID},
		OutputFormat: cartesiaOutputFormat{
			Container:  "mp3",
			Encoding:   "mp3",
			SampleRate: 44100,
		},
	}
	headers := map[string]string{
		"X-API-Key":        c.config.APIKey,
		"Cartesia-Version": CartesiaVersion,
	}
	return c.post(ctx, strings.TrimRight(c.config.BaseURL, "/")+"/tts/bytes", headers, payload)
}
