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

package main

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/caption"
	"github.com/your-org/ai-demo-gateway/internal/chat"
	"github.com/your-org/ai-demo-gateway/internal/claude"
	"github.com/your-org/ai-demo-gateway/internal/config"
	"github.com/your-org/ai-demo-gateway/internal/diagram"
	"github.com/your-org/ai-demo-gateway/internal/flowchart"
	"github.com/your-org/ai-demo-gateway/internal/health"
	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/openai"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
	"github.com/your-org/ai-demo-gateway/internal/server"
	"github.com/your-org/ai-demo-gateway/internal/speech"
	"github.com/your-org/ai-demo-gateway/internal/voice"
)

// app holds the services built from configuration. A service whose
// provider key is missing stays nil.
type app struct {
	flowchart *flowchart.Service
	repairer  *diagram.Repairer
	caption   *caption.Service
	voice     *voice.Service
	chat      *chat.Service
	renderer  *diagram.Renderer
	health    *health.Manager
	cors      config.CORSConfig
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	policy := resilience.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
	}
	a := &app{
		health: health.NewManager("ai-demo-gateway", version, logger),
		cors:   cfg.CORS,
	}

	if cfg.Claude.APIKey != "" {
		client, err := claude.NewClient(claude.Config{
			APIKey:  cfg.Claude.APIKey,
			BaseURL: cfg.Claude.Endpoint,
			Model:   cfg.Claude.Model,
			Timeout: cfg.Claude.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude client: %w", err)
		}
		completer := llm.WithRetry(client, policy, logger)
		a.flowchart = flowchart.NewService(completer, flowchart.Config{
			MaxInputLength: cfg.Flowchart.MaxInputLength,
			MaxCodeLength:  cfg.Flowchart.MaxCodeLength,
			MaxTokens:      cfg.Flowchart.MaxTokens,
			Temperature:    float32(cfg.Flowchart.Temperature),
			Orientation:    cfg.Flowchart.Orientation,
		}, logger)
		a.repairer = diagram.NewRepairer(completer, logger)
	}

	if cfg.OpenAI.APIKey != "" {
		clientConfig := goopenai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.Endpoint != "" {
			clientConfig.BaseURL = cfg.OpenAI.Endpoint
		}
		client := openai.NewClientWithConfig(clientConfig, logger,
			openai.WithModel(cfg.OpenAI.Model),
			openai.WithTimeout(cfg.OpenAI.Timeout))
		a.chat = chat.NewService(llm.WithStreamRetry(client, policy, logger), logger)
		a.caption = caption.NewService(client, cfg.OpenAI.VisionModel, logger)
	}

	if cfg.Groq.APIKey != "" {
		client, err := openai.NewGroqClient(cfg.Groq.APIKey, cfg.Groq.Endpoint, logger,
			openai.WithModel(cfg.Groq.Model),
			openai.WithTimeout(cfg.Groq.Timeout))
		if err != nil {
			return nil, fmt.Errorf("failed to create Groq client: %w", err)
		}
		tts, err := buildSynthesizer(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.voice = voice.NewService(llm.WithRetry(client, policy, logger), tts, logger)
	}

	renderer, err := diagram.NewRenderer(diagram.RendererConfig{
		MermaidInkURL:   cfg.Renderer.MermaidInkURL,
		Timeout:         cfg.Renderer.Timeout,
		CacheExpiry:     cfg.Renderer.CacheExpiry,
		EnableCaching:   cfg.Renderer.EnableCaching,
		MaxDiagramSize:  diagram.MaxDiagramSize,
		MaxCacheEntries: cfg.Renderer.MaxCacheEntries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create diagram renderer: %w", err)
	}
	a.renderer = renderer

	a.registerHealthChecks(cfg)
	return a, nil
}

// buildSynthesizer prefers Cartesia and falls back to ElevenLabs. With
// neither key the voice route answers with text only.
func buildSynthesizer(cfg *config.Config, logger *zap.Logger) (speech.Synthesizer, error) {
	switch {
	case cfg.Cartesia.APIKey != "":
		client, err := speech.NewCartesiaClient(speech.CartesiaConfig{
			APIKey:  cfg.Cartesia.APIKey,
			BaseURL: cfg.Cartesia.Endpoint,
			Model:   cfg.Cartesia.Model,
			VoiceID: cfg.Cartesia.VoiceID,
			Timeout: cfg.Cartesia.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Cartesia client: %w", err)
		}
		return client, nil
	case cfg.ElevenLabs.APIKey != "":
		client, err := speech.NewElevenLabsClient(speech.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabs.APIKey,
			BaseURL: cfg.ElevenLabs.Endpoint,
			Model:   cfg.ElevenLabs.Model,
			VoiceID: cfg.ElevenLabs.VoiceID,
			Timeout: cfg.ElevenLabs.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create ElevenLabs client: %w", err)
		}
		return client, nil
	default:
		logger.Warn("No speech provider configured, voice replies will be text only")
		return nil, nil
	}
}

func (a *app) registerHealthChecks(cfg *config.Config) {
	a.health.AddChecker("claude", health.ProviderKeyChecker(config.EnvClaudeKey, cfg.Claude.APIKey != ""))
	a.health.AddChecker("openai", health.ProviderKeyChecker(config.EnvOpenAIKey, cfg.OpenAI.APIKey != ""))
	a.health.AddChecker("groq", health.ProviderKeyChecker(config.EnvGroqKey, cfg.Groq.APIKey != ""))
	a.health.AddChecker("speech", health.ProviderKeyChecker(
		config.EnvCartesiaKey+" or "+config.EnvElevenLabsKey,
		cfg.Cartesia.APIKey != "" || cfg.ElevenLabs.APIKey != ""))
	if a.renderer != nil {
		a.health.AddChecker("mermaid.ink", health.ExternalServiceChecker("mermaid.ink", a.renderer.TestConnection))
		a.health.AddChecker("render_cache", health.CheckerFunc(func(context.Context) health.CheckResult {
			return health.CheckResult{Status: health.StatusHealthy, Metadata: a.renderer.GetCacheStats()}
		}))
	}
}

// serverOptions converts the app into route wiring. Nil services must stay
// nil interfaces so the routes can report the missing key.
func (a *app) serverOptions() server.Options {
	opts := server.Options{Health: a.health, CORS: a.cors}
	if a.flowchart != nil {
		opts.Flowchart = a.flowchart
	}
	if a.caption != nil {
		opts.Caption = a.caption
	}
	if a.voice != nil {
		opts.Voice = a.voice
	}
	if a.chat != nil {
		opts.Chat = a.chat
	}
	if a.renderer != nil {
		opts.Renderer = a.renderer
	}
	return opts
}

func (a *app) Close() {
	if a.renderer != nil {
		a.renderer.Close()
	}
}
