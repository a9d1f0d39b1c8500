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

// Package flowchart implements the flowchart generator pipeline: sanitize,
// generate, validate, repair and finally fall back to a deterministic diagram.
package flowchart

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/diagram"
	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
	"github.com/your-org/ai-demo-gateway/internal/sanitize"
)

const (
	// FallbackWarning is returned alongside a deterministic fallback diagram
	FallbackWarning = "The generated diagram failed validation; a simplified fallback flowchart was generated from your description instead."

	maxTemperature = 0.9
)

// Config holds the flowchart pipeline settings
type Config struct {
	MaxInputLength int     `mapstructure:"max_input_length"`
	MaxCodeLength  int     `mapstructure:"max_code_length"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float32 `mapstructure:"temperature"`
	Orientation    string  `mapstructure:"orientation"`
}

// DefaultConfig returns the default pipeline settings
func DefaultConfig() Config {
	return Config{
		MaxInputLength: sanitize.DefaultMaxLength,
		MaxCodeLength:  10000,
		MaxTokens:      2000,
		Temperature:    0.3,
		Orientation:    diagram.DefaultOrientation,
	}
}

// Request is one flowchart generation request
type Request struct {
	Input               string `json:"input"`
	RegenerationAttempt int    `json:"regenerationAttempt,omitempty"`
	Simplify            bool   `json:"simplify,omitempty"`
}

// Result is the generated diagram
type Result struct {
	MermaidCode string `json:"mermaidCode"`
	Warning     string `json:"warning,omitempty"`
	WasFixed    bool   `json:"wasFixed,omitempty"`
}

// FixResult is the outcome of a user-requested repair
type FixResult struct {
	FixedCode string `json:"fixedCode"`
	WasFixed  bool   `json:"wasFixed"`
	Message   string `json:"message"`
}

// Service runs the flowchart pipeline against an injected completer
type Service struct {
	completer llm.Completer
	repairer  *diagram.Repairer
	config    Config
	logger    *zap.Logger
}

// NewService creates a flowchart service. The completer should already
// carry the retry policy.
func NewService(completer llm.Completer, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.MaxInputLength <= 0 {
		config.MaxInputLength = defaults.MaxInputLength
	}
	if config.MaxCodeLength <= 0 {
		config.MaxCodeLength = defaults.MaxCodeLength
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Temperature <= 0 {
		config.Temperature = defaults.Temperature
	}
	return &Service{
		completer: completer,
		repairer:  diagram.NewRepairer(completer, logger),
		config:    config,
		logger:    logger,
	}
}

// Generate turns a process description into Mermaid code. Output that fails
// validation is repaired; if repair fails too a fallback diagram built from
// the description is returned with a warning. Provider failures during the
// initial generation are returned as errors.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := s.checkInputLength(req.Input); err != nil {
		return nil, err
	}
	input := sanitize.Sanitize(req.Input, s.config.MaxInputLength)
	if input == "" {
		return nil, resilience.NewBadRequestError("input is required", nil)
	}
	if req.RegenerationAttempt < 0 {
		return nil, resilience.NewBadRequestError("regenerationAttempt must not be negative", nil)
	}

	prompt, temperature := generationParams(input, req.RegenerationAttempt, req.Simplify, s.config.Temperature)
	resp, err := s.completer.Complete(ctx, llm.Request{
		System:      GenerateSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   s.config.MaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("flowchart generation failed: %w", err)
	}

	code := diagram.StripFences(llm.StripCodeFences(resp.Content))
	relocated := false
	if normalized, ok := diagram.NormalizeDeclaration(code); ok && normalized != code {
		code, relocated = normalized, true
	}

	if acceptable(code) {
		s.logger.Debug("Generated flowchart passed validation",
			zap.Int("attempt", req.RegenerationAttempt),
			zap.Bool("simplify", req.Simplify),
			zap.Bool("relocated", relocated))
		return &Result{MermaidCode: code, WasFixed: relocated}, nil
	}

	s.logger.Info("Generated flowchart failed validation, attempting repair")
	repaired := s.repairer.ValidateAndCorrect(ctx, code)
	if repaired.Valid() && acceptable(repaired.CorrectedCode) {
		return &Result{MermaidCode: repaired.CorrectedCode, WasFixed: relocated || repaired.WasFixed}, nil
	}

	s.logger.Warn("Flowchart repair failed, using fallback diagram",
		zap.String("repair_error", repaired.Error))
	return &Result{
		MermaidCode: diagram.GenerateSimpleFlowchart(input, s.config.Orientation),
		Warning:     FallbackWarning,
	}, nil
}

// EnhancePrompt rewrites a rough description into a clearer one
func (s *Service) EnhancePrompt(ctx context.Context, input string) (string, error) {
	if err := s.checkInputLength(input); err != nil {
		return "", err
	}
	input = sanitize.Sanitize(input, s.config.MaxInputLength)
	if input == "" {
		return "", resilience.NewBadRequestError("input is required", nil)
	}

	resp, err := s.completer.Complete(ctx, llm.Request{
		System:      EnhanceSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: input}},
		MaxTokens:   s.config.MaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("prompt enhancement failed: %w", err)
	}

	enhanced := strings.TrimSpace(llm.StripCodeFences(resp.Content))
	if enhanced == "" {
		return "", fmt.Errorf("prompt enhancement failed: %w", llm.ErrEmptyCompletion)
	}
	return enhanced, nil
}

// FixCode repairs user-supplied Mermaid code. Repair failures are reported in
// the message rather than as errors.
func (s *Service) FixCode(ctx context.Context, code string) (*FixResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, resilience.NewBadRequestError("code is required", nil)
	}
	if utf8.RuneCountInString(code) > s.config.MaxCodeLength {
		return nil, resilience.NewBadRequestError(
			fmt.Sprintf("code exceeds maximum length of %d characters", s.config.MaxCodeLength), nil)
	}

	result := s.repairer.ValidateAndCorrect(ctx, code)

	var message string
	switch {
	case result.Error != "":
		message = "Could not fix the Mermaid code: " + result.Error
	case result.WasFixed:
		message = "Mermaid code was fixed successfully"
	default:
		message = "No changes were needed"
	}

	return &FixResult{
		FixedCode: result.CorrectedCode,
		WasFixed:  result.WasFixed,
		Message:   message,
	}, nil
}

// checkInputLength rejects descriptions over the limit instead of cutting
// them, matching how FixCode treats oversized code.
func (s *Service) checkInputLength(input string) error {
	if utf8.RuneCountInString(input) > s.config.MaxInputLength {
		return resilience.NewBadRequestError(
			fmt.Sprintf("input exceeds maximum length of %d characters", s.config.MaxInputLength), nil)
	}
	return nil
}

func acceptable(code string) bool {
	return diagram.QuickValidate(code) && diagram.ValidateStrict(code) == nil && !diagram.ContainsUnsafeContent(code)
}
