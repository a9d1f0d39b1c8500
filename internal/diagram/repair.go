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

package diagram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/llm"
)

// RepairSystemPrompt instructs the model to return corrected Mermaid only
const RepairSystemPrompt = `You are a Mermaid.js syntax expert. You will be given Mermaid flowchart code that may contain syntax errors.
Return ONLY the corrected Mermaid code. Do not include explanations, prose or markdown code fences.
The first line must be a declaration such as "graph TD" or "flowchart LR".
Keep the original nodes, labels and edges wherever possible. Do not use quotes or apostrophes inside node labels.`

// Errors reported in ValidationResult.Error
var (
	ErrNoDeclaration = errors.New("no graph or flowchart declaration found; the code cannot be repaired locally")
	ErrUnsafeContent = errors.New("diagram code contains potentially malicious content")
	ErrEmptyRepair   = errors.New("repair returned no code")
)

// ValidationResult is the outcome of one validation and repair attempt
type ValidationResult struct {
	CorrectedCode string `json:"correctedCode"`
	WasFixed      bool   `json:"wasFixed"`
	Error         string `json:"error,omitempty"`
}

// Valid reports whether the attempt produced code without an error
func (r ValidationResult) Valid() bool {
	return r.Error == ""
}

// Repairer corrects Mermaid code locally where possible and otherwise asks
// an LLM to fix it.
type Repairer struct {
	completer   llm.Completer
	logger      *zap.Logger
	maxTokens   int
	temperature float32
}

// NewRepairer creates a repairer. The completer should already carry any
// retry policy the caller wants.
func NewRepairer(completer llm.Completer, logger *zap.Logger) *Repairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{
		completer:   completer,
		logger:      logger,
		maxTokens:   1000,
		temperature: 0.1,
	}
}

// ValidateAndCorrect runs the repair state machine:
//  1. a misplaced declaration is moved to the first line without a network call
//  2. code with no declaration keyword is reported as unrecoverable
//  3. anything else is sent to the LLM for correction
//
// A provider failure or unsafe repaired output returns the original code
// unchanged with WasFixed false.
func (r *Repairer) ValidateAndCorrect(ctx context.Context, code string) ValidationResult {
	cleaned := StripFences(code)

	if !HasDeclaration(cleaned) {
		relocated, ok := NormalizeDeclaration(cleaned)
		if !ok {
			return ValidationResult{CorrectedCode: code, Error: ErrNoDeclaration.Error()}
		}
		if ContainsUnsafeContent(relocated) {
			r.logger.Warn("Relocated diagram rejected by security check")
			return ValidationResult{CorrectedCode: code, Error: ErrUnsafeContent.Error()}
		}
		r.logger.Debug("Diagram declaration relocated to first line")
		return ValidationResult{CorrectedCode: relocated, WasFixed: true}
	}

	if r.completer == nil {
		return ValidationResult{CorrectedCode: code, Error: "repair unavailable: no LLM client configured"}
	}

	resp, err := r.completer.Complete(ctx, llm.Request{
		System:      RepairSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf("Fix this Mermaid code:\n\n%s", cleaned)}},
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		r.logger.Warn("Diagram repair request failed", zap.Error(err))
		return ValidationResult{CorrectedCode: code, Error: err.Error()}
	}

	fixed := StripFences(llm.StripCodeFences(resp.Content))
	if strings.TrimSpace(fixed) == "" {
		return ValidationResult{CorrectedCode: code, Error: ErrEmptyRepair.Error()}
	}

	if ContainsUnsafeContent(fixed) {
		r.logger.Warn("Repaired diagram rejected by security check")
		return ValidationResult{CorrectedCode: code, Error: ErrUnsafeContent.Error()}
	}

	wasFixed := fixed != cleaned
	r.logger.Debug("Diagram repair completed", zap.Bool("was_fixed", wasFixed))
	return ValidationResult{CorrectedCode: fixed, WasFixed: wasFixed}
}
