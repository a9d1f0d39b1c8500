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

package flowchart

import (
	"fmt"
	"strings"
)

// GenerateSystemPrompt instructs the model to emit a Mermaid flowchart only
const GenerateSystemPrompt = `You are an expert at turning process descriptions into Mermaid.js flowcharts.
Rules:
- Respond with Mermaid code only. No explanations and no markdown code fences.
- The first line must be "graph TD" (or "graph LR" for wide, sequential processes).
- Use short alphanumeric node ids (A, B, C ...) and square brackets for steps, curly braces for decisions.
- Label decision branches with -->|Yes| and -->|No|.
- Never use quotes, apostrophes, parentheses or HTML inside node labels.`

// EnhanceSystemPrompt instructs the model to rewrite a rough flowchart request
const EnhanceSystemPrompt = `You improve short, rough descriptions of processes so they can be turned into clear flowcharts.
Rewrite the description as a precise, ordered list of steps, decisions and outcomes in plain prose.
Keep the user's intent. Do not add steps the user did not imply. Respond with the improved description only.`

const simplifyInstruction = "Keep the flowchart simple: at most 8 nodes, no subgraphs and no styling."

// generationParams derives the prompt and sampling settings for one attempt.
// Regeneration and simplification raise the temperature so that a retry
// yields a different diagram.
func generationParams(input string, attempt int, simplify bool, baseTemperature float32) (string, float32) {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a Mermaid flowchart for the following process:\n\n%s", input)

	temperature := baseTemperature
	if attempt > 0 {
		fmt.Fprintf(&b, "\n\nThis is regeneration attempt %d. Produce a different layout from previous attempts and double-check the syntax.", attempt)
		temperature += 0.1 * float32(attempt)
	}
	if simplify {
		b.WriteString("\n\n")
		b.WriteString(simplifyInstruction)
		temperature += 0.1
	}
	if temperature > maxTemperature {
		temperature = maxTemperature
	}
	return b.String(), temperature
}
