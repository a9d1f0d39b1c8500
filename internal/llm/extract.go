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

package llm

import (
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrEmptyCompletion is returned when the envelope holds no text at the expected path
var ErrEmptyCompletion = errors.New("provider response contains no completion text")

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*[ \t]*\r?\n?(.*?)\r?\n?```$")

// ExtractClaudeText pulls content[0].text out of an Anthropic Messages envelope.
func ExtractClaudeText(body []byte) (string, error) {
	return extractPath(body, "content.0.text")
}

func extractPath(body []byte, path string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errors.New("provider response is not valid JSON")
	}
	result := gjson.GetBytes(body, path)
	if !result.Exists() || result.Type != gjson.String {
		return "", ErrEmptyCompletion
	}
	return result.String(), nil
}

// ExtractErrorMessage returns the provider's error text from a failure body,
// falling back to the raw body.
func ExtractErrorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
				return r.String()
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// StripCodeFences removes one surrounding markdown code fence, with or
// without a language tag, and trims the result.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	// Fence opened somewhere inside prose: keep only the fenced body.
	if start := strings.Index(trimmed, "```"); start >= 0 {
		rest := trimmed[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			body := rest[nl+1:]
			if end := strings.Index(body, "```"); end >= 0 {
				return strings.TrimSpace(body[:end])
			}
			return strings.TrimSpace(body)
		}
	}
	return trimmed
}
