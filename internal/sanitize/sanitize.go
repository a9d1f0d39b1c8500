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

// Package sanitize strips markup, script URLs and invisible control
// characters from untrusted text before it is forwarded to a provider.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxLength is the length bound applied when callers have no app-specific limit
const DefaultMaxLength = 5000

var (
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
	jsSchemePattern  = regexp.MustCompile(`(?i)javascript:`)
	controlPattern   = regexp.MustCompile(`[\x{0000}-\x{001F}\x{007F}-\x{009F}\x{200B}-\x{200F}\x{2028}-\x{202F}]`)
	maxRemovalPasses = 16
)

// Sanitize returns input with HTML tags, javascript: schemes and control or
// bidi-override characters removed, trimmed and cut to maxLength characters.
// nil yields ""; any other non-string value is formatted with %v first.
func Sanitize(input any, maxLength int) string {
	if input == nil {
		return ""
	}

	var s string
	switch v := input.(type) {
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprintf("%v", v)
	}

	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	s = removeUntilStable(s)
	s = strings.TrimSpace(s)

	// Trim again after the cut so a second pass is a no-op.
	return strings.TrimRightFunc(Truncate(s, maxLength), unicode.IsSpace)
}

// String is Sanitize for plain strings with the default length bound.
func String(input string) string {
	return Sanitize(input, DefaultMaxLength)
}

// removeUntilStable repeats the removals so that a scheme which only forms
// after an inner removal (`javajavascript:script:`) cannot survive.
// Control characters go first so they cannot split a pattern.
func removeUntilStable(s string) string {
	for i := 0; i < maxRemovalPasses; i++ {
		next := controlPattern.ReplaceAllString(s, "")
		next = htmlTagPattern.ReplaceAllString(next, "")
		next = jsSchemePattern.ReplaceAllString(next, "")
		if next == s {
			return s
		}
		s = next
	}
	// Pathological nesting: drop every remaining angle bracket, then schemes
	// until none is left. Each pass shrinks s so the loop terminates.
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	for jsSchemePattern.MatchString(s) {
		s = jsSchemePattern.ReplaceAllString(s, "")
	}
	return s
}

// Truncate hard-cuts s to at most maxLength characters without an ellipsis.
func Truncate(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLength])
}
