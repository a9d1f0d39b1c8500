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
	"fmt"
	"regexp"
	"strings"
)

var (
	declarationLine  = regexp.MustCompile(`(?i)^(graph|flowchart)\s+(TB|TD|BT|RL|LR)$`)
	declarationAny   = regexp.MustCompile(`(?i)\b(graph|flowchart)\s+(TB|TD|BT|RL|LR)\b`)
	keywordAny       = regexp.MustCompile(`(?i)(graph|flowchart)`)
	keywordLineStart = regexp.MustCompile(`(?i)^(graph|flowchart)`)
	directionToken   = regexp.MustCompile(`(?i)\b(TB|TD|BT|RL|LR)\b`)
	fenceLine        = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z]*[ \t]*\r?$\n?")
	unsafeSpacing    = regexp.MustCompile(`\s+([=(:])`)
	nodeStatement    = regexp.MustCompile(`^[A-Za-z0-9_]+([\[({>]|\s*(-->|---|-\.|==>|--|&))`)
	directiveLine    = regexp.MustCompile(`^(subgraph|end|classDef|class|style|linkStyle|click|direction)\b`)
)

// unsafePatterns are rejected wherever they appear, in lower case
var unsafePatterns = []string{
	"<script",
	"javascript:",
	"data:",
	"onerror=",
	"onclick=",
	"onload=",
	"eval(",
	"settimeout(",
	"setinterval(",
	"document.cookie",
}

// bracketPairs maps each closer to its opener
var bracketPairs = map[rune]rune{
	']': '[',
	')': '(',
	'}': '{',
}

// StripFences removes markdown fence lines such as ```mermaid and ```.
func StripFences(code string) string {
	return strings.TrimSpace(fenceLine.ReplaceAllString(code, ""))
}

// QuickValidate is the fast local gate run before a diagram is accepted.
// The first non-blank line must be a graph or flowchart declaration and
// brackets and quotes in the remaining text must balance.
func QuickValidate(code string) bool {
	code = StripFences(code)
	if code == "" {
		return false
	}

	first, rest := splitFirstLine(code)
	if !declarationLine.MatchString(first) {
		return false
	}
	return balanced(rest)
}

// HasDeclaration reports whether the first non-blank line is a valid declaration.
func HasDeclaration(code string) bool {
	first, _ := splitFirstLine(StripFences(code))
	return declarationLine.MatchString(first)
}

// HasKeyword reports whether graph or flowchart appears anywhere in code.
func HasKeyword(code string) bool {
	return keywordAny.MatchString(code)
}

// NormalizeDeclaration moves a graph or flowchart declaration found anywhere
// in code onto the first line. The bool is false when code holds no
// declaration keyword at all; the code is then returned unchanged.
func NormalizeDeclaration(code string) (string, bool) {
	code = StripFences(code)
	if HasDeclaration(code) {
		return code, true
	}

	lines := strings.Split(code, "\n")

	// A well-formed declaration somewhere other than the first line.
	for i, line := range lines {
		loc := declarationAny.FindStringSubmatchIndex(line)
		if loc == nil || strings.ContainsAny(line[:loc[0]], "[({\"'|") {
			continue
		}
		decl := formatDeclaration(line[loc[2]:loc[3]], line[loc[4]:loc[5]])
		remainder := strings.TrimSpace(strings.TrimLeft(line[loc[1]:], "; \t"))
		body := make([]string, 0, len(lines))
		body = append(body, statementsOnly(lines[:i])...)
		if remainder != "" {
			body = append(body, remainder)
		}
		body = append(body, lines[i+1:]...)
		return joinDiagram(decl, body), true
	}

	// A mangled declaration such as "graph_node TD TD" or "Flowchart:".
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !keywordLineStart.MatchString(trimmed) {
			continue
		}
		keyword := strings.ToLower(keywordLineStart.FindString(trimmed))
		direction := "TD"
		if d := directionToken.FindString(trimmed[len(keyword):]); d != "" {
			direction = d
		}
		body := make([]string, 0, len(lines)-1)
		body = append(body, statementsOnly(lines[:i])...)
		body = append(body, lines[i+1:]...)
		return joinDiagram(formatDeclaration(keyword, direction), body), true
	}

	// Keyword only inside node text: prepend a default declaration.
	if HasKeyword(code) {
		return joinDiagram("graph TD", lines), true
	}

	return code, false
}

// statementsOnly keeps the lines that read as Mermaid statements. It is
// applied to text found above a relocated declaration, where LLM replies
// put their prose.
func statementsOnly(lines []string) []string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "%%") || nodeStatement.MatchString(trimmed) || directiveLine.MatchString(trimmed) {
			kept = append(kept, line)
		}
	}
	return kept
}

// ValidateStrict checks the declaration and that every following non-blank
// line starts with an alphanumeric token or is a %% comment.
func ValidateStrict(code string) error {
	code = StripFences(code)
	if code == "" {
		return fmt.Errorf("diagram code is empty")
	}

	lines := strings.Split(code, "\n")
	seenDeclaration := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !seenDeclaration {
			if !declarationLine.MatchString(trimmed) {
				return fmt.Errorf("line %d: expected graph or flowchart declaration, got %q", i+1, trimmed)
			}
			seenDeclaration = true
			continue
		}
		if strings.HasPrefix(trimmed, "%%") {
			continue
		}
		if !isAlphanumeric(trimmed[0]) {
			return fmt.Errorf("line %d: statement must start with a node id, got %q", i+1, trimmed)
		}
	}
	return nil
}

// ContainsUnsafeContent reports whether code holds script injection or URL
// scheme patterns, regardless of whether it is otherwise valid.
func ContainsUnsafeContent(code string) bool {
	lower := strings.ToLower(unsafeSpacing.ReplaceAllString(code, "$1"))
	for _, pattern := range unsafePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Orientation returns the direction of a valid declaration, or "".
func Orientation(code string) string {
	first, _ := splitFirstLine(StripFences(code))
	m := declarationLine.FindStringSubmatch(first)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[2])
}

// balanced walks text counting brackets and quotes. Quotes toggle; any
// closer without an opener fails immediately.
func balanced(text string) bool {
	counts := map[rune]int{'[': 0, '(': 0, '{': 0, '"': 0, '\'': 0}
	for _, r := range text {
		switch r {
		case '[', '(', '{':
			counts[r]++
		case ']', ')', '}':
			opener := bracketPairs[r]
			counts[opener]--
			if counts[opener] < 0 {
				return false
			}
		case '"', '\'':
			counts[r] = 1 - counts[r]
		}
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

// splitFirstLine returns the first non-blank line, trimmed, and the text after it.
func splitFirstLine(code string) (string, string) {
	rest := code
	for rest != "" {
		line := rest
		next := ""
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line, next = rest[:i], rest[i+1:]
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed, next
		}
		rest = next
	}
	return "", ""
}

func formatDeclaration(keyword, direction string) string {
	return strings.ToLower(keyword) + " " + strings.ToUpper(direction)
}

func joinDiagram(declaration string, body []string) string {
	var b strings.Builder
	b.WriteString(declaration)
	for _, line := range body {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteByte('\n')
		b.WriteString(strings.TrimRight(line, " \t\r"))
	}
	return b.String()
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
