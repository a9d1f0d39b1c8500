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

// Package codecheck runs the lightweight syntax checks behind the code
// playground. They catch unbalanced structure, not full grammar errors.
package codecheck

import (
	"fmt"
	"strings"
)

// Language names accepted by Check
const (
	LanguageHTML       = "html"
	LanguageCSS        = "css"
	LanguageJavaScript = "javascript"
)

// Issue is one problem found in the code
type Issue struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("line %d: %s", i.Line, i.Message)
}

// Check dispatches to the checker for language. "js" is accepted as an alias.
func Check(language, code string) ([]Issue, error) {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case LanguageHTML, "htm":
		return CheckHTML(code), nil
	case LanguageCSS:
		return CheckCSS(code), nil
	case LanguageJavaScript, "js":
		return CheckJS(code), nil
	default:
		return nil, fmt.Errorf("unsupported language %q", language)
	}
}

var closerFor = map[rune]rune{'(': ')', '[': ']', '{': '}'}

type opener struct {
	char rune
	line int
}

// scanOptions selects the lexical rules for scanBrackets
type scanOptions struct {
	lineComments bool
	quotes       string
}

// scanBrackets checks bracket nesting, skipping string literals and
// comments. Template literal bodies are skipped whole.
func scanBrackets(code string, opts scanOptions) []Issue {
	var issues []Issue
	var stack []opener

	runes := []rune(code)
	line := 1
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\n':
			line++

		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			start := line
			i += 2
			for ; i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/'); i++ {
				if runes[i] == '\n' {
					line++
				}
			}
			if i >= len(runes) {
				issues = append(issues, Issue{Line: start, Message: "Unclosed comment"})
				return append(issues, unclosed(stack)...)
			}
			i++

		case opts.lineComments && c == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			i--

		case strings.ContainsRune(opts.quotes, c):
			start := line
			multiline := c == '`'
			i++
			for ; i < len(runes) && runes[i] != c; i++ {
				if runes[i] == '\\' {
					i++
					continue
				}
				if runes[i] == '\n' {
					if !multiline {
						break
					}
					line++
				}
			}
			if i >= len(runes) || runes[i] != c {
				issues = append(issues, Issue{Line: start, Message: fmt.Sprintf("Unterminated string starting with %c", c)})
				if i < len(runes) {
					i--
				}
			}

		case c == '(' || c == '[' || c == '{':
			stack = append(stack, opener{char: c, line: line})

		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 {
				issues = append(issues, Issue{Line: line, Message: fmt.Sprintf("Unexpected '%c'", c)})
				continue
			}
			top := stack[len(stack)-1]
			if closerFor[top.char] != c {
				issues = append(issues, Issue{
					Line:    line,
					Message: fmt.Sprintf("Expected '%c' to close '%c' from line %d but found '%c'", closerFor[top.char], top.char, top.line, c),
				})
			}
			stack = stack[:len(stack)-1]
		}
	}

	return append(issues, unclosed(stack)...)
}

func unclosed(stack []opener) []Issue {
	issues := make([]Issue, 0, len(stack))
	for _, o := range stack {
		issues = append(issues, Issue{Line: o.line, Message: fmt.Sprintf("Unclosed '%c'", o.char)})
	}
	return issues
}
