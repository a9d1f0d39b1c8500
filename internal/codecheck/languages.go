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

package codecheck

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// voidElements never take a closing tag
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

type openTag struct {
	name string
	line int
}

// CheckHTML reports closing tags without an opener, mismatched nesting and
// tags left open. Script and style bodies are checked as JS and CSS.
func CheckHTML(code string) []Issue {
	var issues []Issue
	var stack []openTag

	z := html.NewTokenizer(strings.NewReader(code))
	line := 1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		tokenLine := line + strings.Count(raw[:len(raw)-len(strings.TrimLeft(raw, "\r\n\t "))], "\n")
		tok := z.Token()

		switch tt {
		case html.StartTagToken:
			if !voidElements[tok.Data] {
				stack = append(stack, openTag{name: tok.Data, line: tokenLine})
			}

		case html.EndTagToken:
			if voidElements[tok.Data] {
				issues = append(issues, Issue{Line: tokenLine, Message: fmt.Sprintf("<%s> is a void element and must not be closed", tok.Data)})
				break
			}
			idx := lastIndex(stack, tok.Data)
			if idx < 0 {
				issues = append(issues, Issue{Line: tokenLine, Message: fmt.Sprintf("Closing tag </%s> has no matching opening tag", tok.Data)})
				break
			}
			for _, open := range stack[idx+1:] {
				issues = append(issues, Issue{Line: open.line, Message: fmt.Sprintf("Tag <%s> is not closed before </%s>", open.name, tok.Data)})
			}
			stack = stack[:idx]

		case html.TextToken:
			if len(stack) > 0 {
				switch stack[len(stack)-1].name {
				case "script":
					issues = append(issues, offset(CheckJS(tok.Data), line-1)...)
				case "style":
					issues = append(issues, offset(CheckCSS(tok.Data), line-1)...)
				}
			}
		}

		line += strings.Count(raw, "\n")
	}

	for _, open := range stack {
		issues = append(issues, Issue{Line: open.line, Message: fmt.Sprintf("Unclosed tag <%s>", open.name)})
	}
	return issues
}

// CheckCSS reports unbalanced braces, unterminated strings and comments.
func CheckCSS(code string) []Issue {
	return scanBrackets(code, scanOptions{quotes: `"'`})
}

// CheckJS reports unbalanced brackets, unterminated strings and comments.
func CheckJS(code string) []Issue {
	return scanBrackets(code, scanOptions{lineComments: true, quotes: "\"'`"})
}

func lastIndex(stack []openTag, name string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].name == name {
			return i
		}
	}
	return -1
}

func offset(issues []Issue, lines int) []Issue {
	for i := range issues {
		issues[i].Line += lines
	}
	return issues
}
