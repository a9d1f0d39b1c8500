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
	"strings"
)

const (
	// DefaultOrientation is used when no valid orientation is given
	DefaultOrientation = "TD"
	// MaxLabelLength is the longest node label before truncation
	MaxLabelLength = 50
)

var validOrientations = map[string]bool{"TB": true, "TD": true, "BT": true, "RL": true, "LR": true}

// label characters that would unbalance the quick validator or break Mermaid syntax
var labelReplacer = strings.NewReplacer(
	"[", "", "]", "",
	"(", "", ")", "",
	"{", "", "}", "",
	"<", "", ">", "",
	`"`, "", "'", "",
	"`", "", "|", "",
	";", ",",
)

// GenerateSimpleFlowchart builds a linear flowchart from input by splitting
// it into sentences. Output is deterministic and always passes QuickValidate.
func GenerateSimpleFlowchart(input, orientation string) string {
	orientation = strings.ToUpper(strings.TrimSpace(orientation))
	if !validOrientations[orientation] {
		orientation = DefaultOrientation
	}

	var labels []string
	for _, segment := range strings.Split(input, ".") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		labels = append(labels, nodeLabel(segment, len(labels)+1))
	}

	if len(labels) == 0 {
		return fmt.Sprintf("graph %s\n    A[Start] --> B[End]", orientation)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "graph %s", orientation)
	for i, label := range labels {
		fmt.Fprintf(&b, "\n    %s[%s]", NodeID(i), label)
	}
	for i := 1; i < len(labels); i++ {
		fmt.Fprintf(&b, "\n    %s --> %s", NodeID(i-1), NodeID(i))
	}
	return b.String()
}

// NodeID returns the spreadsheet-style id for the n-th node: A..Z, AA, AB, ...
func NodeID(n int) string {
	var id []byte
	for n >= 0 {
		id = append([]byte{byte('A' + n%26)}, id...)
		n = n/26 - 1
	}
	return string(id)
}

func nodeLabel(segment string, position int) string {
	label := strings.Join(strings.Fields(labelReplacer.Replace(segment)), " ")
	if ContainsUnsafeContent(label) {
		label = strings.NewReplacer(":", " ", "=", " ").Replace(label)
		label = strings.Join(strings.Fields(label), " ")
	}
	if label == "" {
		return fmt.Sprintf("Step %d", position)
	}
	if r := []rune(label); len(r) > MaxLabelLength {
		label = strings.TrimSpace(string(r[:MaxLabelLength])) + "..."
	}
	return label
}
