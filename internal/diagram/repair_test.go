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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/ai-demo-gateway/internal/llm"
)

type fakeCompleter struct {
	calls   int
	last    llm.Request
	content string
	err     error
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func TestValidateAndCorrectRelocatesDeclaration(t *testing.T) {
	fake := &fakeCompleter{}
	repairer := NewRepairer(fake, zaptest.NewLogger(t))

	result := repairer.ValidateAndCorrect(context.Background(), "graph_node TD TD\nA[Start] --> B[End]")

	assert.True(t, result.WasFixed)
	assert.True(t, result.Valid())
	lines := strings.Split(result.CorrectedCode, "\n")
	assert.Regexp(t, `^graph (TB|TD|BT|RL|LR)$`, lines[0])
	assert.Equal(t, "A[Start] --> B[End]", lines[1])
	assert.Zero(t, fake.calls)
}

func TestValidateAndCorrectRejectsUnsafeRelocation(t *testing.T) {
	fake := &fakeCompleter{}
	repairer := NewRepairer(fake, zaptest.NewLogger(t))

	code := "A[x] --> B\ngraph TD\nclick A \"javascript:alert(1)\""
	result := repairer.ValidateAndCorrect(context.Background(), code)

	assert.False(t, result.WasFixed)
	assert.Equal(t, code, result.CorrectedCode)
	assert.Equal(t, ErrUnsafeContent.Error(), result.Error)
	assert.Zero(t, fake.calls)
}

func TestValidateAndCorrectNoKeyword(t *testing.T) {
	fake := &fakeCompleter{}
	repairer := NewRepairer(fake, zaptest.NewLogger(t))

	result := repairer.ValidateAndCorrect(context.Background(), "A --> B")
	assert.False(t, result.WasFixed)
	assert.Equal(t, "A --> B", result.CorrectedCode)
	assert.Equal(t, ErrNoDeclaration.Error(), result.Error)
	assert.Zero(t, fake.calls)
}

func TestValidateAndCorrectUsesLLM(t *testing.T) {
	fake := &fakeCompleter{content: "```mermaid\ngraph TD\nA[Start] --> B[End]\n```"}
	repairer := NewRepairer(fake, zaptest.NewLogger(t))

	result := repairer.ValidateAndCorrect(context.Background(), "graph TD\nA[Start --> B[End]")

	require.Equal(t, 1, fake.calls)
	assert.Equal(t, RepairSystemPrompt, fake.last.System)
	assert.Contains(t, fake.last.Messages[0].Content, "A[Start --> B[End]")
	assert.True(t, result.WasFixed)
	assert.Equal(t, "graph TD\nA[Start] --> B[End]", result.CorrectedCode)
	assert.Empty(t, result.Error)
}

func TestValidateAndCorrectUnchangedOutput(t *testing.T) {
	code := "graph TD\nA[Start] --> B[End]"
	fake := &fakeCompleter{content: code}
	repairer := NewRepairer(fake, zaptest.NewLogger(t))

	result := repairer.ValidateAndCorrect(context.Background(), code)
	assert.False(t, result.WasFixed)
	assert.Equal(t, code, result.CorrectedCode)
	assert.True(t, result.Valid())
}

func TestValidateAndCorrectRejectsUnsafeRepair(t *testing.T) {
	code := "graph TD\nA[x] --> B[y"
	fake := &fakeCompleter{content: "graph TD\nA[x] --> B[y]\nclick A \"javascript:alert(1)\""}
	repairer := NewRepairer(fake, zaptest.NewLogger(t))

	result := repairer.ValidateAndCorrect(context.Background(), code)
	assert.Equal(t, 1, fake.calls)
	assert.False(t, result.WasFixed)
	assert.Equal(t, code, result.CorrectedCode)
	assert.Equal(t, ErrUnsafeContent.Error(), result.Error)
	assert.False(t, result.Valid())
}

func TestValidateAndCorrectProviderFailure(t *testing.T) {
	code := "graph TD\nA[Start --> B"
	fake := &fakeCompleter{err: errors.New("claude API error (status 500): boom")}
	repairer := NewRepairer(fake, zaptest.NewLogger(t))

	result := repairer.ValidateAndCorrect(context.Background(), code)
	assert.False(t, result.WasFixed)
	assert.Equal(t, code, result.CorrectedCode)
	assert.Contains(t, result.Error, "boom")
}

func TestValidateAndCorrectEmptyRepair(t *testing.T) {
	fake := &fakeCompleter{content: "```\n```"}
	repairer := NewRepairer(fake, nil)

	result := repairer.ValidateAndCorrect(context.Background(), "graph TD\nA[ --> B")
	assert.False(t, result.WasFixed)
	assert.Equal(t, ErrEmptyRepair.Error(), result.Error)
}

func TestValidateAndCorrectWithoutCompleter(t *testing.T) {
	repairer := NewRepairer(nil, nil)
	result := repairer.ValidateAndCorrect(context.Background(), "graph TD\nA[ --> B")
	assert.False(t, result.WasFixed)
	assert.NotEmpty(t, result.Error)
}
