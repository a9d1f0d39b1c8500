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

package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/ai-demo-gateway/internal/llm"
)

type fakeChat struct {
	reply  string
	deltas []string
	err    error
	last   llm.Request
}

func (f *fakeChat) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.reply}, nil
}

func (f *fakeChat) CompleteStream(_ context.Context, req llm.Request, onDelta func(string) error) error {
	f.last = req
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return f.err
}

func TestBuildRequest(t *testing.T) {
	req, err := BuildRequest([]Message{
		{Role: "System", Content: "Write like a pirate."},
		{Role: "user", Content: "Hi <i>there</i>"},
		{Role: "assistant", Content: "Ahoy"},
		{Role: "user", Content: "  "},
		{Role: "USER", Content: "Tell me a story"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Write like a pirate.", req.System)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.Message{Role: "user", Content: "Hi there"}, req.Messages[0])
	assert.Equal(t, llm.Message{Role: "user", Content: "Tell me a story"}, req.Messages[2])

	req, err = BuildRequest([]Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, SystemPrompt, req.System)
}

func TestBuildRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
	}{
		{name: "empty", messages: nil},
		{name: "bad role", messages: []Message{{Role: "tool", Content: "x"}}},
		{name: "ends with assistant", messages: []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}},
		{name: "only blank", messages: []Message{{Role: "user", Content: "<br>"}}},
		{name: "too many", messages: make([]Message, MaxMessages+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildRequest(tt.messages)
			assert.Error(t, err)
		})
	}
}

func TestComplete(t *testing.T) {
	fake := &fakeChat{reply: "Once upon a time"}
	svc := NewService(fake, zaptest.NewLogger(t))

	got, err := svc.Complete(context.Background(), []Message{{Role: "user", Content: "story"}})
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time", got)

	fake.err = errors.New("openai API error (status 400): context too long")
	_, err = svc.Complete(context.Background(), []Message{{Role: "user", Content: "story"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context too long")
}

func TestStream(t *testing.T) {
	fake := &fakeChat{deltas: []string{"Once", " upon", " a time"}}
	svc := NewService(fake, zaptest.NewLogger(t))

	var buf bytes.Buffer
	require.NoError(t, svc.Stream(context.Background(), []Message{{Role: "user", Content: "story"}}, &buf))
	assert.Equal(t, "Once upon a time", buf.String())

	buf.Reset()
	err := svc.Stream(context.Background(), nil, &buf)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())

	fake.err = errors.New("reset")
	err = svc.Stream(context.Background(), []Message{{Role: "user", Content: "story"}}, &buf)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "after 16 bytes"))
}
