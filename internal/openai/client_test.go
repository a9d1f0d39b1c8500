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

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
)

// mockOpenAIServer serves /chat/completions with the given status and body
// and records the last decoded request.
func mockOpenAIServer(t testing.TB, status int, body string, captured *map[string]any) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": {"message": "not found"}}`))
			return
		}
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			m := map[string]any{}
			if err := json.Unmarshal(raw, &m); err != nil {
				t.Errorf("request body is not JSON: %v", err)
			}
			*captured = m
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

// createMockChatResponse creates a mock chat completion response
func createMockChatResponse(content string) string {
	return fmt.Sprintf(`{
		"id": "chatcmpl-test",
		"object": "chat.completion",
		"created": 1234567890,
		"model": "gpt-4o-mini",
		"choices": [
			{
				"index": 0,
				"message": {"role": "assistant", "content": %q},
				"finish_reason": "stop"
			}
		],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`, content)
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	cfg := openai.DefaultConfig("sk-test-api-key-12345678901234567890") // pragma: allowlist secret
	cfg.BaseURL = url + "/v1"
	return NewClientWithConfig(cfg, zaptest.NewLogger(t), opts...)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", nil)
	require.Error(t, err)

	c, err := NewClient("sk-anything", nil, WithModel("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", c.Model())

	g, err := NewGroqClient("gsk_test", "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultGroqModel, g.Model())
	assert.Equal(t, "groq", g.provider)
}

func TestComplete(t *testing.T) {
	var captured map[string]any
	server := mockOpenAIServer(t, http.StatusOK, createMockChatResponse("Hi there"), &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.Complete(context.Background(), llm.Request{
		System:      "be brief",
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.PromptTokens)

	assert.Equal(t, DefaultChatModel, captured["model"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "be brief", messages[0].(map[string]any)["content"])
}

func TestCompleteWithImage(t *testing.T) {
	var captured map[string]any
	server := mockOpenAIServer(t, http.StatusOK, createMockChatResponse("a cat"), &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Complete(context.Background(), llm.Request{
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "describe"}},
		ImageDataURL: "data:image/png;base64,iVBORw0KGgo=",
	})
	require.NoError(t, err)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 1)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	image := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", image["url"])
}

func TestCompleteErrorTagging(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true},
		{name: "server error", status: http.StatusInternalServerError, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, retryable: false},
		{name: "unauthorized", status: http.StatusUnauthorized, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := mockOpenAIServer(t, tt.status, `{"error": {"message": "upstream says no", "type": "error"}}`, nil)
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.Complete(context.Background(), llm.UserText("", "hello"))
			require.Error(t, err)
			assert.Equal(t, tt.retryable, resilience.IsRetryable(err))
			assert.Contains(t, err.Error(), "upstream says no")
		})
	}
}

func TestCompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"A cat", " on a mat", "▲", "MEOW"} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	var got []string
	err := client.CompleteStream(context.Background(), llm.UserText("", "caption"), func(delta string) error {
		got = append(got, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A cat", " on a mat", "▲", "MEOW"}, got)
}

func TestCompleteStreamAbortsOnCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 3; i++ {
			_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x%d\"}}]}\n\n", i)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	stop := fmt.Errorf("client went away")
	calls := 0
	err := client.CompleteStream(context.Background(), llm.UserText("", "x"), func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
