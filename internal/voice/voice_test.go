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

package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
	"github.com/your-org/ai-demo-gateway/internal/speech"
)

type synthFunc func(ctx context.Context, text string) (*speech.Audio, error)

func (f synthFunc) Synthesize(ctx context.Context, text string) (*speech.Audio, error) {
	return f(ctx, text)
}

func echo(prefix string) llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "  " + prefix + req.Messages[0].Content + "  "}, nil
	})
}

func TestRespondWithAudio(t *testing.T) {
	var spoken string
	tts := synthFunc(func(_ context.Context, text string) (*speech.Audio, error) {
		spoken = text
		return &speech.Audio{Data: []byte{1, 2, 3}, ContentType: "audio/mpeg"}, nil
	})
	svc := NewService(echo("You said: "), tts, zaptest.NewLogger(t))

	reply, err := svc.Respond(context.Background(), "hello <b>there</b>")
	require.NoError(t, err)
	assert.Equal(t, "You said: hello there", reply.Text)
	assert.Equal(t, reply.Text, spoken)
	require.NotNil(t, reply.Audio)
	assert.False(t, reply.Partial())
}

func TestRespondPartialWhenSpeechFails(t *testing.T) {
	tts := synthFunc(func(context.Context, string) (*speech.Audio, error) {
		return nil, errors.New("cartesia API error (status 402): out of credits")
	})
	svc := NewService(echo(""), tts, zaptest.NewLogger(t))

	reply, err := svc.Respond(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", reply.Text)
	assert.Nil(t, reply.Audio)
	assert.True(t, reply.Partial())
	assert.Contains(t, reply.SpeechErr.Error(), "out of credits")
}

func TestRespondRetriesRateLimitedSpeech(t *testing.T) {
	calls := 0
	tts := synthFunc(func(context.Context, string) (*speech.Audio, error) {
		calls++
		if calls == 1 {
			return nil, &resilience.RetryableError{Provider: "cartesia", StatusCode: 429, Message: "rate limited"}
		}
		return &speech.Audio{Data: []byte("ID3"), ContentType: "audio/mpeg"}, nil
	})
	svc := NewService(echo(""), tts, zaptest.NewLogger(t))
	svc.speechRetry.BaseDelay = time.Millisecond

	reply, err := svc.Respond(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.False(t, reply.Partial())
	require.NotNil(t, reply.Audio)
}

func TestRespondTextOnly(t *testing.T) {
	svc := NewService(echo(""), nil, nil)
	reply, err := svc.Respond(context.Background(), "hi")
	require.NoError(t, err)
	assert.Nil(t, reply.Audio)
	assert.False(t, reply.Partial())
}

func TestRespondErrors(t *testing.T) {
	svc := NewService(echo(""), nil, nil)
	_, err := svc.Respond(context.Background(), "   ")
	assert.Error(t, err)

	failing := llm.CompleterFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, errors.New("groq API error (status 400): bad model")
	})
	_, err = NewService(failing, nil, nil).Respond(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")

	blank := llm.CompleterFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: " "}, nil
	})
	_, err = NewService(blank, nil, nil).Respond(context.Background(), "hi")
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}
