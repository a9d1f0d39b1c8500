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
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/ai-demo-gateway/internal/config"
	"github.com/your-org/ai-demo-gateway/internal/speech"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "flowchart", "validate", "caption", "check"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "valid diagram",
			input: "graph TD\n    A[Start] --> B[End]\n",
			want:  "valid",
		},
		{
			name:  "fenced diagram",
			input: "```mermaid\nflowchart LR\n    A --> B\n```\n",
			want:  "valid",
		},
		{
			name:    "missing declaration",
			input:   "A --> B",
			want:    "invalid: line 1",
			wantErr: true,
		},
		{
			name:    "unsafe content",
			input:   "graph TD\n    A[<script>alert(1)</script>] --> B",
			want:    "unsafe",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.input, "validate")
			if tt.wantErr {
				assert.ErrorIs(t, err, errInvalid)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestValidateCommandReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diagram.mmd")
	require.NoError(t, os.WriteFile(path, []byte("graph LR\n    A --> B\n"), 0o600))

	out, err := execute(t, "", "validate", path)
	require.NoError(t, err)
	assert.Equal(t, "valid\n", out)

	_, err = execute(t, "", "validate", filepath.Join(t.TempDir(), "missing.mmd"))
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	out, err := execute(t, "function f() {\n  return 1;\n}\n", "check", "js")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	out, err = execute(t, "function f() {\n  return 1;\n", "check", "javascript", "-")
	assert.ErrorIs(t, err, errInvalid)
	assert.Equal(t, "line 1: Unclosed '{'\n", out)

	_, err = execute(t, "print('hi')", "check", "python")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestCaptionCommandRequiresImage(t *testing.T) {
	_, err := execute(t, "", "caption", filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read image")
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 8080, Mode: "test"},
		Retry:   config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Logging: config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Flowchart: config.FlowchartConfig{
			MaxInputLength: 5000,
			MaxCodeLength:  10000,
			MaxTokens:      2000,
			Temperature:    0.3,
			Orientation:    "TD",
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func TestBuildAppWithoutKeys(t *testing.T) {
	a, err := buildApp(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.flowchart)
	assert.Nil(t, a.repairer)
	assert.Nil(t, a.chat)
	assert.Nil(t, a.caption)
	assert.Nil(t, a.voice)
	assert.NotNil(t, a.renderer)

	opts := a.serverOptions()
	assert.Nil(t, opts.Flowchart)
	assert.Nil(t, opts.Chat)
	assert.Nil(t, opts.Caption)
	assert.Nil(t, opts.Voice)
	assert.NotNil(t, opts.Renderer)
	assert.NotNil(t, opts.Health)
	assert.Equal(t, []string{"*"}, opts.CORS.AllowedOrigins)
}

func TestBuildAppWithKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Claude.APIKey = "sk-ant-test"
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Groq.APIKey = "gsk-test"
	cfg.ElevenLabs.APIKey = "el-test"

	a, err := buildApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.flowchart)
	assert.NotNil(t, a.repairer)
	assert.NotNil(t, a.chat)
	assert.NotNil(t, a.caption)
	assert.NotNil(t, a.voice)

	opts := a.serverOptions()
	assert.NotNil(t, opts.Flowchart)
	assert.NotNil(t, opts.Voice)
}

func TestBuildSynthesizer(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := testConfig()
	tts, err := buildSynthesizer(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, tts)

	cfg.ElevenLabs.APIKey = "el-test"
	tts, err = buildSynthesizer(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &speech.ElevenLabsClient{}, tts)

	cfg.Cartesia.APIKey = "cartesia-test"
	tts, err = buildSynthesizer(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &speech.CartesiaClient{}, tts)
}

func TestInvalidRendererURL(t *testing.T) {
	cfg := testConfig()
	cfg.Renderer.MermaidInkURL = "not a url"

	_, err := buildApp(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diagram renderer")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestInitializeLogger(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "warn"

	logger, level, err := initializeLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
