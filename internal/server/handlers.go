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

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/chat"
	"github.com/your-org/ai-demo-gateway/internal/codecheck"
	"github.com/your-org/ai-demo-gateway/internal/config"
	"github.com/your-org/ai-demo-gateway/internal/flowchart"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
)

// MaxRenderCodeLength bounds code sent to the renderer
const MaxRenderCodeLength = 10000

// CompletionRequest carries an image data URL to caption
type CompletionRequest struct {
	Prompt string `json:"prompt"`
}

// AIResponseRequest carries a speech transcript
type AIResponseRequest struct {
	Transcript string `json:"transcript"`
}

// AIResponse is the voice reply. Error is only set on a 206.
type AIResponse struct {
	Response    string `json:"response"`
	Audio       string `json:"audio,omitempty"`
	AudioFormat string `json:"audioFormat,omitempty"`
	Error       string `json:"error,omitempty"`
}

// EnhancePromptRequest carries a rough process description
type EnhancePromptRequest struct {
	Input string `json:"input"`
}

// EnhancePromptResponse carries the rewritten description
type EnhancePromptResponse struct {
	EnhancedPrompt string `json:"enhancedPrompt"`
}

// FixMermaidRequest carries user-supplied Mermaid code
type FixMermaidRequest struct {
	Code string `json:"code"`
}

// RenderRequest carries Mermaid code to render
type RenderRequest struct {
	Code string `json:"code"`
}

// RenderResponse holds exactly one of ImageURL and FallbackText
type RenderResponse struct {
	ImageURL     string `json:"imageUrl,omitempty"`
	FallbackText string `json:"fallbackText,omitempty"`
}

// ChatRequest is a client-held conversation
type ChatRequest struct {
	Messages []chat.Message `json:"messages"`
	Stream   bool           `json:"stream,omitempty"`
}

// ChatResponse is a non-streamed assistant message
type ChatResponse struct {
	Content string `json:"content"`
}

// CheckCodeRequest carries playground code
type CheckCodeRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// CheckCodeResponse lists the problems found
type CheckCodeResponse struct {
	Valid  bool              `json:"valid"`
	Issues []codecheck.Issue `json:"issues"`
}

func (s *Server) handleCompletion(c *gin.Context) {
	if s.opts.Caption == nil {
		s.notConfigured(c, config.EnvOpenAIKey)
		return
	}

	var req CompletionRequest
	if !s.bind(c, &req) {
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	if err := s.opts.Caption.Stream(c.Request.Context(), req.Prompt, c.Writer); err != nil {
		s.fail(c, err, "captioning the image")
	}
}

func (s *Server) handleAIResponse(c *gin.Context) {
	if s.opts.Voice == nil {
		s.notConfigured(c, config.EnvGroqKey)
		return
	}

	var req AIResponseRequest
	if !s.bind(c, &req) {
		return
	}

	reply, err := s.opts.Voice.Respond(c.Request.Context(), req.Transcript)
	if err != nil {
		s.fail(c, err, "generating the voice reply")
		return
	}

	if reply.Partial() {
		s.logger.Warn("Returning text without audio",
			zap.String("request_id", requestID(c)),
			zap.Error(reply.SpeechErr))
		c.JSON(http.StatusPartialContent, AIResponse{
			Response: reply.Text,
			Error:    "Speech synthesis failed: " + reply.SpeechErr.Error(),
		})
		return
	}

	resp := AIResponse{Response: reply.Text}
	if reply.Audio != nil {
		resp.Audio = reply.Audio.Base64()
		resp.AudioFormat = reply.Audio.Format()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGenerateFlowchart(c *gin.Context) {
	if s.opts.Flowchart == nil {
		s.notConfigured(c, config.EnvClaudeKey)
		return
	}

	var req flowchart.Request
	if !s.bind(c, &req) {
		return
	}

	result, err := s.opts.Flowchart.Generate(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err, "generating the flowchart")
		return
	}
	if result.Warning != "" {
		s.logger.Info("Flowchart served with warning",
			zap.String("request_id", requestID(c)),
			zap.String("warning", result.Warning))
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleEnhancePrompt(c *gin.Context) {
	if s.opts.Flowchart == nil {
		s.notConfigured(c, config.EnvClaudeKey)
		return
	}

	var req EnhancePromptRequest
	if !s.bind(c, &req) {
		return
	}

	enhanced, err := s.opts.Flowchart.EnhancePrompt(c.Request.Context(), req.Input)
	if err != nil {
		s.fail(c, err, "enhancing the prompt")
		return
	}
	c.JSON(http.StatusOK, EnhancePromptResponse{EnhancedPrompt: enhanced})
}

func (s *Server) handleFixMermaidCode(c *gin.Context) {
	if s.opts.Flowchart == nil {
		s.notConfigured(c, config.EnvClaudeKey)
		return
	}

	var req FixMermaidRequest
	if !s.bind(c, &req) {
		return
	}

	result, err := s.opts.Flowchart.FixCode(c.Request.Context(), req.Code)
	if err != nil {
		s.fail(c, err, "fixing the Mermaid code")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRenderFlowchart(c *gin.Context) {
	if s.opts.Renderer == nil {
		s.fail(c, resilience.NewInternalError("Diagram rendering is disabled", nil), "rendering the flowchart")
		return
	}

	var req RenderRequest
	if !s.bind(c, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		s.fail(c, resilience.NewBadRequestError("code is required", nil), "rendering the flowchart")
		return
	}
	if len(req.Code) > MaxRenderCodeLength {
		s.fail(c, resilience.NewBadRequestError("code is too long", nil), "rendering the flowchart")
		return
	}

	imageURL, fallbackText := s.opts.Renderer.RenderDiagramWithFallback(c.Request.Context(), req.Code)
	c.JSON(http.StatusOK, RenderResponse{ImageURL: imageURL, FallbackText: fallbackText})
}

func (s *Server) handleChat(c *gin.Context) {
	if s.opts.Chat == nil {
		s.notConfigured(c, config.EnvOpenAIKey)
		return
	}

	var req ChatRequest
	if !s.bind(c, &req) {
		return
	}

	if req.Stream {
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Header("Cache-Control", "no-cache")
		if err := s.opts.Chat.Stream(c.Request.Context(), req.Messages, c.Writer); err != nil {
			s.fail(c, err, "streaming the chat reply")
		}
		return
	}

	content, err := s.opts.Chat.Complete(c.Request.Context(), req.Messages)
	if err != nil {
		s.fail(c, err, "completing the chat")
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Content: content})
}

func (s *Server) handleCheckCode(c *gin.Context) {
	var req CheckCodeRequest
	if !s.bind(c, &req) {
		return
	}

	issues, err := codecheck.Check(req.Language, req.Code)
	if err != nil {
		s.fail(c, resilience.NewBadRequestError(err.Error(), err), "checking the code")
		return
	}
	if issues == nil {
		issues = []codecheck.Issue{}
	}
	c.JSON(http.StatusOK, CheckCodeResponse{Valid: len(issues) == 0, Issues: issues})
}
