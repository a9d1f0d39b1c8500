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

// Package server exposes the demo backends over HTTP
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/chat"
	"github.com/your-org/ai-demo-gateway/internal/config"
	"github.com/your-org/ai-demo-gateway/internal/flowchart"
	"github.com/your-org/ai-demo-gateway/internal/health"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
	"github.com/your-org/ai-demo-gateway/internal/voice"
)

// FlowchartService generates, enhances and repairs diagrams
type FlowchartService interface {
	Generate(ctx context.Context, req flowchart.Request) (*flowchart.Result, error)
	EnhancePrompt(ctx context.Context, input string) (string, error)
	FixCode(ctx context.Context, code string) (*flowchart.FixResult, error)
}

// CaptionService streams image captions
type CaptionService interface {
	Stream(ctx context.Context, imageDataURL string, w io.Writer) error
}

// VoiceService answers transcripts with text and optional audio
type VoiceService interface {
	Respond(ctx context.Context, transcript string) (*voice.Reply, error)
}

// ChatService completes conversations
type ChatService interface {
	Complete(ctx context.Context, messages []chat.Message) (string, error)
	Stream(ctx context.Context, messages []chat.Message, w io.Writer) error
}

// DiagramRenderer turns Mermaid code into an image URL or a text fallback
type DiagramRenderer interface {
	RenderDiagramWithFallback(ctx context.Context, mermaidCode string) (imageURL, fallbackText string)
}

// Options wires the services behind the routes. A nil service means its
// provider key is missing; its routes answer 500 naming the variable.
type Options struct {
	Flowchart FlowchartService
	Caption   CaptionService
	Voice     VoiceService
	Chat      ChatService
	Renderer  DiagramRenderer
	Health    *health.Manager
	CORS      config.CORSConfig
}

// Server is the HTTP front of the gateway
type Server struct {
	opts   Options
	engine *gin.Engine
	errors *resilience.ErrorHandler
	logger *zap.Logger
}

// New builds the router. gin's mode must be set by the caller.
func New(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Health == nil {
		opts.Health = health.NewManager("ai-demo-gateway", "dev", logger)
	}

	s := &Server{
		opts:   opts,
		engine: gin.New(),
		errors: resilience.NewErrorHandler(logger),
		logger: logger,
	}

	s.engine.Use(RequestID(), RequestLogger(logger), Recovery(logger), CORS(opts.CORS))
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.opts.Health.Handler())

	api := s.engine.Group("/api")
	{
		api.POST("/completion", s.handleCompletion)
		api.POST("/ai-response", s.handleAIResponse)
		api.POST("/generate-flowchart", s.handleGenerateFlowchart)
		api.POST("/enhance-prompt", s.handleEnhancePrompt)
		api.POST("/fix-mermaid-code", s.handleFixMermaidCode)
		api.POST("/render-flowchart", s.handleRenderFlowchart)
		api.POST("/chat", s.handleChat)
		api.POST("/check-code", s.handleCheckCode)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		svcErr := resilience.NewServiceError("Route not found", resilience.ErrorCodeNotFound, http.StatusNotFound, nil)
		c.JSON(svcErr.StatusCode, svcErr.ToErrorResponse(requestID(c)))
	})
}

// Handler returns the router as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// fail writes err as a JSON error response. Once a streamed body has
// started the status can no longer change, so the stream is just cut.
func (s *Server) fail(c *gin.Context, err error, operation string) {
	svcErr := s.errors.WrapError(err, operation)
	_ = c.Error(err)

	if c.Writer.Written() {
		s.errors.LogError(err, operation, zap.String("request_id", requestID(c)))
		c.Abort()
		return
	}
	// Streaming routes set a text content type up front
	c.Writer.Header().Del("Content-Type")
	c.AbortWithStatusJSON(svcErr.StatusCode, svcErr.ToErrorResponse(requestID(c)))
}

// bind decodes the JSON body; decoding failures are input errors
func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, resilience.NewBadRequestError("Invalid request format", err), "decoding the request")
		return false
	}
	return true
}

func (s *Server) notConfigured(c *gin.Context, envVar string) {
	s.fail(c, resilience.NewNotConfiguredError(envVar), "checking provider configuration")
}
