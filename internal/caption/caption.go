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

// Package caption streams an image description followed by the text found
// in the image, separated by the streaming sentinel.
package caption

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/llm"
	"github.com/your-org/ai-demo-gateway/internal/resilience"
	"github.com/your-org/ai-demo-gateway/internal/streaming"
)

const (
	// MaxImageBytes bounds the decoded image size
	MaxImageBytes = 10 << 20

	// DefaultModel must accept image input
	DefaultModel = "gpt-4o-mini"
)

// SystemPrompt asks for a description, the sentinel, then verbatim text
var SystemPrompt = fmt.Sprintf(`You caption images for a photo uploader.
First write a short, vivid description of the image in one or two sentences.
Then output the character %s on its own.
After it, write any text that is visible in the image exactly as it appears. If there is no text, write nothing after the %s.
Do not use markdown.`, streaming.Sentinel, streaming.Sentinel)

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Service captions images with a streaming vision model
type Service struct {
	completer llm.StreamCompleter
	model     string
	logger    *zap.Logger
}

// NewService creates a caption service
func NewService(completer llm.StreamCompleter, model string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = DefaultModel
	}
	return &Service{completer: completer, model: model, logger: logger}
}

// ValidateDataURL checks that prompt is a base64 image data URL of an
// accepted type and size.
func ValidateDataURL(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return resilience.NewBadRequestError("prompt is required", nil)
	}
	header, payload, ok := strings.Cut(prompt, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return resilience.NewBadRequestError("prompt must be a base64 image data URL", nil)
	}
	mediaType := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"))
	if !allowedImageTypes[mediaType] {
		return resilience.NewBadRequestError(fmt.Sprintf("unsupported image type %q", mediaType), nil)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes {
		return resilience.NewBadRequestError("image is too large", nil)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return resilience.NewBadRequestError("image data is not valid base64", err)
	}
	return nil
}

// Stream validates the image and streams the caption to w. Nothing is
// written when validation or opening the upstream stream fails.
func (s *Service) Stream(ctx context.Context, imageDataURL string, w io.Writer) error {
	if err := ValidateDataURL(imageDataURL); err != nil {
		return err
	}

	req := llm.UserText(SystemPrompt, "Caption this image.")
	req.Model = s.model
	req.MaxTokens = 500
	req.Temperature = 0.2
	req.ImageDataURL = strings.TrimSpace(imageDataURL)

	out := streaming.NewWriter(w)
	extracting := false
	err := s.completer.CompleteStream(ctx, req, func(delta string) error {
		if extracting {
			return out.WriteExtracted(delta)
		}
		description, extracted, found := strings.Cut(delta, streaming.Sentinel)
		if description != "" {
			if err := out.WriteDescription(description); err != nil {
				return err
			}
		}
		if !found {
			return nil
		}
		extracting = true
		return out.WriteExtracted(extracted)
	})
	if err != nil {
		return fmt.Errorf("caption stream failed after %d bytes: %w", out.BytesWritten(), err)
	}

	s.logger.Debug("Caption streamed", zap.Int64("bytes", out.BytesWritten()))
	return nil
}
