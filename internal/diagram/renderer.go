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

// Package diagram validates, repairs and renders Mermaid flowcharts. Local
// checks are pattern based; rendering goes through the mermaid.ink API.
package diagram

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

const (
	// DefaultMermaidInkURL is the default mermaid.ink API endpoint
	DefaultMermaidInkURL = "https://mermaid.ink/img"
	// DefaultTimeout is the default HTTP timeout for rendering requests
	DefaultTimeout = 30 * time.Second
	// DefaultCacheExpiry is the default cache expiry time for rendered diagrams
	DefaultCacheExpiry = 24 * time.Hour
	// MaxDiagramSize is the maximum allowed size for a Mermaid diagram
	MaxDiagramSize = 10 * 1024 // 10KB
	// MaxCacheSize is the maximum number of cached diagrams
	MaxCacheSize = 1000
)

// RendererConfig holds configuration for the diagram renderer
type RendererConfig struct {
	// MermaidInkURL is the mermaid.ink API endpoint
	MermaidInkURL string `mapstructure:"mermaid_ink_url"`
	// Timeout is the HTTP timeout for rendering requests
	Timeout time.Duration `mapstructure:"timeout"`
	// CacheExpiry is the cache expiry time for rendered diagrams
	CacheExpiry time.Duration `mapstructure:"cache_expiry"`
	// EnableCaching enables/disables diagram caching
	EnableCaching bool `mapstructure:"enable_caching"`
	// MaxDiagramSize is the maximum allowed size for a Mermaid diagram
	MaxDiagramSize int `mapstructure:"max_diagram_size"`
	// MaxCacheEntries bounds the number of cached URLs
	MaxCacheEntries int64 `mapstructure:"max_cache_entries"`
}

// DefaultRendererConfig returns default configuration for the diagram renderer
func DefaultRendererConfig() RendererConfig {
	return RendererConfig{
		MermaidInkURL:   DefaultMermaidInkURL,
		Timeout:         DefaultTimeout,
		CacheExpiry:     DefaultCacheExpiry,
		EnableCaching:   true,
		MaxDiagramSize:  MaxDiagramSize,
		MaxCacheEntries: MaxCacheSize,
	}
}

// Renderer handles diagram rendering using mermaid.ink API
type Renderer struct {
	config       RendererConfig
	httpClient   *http.Client
	cache        *ristretto.Cache[string, string]
	allowedHosts map[string]bool
	logger       *zap.Logger
}

// NewRenderer creates a new diagram renderer with the given configuration
func NewRenderer(config RendererConfig, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MermaidInkURL == "" {
		config.MermaidInkURL = DefaultMermaidInkURL
	}
	if config.MaxDiagramSize <= 0 {
		config.MaxDiagramSize = MaxDiagramSize
	}
	if config.MaxCacheEntries <= 0 {
		config.MaxCacheEntries = MaxCacheSize
	}
	if config.CacheExpiry <= 0 {
		config.CacheExpiry = DefaultCacheExpiry
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	base, err := url.Parse(config.MermaidInkURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid mermaid_ink_url %q", config.MermaidInkURL)
	}

	r := &Renderer{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		allowedHosts: map[string]bool{
			"mermaid.ink":     true,
			"www.mermaid.ink": true,
			base.Host:         true,
		},
		logger: logger,
	}

	if config.EnableCaching {
		// Each entry costs 1, so MaxCost is the entry limit.
		cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
			NumCounters: config.MaxCacheEntries * 10,
			MaxCost:     config.MaxCacheEntries,
			BufferItems: 64,
			Metrics:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create render cache: %w", err)
		}
		r.cache = cache
	}

	return r, nil
}

// RenderDiagram renders a Mermaid diagram to an image URL
func (r *Renderer) RenderDiagram(ctx context.Context, mermaidCode string) (string, error) {
	mermaidCode = StripFences(mermaidCode)

	if err := r.validateDiagramCode(mermaidCode); err != nil {
		return "", fmt.Errorf("invalid diagram code: %w", err)
	}

	key := cacheKey(mermaidCode)
	if r.cache != nil {
		if imageURL, found := r.cache.Get(key); found {
			r.logger.Debug("Found cached diagram", zap.String("url", imageURL))
			return imageURL, nil
		}
	}

	imageURL, err := r.renderDiagramViaAPI(ctx, mermaidCode)
	if err != nil {
		return "", fmt.Errorf("failed to render diagram: %w", err)
	}

	if err := r.validateRenderedURL(imageURL); err != nil {
		return "", fmt.Errorf("invalid rendered URL: %w", err)
	}

	if r.cache != nil {
		r.cache.SetWithTTL(key, imageURL, 1, r.config.CacheExpiry)
		r.cache.Wait()
	}

	r.logger.Info("Successfully rendered diagram", zap.String("url", imageURL))
	return imageURL, nil
}

// validateDiagramCode validates the Mermaid diagram code
func (r *Renderer) validateDiagramCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("diagram code cannot be empty")
	}
	if len(code) > r.config.MaxDiagramSize {
		return fmt.Errorf("diagram code too large: %d bytes (max: %d)", len(code), r.config.MaxDiagramSize)
	}
	if !QuickValidate(code) {
		return fmt.Errorf("diagram code must start with a graph or flowchart declaration and have balanced brackets")
	}
	if ContainsUnsafeContent(code) {
		return fmt.Errorf("diagram code contains potentially malicious content")
	}
	return nil
}

// renderDiagramViaAPI renders the diagram using the mermaid.ink API
func (r *Renderer) renderDiagramViaAPI(ctx context.Context, mermaidCode string) (string, error) {
	encodedCode := base64.URLEncoding.EncodeToString([]byte(mermaidCode))
	apiURL := fmt.Sprintf("%s/%s", strings.TrimRight(r.config.MermaidInkURL, "/"), encodedCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "AI-Demo-Gateway/1.0")
	req.Header.Set("Accept", "image/svg+xml,image/png,image/*")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("unexpected content type: %s", contentType)
	}

	// mermaid.ink serves the image at the request URL itself
	return apiURL, nil
}

// validateRenderedURL validates the rendered image URL
func (r *Renderer) validateRenderedURL(imageURL string) error {
	if imageURL == "" {
		return fmt.Errorf("rendered URL cannot be empty")
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsedURL.Scheme != "https" && parsedURL.Scheme != "http" {
		return fmt.Errorf("invalid URL scheme: %s", parsedURL.Scheme)
	}
	if !r.allowedHosts[parsedURL.Host] {
		return fmt.Errorf("invalid host: %s", parsedURL.Host)
	}
	return nil
}

func cacheKey(mermaidCode string) string {
	sum := sha256.Sum256([]byte(mermaidCode))
	return hex.EncodeToString(sum[:])
}

// ClearCache clears all cached diagrams
func (r *Renderer) ClearCache() {
	if r.cache == nil {
		return
	}
	r.cache.Clear()
	r.logger.Info("Diagram cache cleared")
}

// Close releases the cache goroutines
func (r *Renderer) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}

// GetCacheStats returns statistics about the cache
func (r *Renderer) GetCacheStats() map[string]interface{} {
	stats := map[string]interface{}{
		"enabled":         r.cache != nil,
		"max_entries":     r.config.MaxCacheEntries,
		"expiry_duration": r.config.CacheExpiry.String(),
	}
	if r.cache != nil && r.cache.Metrics != nil {
		stats["hits"] = r.cache.Metrics.Hits()
		stats["misses"] = r.cache.Metrics.Misses()
		stats["keys_added"] = r.cache.Metrics.KeysAdded()
	}
	return stats
}

// TestConnection tests the connection to the mermaid.ink API
func (r *Renderer) TestConnection(ctx context.Context) error {
	testDiagram := "graph TD\n    A[Test] --> B[Connection]"

	if _, err := r.renderDiagramViaAPI(ctx, testDiagram); err != nil {
		return fmt.Errorf("mermaid.ink API test failed: %w", err)
	}
	return nil
}

// RenderDiagramWithFallback renders a diagram, returning a text
// representation instead of an error when rendering fails.
func (r *Renderer) RenderDiagramWithFallback(ctx context.Context, mermaidCode string) (
	imageURL string, fallbackText string) {
	imageURL, err := r.RenderDiagram(ctx, mermaidCode)
	if err != nil {
		r.logger.Warn("Failed to render diagram, using fallback", zap.Error(err))
		return "", r.createFallbackText(mermaidCode)
	}
	return imageURL, ""
}

// createFallbackText creates a text representation of the diagram for fallback
func (r *Renderer) createFallbackText(mermaidCode string) string {
	var buffer bytes.Buffer
	buffer.WriteString("**Flowchart (Text Representation):**\n```mermaid\n")
	buffer.WriteString(StripFences(mermaidCode))
	buffer.WriteString("\n```\n")
	buffer.WriteString("*Note: Diagram rendering is temporarily unavailable. Please see the text representation above.*")
	return buffer.String()
}
