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

// Package health reports which AI providers the gateway can reach
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/resilience"
)

const (
	// StatusHealthy represents healthy status
	StatusHealthy = "healthy"
	// StatusUnhealthy represents unhealthy status
	StatusUnhealthy = "unhealthy"
	// StatusDegraded represents degraded status
	StatusDegraded = "degraded"
	// DefaultTimeout is the default timeout for health checks
	DefaultTimeout = 5 * time.Second
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Status    string         `json:"status"`
	Latency   time.Duration  `json:"latency"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Response represents the complete health check response
type Response struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	Dependencies map[string]CheckResult `json:"dependencies"`
	Metadata     map[string]any         `json:"metadata"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Checker checks one dependency
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc is a function adapter for the Checker interface
type CheckerFunc func(ctx context.Context) CheckResult

// Check implements the Checker interface
func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Manager runs the registered checkers
type Manager struct {
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration
	logger      *zap.Logger

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewManager creates a new health check manager
func NewManager(serviceName, version string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		checkers:    make(map[string]Checker),
		timeout:     DefaultTimeout,
		logger:      logger,
	}
}

// SetTimeout sets the timeout for a full round of checks
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// AddChecker registers checker under name, replacing any previous one
func (m *Manager) AddChecker(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// Check runs every checker concurrently. Any unhealthy dependency makes the
// service unhealthy; a degraded one only degrades it.
func (m *Manager) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.RLock()
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	var (
		wg           sync.WaitGroup
		resultsMu    sync.Mutex
		dependencies = make(map[string]CheckResult, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			start := time.Now()
			result := checker.Check(ctx)
			result.Latency = time.Since(start)
			result.Timestamp = time.Now()

			resultsMu.Lock()
			dependencies[name] = result
			resultsMu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	overallStatus := StatusHealthy
	for name, result := range dependencies {
		switch result.Status {
		case StatusUnhealthy:
			overallStatus = StatusUnhealthy
			m.logger.Warn("Dependency unhealthy", zap.String("dependency", name), zap.String("error", result.Error))
		case StatusDegraded:
			if overallStatus != StatusUnhealthy {
				overallStatus = StatusDegraded
			}
		}
	}

	return Response{
		Status:       overallStatus,
		Service:      m.serviceName,
		Version:      m.version,
		Uptime:       time.Since(m.startTime).Round(time.Second).String(),
		Dependencies: dependencies,
		Metadata: map[string]any{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
		Timestamp: time.Now(),
	}
}

// Handler serves the health report. Degraded still answers 200.
func (m *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := m.Check(c.Request.Context())

		statusCode := http.StatusOK
		if result.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, result)
	}
}

// ProviderKeyChecker reports whether a provider's API key is configured.
// A missing key only degrades the service: the routes that need it fail
// on their own while the rest keep working.
func ProviderKeyChecker(envVar string, configured bool) Checker {
	return CheckerFunc(func(context.Context) CheckResult {
		if !configured {
			return CheckResult{
				Status:   StatusDegraded,
				Error:    fmt.Sprintf("%s is not set", envVar),
				Metadata: map[string]any{"env": envVar},
			}
		}
		return CheckResult{
			Status:   StatusHealthy,
			Metadata: map[string]any{"env": envVar},
		}
	})
}

// ExternalServiceChecker wraps a reachability probe. Timeouts and
// retryable provider errors degrade; anything else is unhealthy.
func ExternalServiceChecker(name string, probe func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := probe(ctx); err != nil {
			status := StatusUnhealthy
			if isTemporary(err) {
				status = StatusDegraded
			}
			return CheckResult{
				Status: status,
				Error:  fmt.Sprintf("%s check failed: %v", name, err),
			}
		}
		return CheckResult{
			Status:   StatusHealthy,
			Metadata: map[string]any{"service": name},
		}
	})
}

func isTemporary(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || resilience.IsRetryable(err) || resilience.IsTimeout(err)
}
