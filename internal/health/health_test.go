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

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/resilience"
)

func fixed(status string) Checker {
	return CheckerFunc(func(context.Context) CheckResult {
		return CheckResult{Status: status}
	})
}

func TestManager_Check(t *testing.T) {
	manager := NewManager("ai-demo-gateway", "1.0.0", zap.NewNop())
	manager.AddChecker("healthy", fixed(StatusHealthy))
	manager.AddChecker("unhealthy", CheckerFunc(func(context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Error: "service is down"}
	}))

	result := manager.Check(context.Background())

	if result.Status != StatusUnhealthy {
		t.Errorf("Expected status to be unhealthy, got %s", result.Status)
	}
	if result.Service != "ai-demo-gateway" || result.Version != "1.0.0" {
		t.Errorf("Unexpected service identity: %s %s", result.Service, result.Version)
	}
	if len(result.Dependencies) != 2 {
		t.Fatalf("Expected 2 dependencies, got %d", len(result.Dependencies))
	}
	if got := result.Dependencies["unhealthy"].Error; got != "service is down" {
		t.Errorf("Expected dependency error to be kept, got %q", got)
	}
	if result.Dependencies["healthy"].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}
}

func TestManager_CheckStatusRollup(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"no dependencies", nil, StatusHealthy},
		{"all healthy", []string{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []string{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []string{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager("svc", "v", nil)
			for i, s := range tt.statuses {
				manager.AddChecker(string(rune('a'+i)), fixed(s))
			}
			if got := manager.Check(context.Background()).Status; got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestManager_CheckTimeout(t *testing.T) {
	manager := NewManager("svc", "v", nil)
	manager.SetTimeout(20 * time.Millisecond)
	manager.AddChecker("slow", ExternalServiceChecker("mermaid.ink", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	result := manager.Check(context.Background())
	if time.Since(start) > time.Second {
		t.Error("Check should respect the manager timeout")
	}
	if result.Dependencies["slow"].Status != StatusDegraded {
		t.Errorf("Expected a timed out probe to degrade, got %s", result.Dependencies["slow"].Status)
	}
}

func TestProviderKeyChecker(t *testing.T) {
	result := ProviderKeyChecker("CLAUDE_API_KEY", true).Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}

	result = ProviderKeyChecker("CARTESIA_API_KEY", false).Check(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", result.Status)
	}
	if result.Error != "CARTESIA_API_KEY is not set" {
		t.Errorf("Unexpected error: %s", result.Error)
	}
}

func TestExternalServiceChecker(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"reachable", nil, StatusHealthy},
		{"rate limited", &resilience.RetryableError{Provider: "groq", StatusCode: 429}, StatusDegraded},
		{"deadline", context.DeadlineExceeded, StatusDegraded},
		{"broken", errors.New("unexpected status code: 404"), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := ExternalServiceChecker("mermaid.ink", func(context.Context) error { return tt.err })
			if got := checker.Check(context.Background()).Status; got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestManager_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		status     string
		wantStatus int
	}{
		{"healthy", StatusHealthy, http.StatusOK},
		{"degraded", StatusDegraded, http.StatusOK},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager("svc", "v", nil)
			manager.AddChecker("dep", fixed(tt.status))

			router := gin.New()
			router.GET("/health", manager.Handler())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Status != tt.status {
				t.Errorf("Expected body status %s, got %s", tt.status, body.Status)
			}
		})
	}
}
