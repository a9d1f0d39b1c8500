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

package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response format across all routes
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorCode represents standard error codes used across the system
type ErrorCode string

const (
	// Client errors (4xx)
	ErrorCodeBadRequest ErrorCode = "BAD_REQUEST"
	ErrorCodeNotFound   ErrorCode = "NOT_FOUND"

	// Server errors (5xx)
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeProviderError  ErrorCode = "PROVIDER_ERROR"
	ErrorCodeGatewayTimeout ErrorCode = "GATEWAY_TIMEOUT"
	ErrorCodeNotConfigured  ErrorCode = "NOT_CONFIGURED"
)

// ServiceError represents an error with additional context for proper handling
type ServiceError struct {
	Message    string
	Code       ErrorCode
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Internal
}

// ToErrorResponse converts a ServiceError to an ErrorResponse. Provider
// failures carry the upstream text in Details for diagnostics.
func (e *ServiceError) ToErrorResponse(requestID string) ErrorResponse {
	resp := ErrorResponse{
		Error:     e.Message,
		Code:      string(e.Code),
		RequestID: requestID,
		Timestamp: time.Now(),
	}
	if e.Internal != nil && e.StatusCode >= http.StatusInternalServerError {
		resp.Details = e.Internal.Error()
	}
	return resp
}

// NewServiceError creates a new ServiceError with the given parameters
func NewServiceError(message string, code ErrorCode, statusCode int, internal error) *ServiceError {
	return &ServiceError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeBadRequest, http.StatusBadRequest, internal)
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeInternalError, http.StatusInternalServerError, internal)
}

// NewProviderError creates an error for a failed upstream AI provider call
func NewProviderError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeProviderError, http.StatusInternalServerError, internal)
}

// NewGatewayTimeoutError creates an error for an upstream call that ran out of time
func NewGatewayTimeoutError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeGatewayTimeout, http.StatusGatewayTimeout, internal)
}

// NewNotConfiguredError reports a route whose provider credentials are missing
func NewNotConfiguredError(envVar string) *ServiceError {
	return NewServiceError(
		fmt.Sprintf("%s is not configured", envVar),
		ErrorCodeNotConfigured, http.StatusInternalServerError, nil)
}

// ErrorHandler converts arbitrary errors into ServiceErrors and logs them
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{logger: logger}
}

// WrapError wraps an error with a user-facing message and the matching error code
func (eh *ErrorHandler) WrapError(err error, operation string) *ServiceError {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	wrapped := classify(err, operation)

	if eh != nil {
		eh.logger.Error("Error occurred during operation",
			zap.String("operation", operation),
			zap.Error(err),
			zap.String("user_message", wrapped.Message),
			zap.String("error_code", string(wrapped.Code)))
	}

	return wrapped
}

// classify maps typed errors onto the route error taxonomy. Timeouts become
// 504; everything else that reached this point came from a provider or from
// the gateway itself and becomes 500. RetriesExhaustedError unwraps to the
// last attempt, so exhausted timeouts still map to 504.
func classify(err error, operation string) *ServiceError {
	switch {
	case IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return NewGatewayTimeoutError(
			fmt.Sprintf("The upstream provider did not respond in time while %s", operation), err)
	case IsRetryable(err):
		return NewProviderError(
			fmt.Sprintf("The upstream provider is unavailable while %s", operation), err)
	default:
		return NewProviderError(fmt.Sprintf("An error occurred while %s", operation), err)
	}
}

// LogError logs an error with appropriate context
func (eh *ErrorHandler) LogError(err error, operation string, fields ...zap.Field) {
	if err == nil || eh == nil || eh.logger == nil {
		return
	}

	logFields := []zap.Field{
		zap.String("operation", operation),
		zap.Error(err),
	}
	logFields = append(logFields, fields...)

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		logFields = append(logFields,
			zap.String("error_code", string(serviceErr.Code)),
			zap.Int("status_code", serviceErr.StatusCode))
	}

	eh.logger.Error("Operation failed", logFields...)
}
