// Package handlers provides HTTP handler implementations for the relay API.
//
// This file defines the standard response utilities used across all endpoints.
// Every body carries a boolean `success`; failures add a stable `code` and a
// message, successes add the endpoint's fields at the top level.
//
// Example error response:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "success": false,
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_request",
//	  "message": "terminal_id is required"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "changes_received": 1, "latest_version": 11 }
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pos-sync/internal/http/middleware"
	"github.com/tbourn/pos-sync/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Always false
	Success bool `json:"success" example:"false"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"invalid_request"`
	// Human-readable message
	Message string `json:"message" example:"terminal_id is required"`
}

// fail aborts the request with a structured error and logs server-side errors
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		Success:   false,
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failService maps a service error onto the envelope. Validation failures
// are 400; storage failures are 503 so terminals treat them as retryable.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		fail(c, http.StatusBadRequest, ErrCodeInvalidRequest, trimSentinel(err, services.ErrInvalidRequest))
	case errors.Is(err, services.ErrStorage):
		_ = c.Error(err)
		fail(c, http.StatusServiceUnavailable, ErrCodeStorage, "relay storage unavailable, retry later")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// trimSentinel drops the "<sentinel>: " prefix added by fmt.Errorf wrapping.
func trimSentinel(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
