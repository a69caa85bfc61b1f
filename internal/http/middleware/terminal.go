// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the calling terminal. Terminals identify themselves with
// the X-Terminal-ID header; pull requests may carry terminal_id as a query
// parameter instead. The value is stashed in the Gin context under
// "terminalID" for the idempotency validator, the rate limiter and handlers.
package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderTerminalID carries the relay-assigned terminal id.
const HeaderTerminalID = "X-Terminal-ID"

const ctxKeyTerminalID = "terminalID"

// TerminalIdentity stores the caller's terminal id in the context when the
// header or the terminal_id query parameter holds a positive integer.
// Requests without one pass through untouched.
func TerminalIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTerminalID))
		if raw == "" {
			raw = strings.TrimSpace(c.Query("terminal_id"))
		}
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			c.Set(ctxKeyTerminalID, raw)
		}
		c.Next()
	}
}

// TerminalIDFrom returns the terminal id set by TerminalIdentity, or "".
func TerminalIDFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyTerminalID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
