package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDContextKey = "request_id"
	requestIDHeader     = "X-Request-ID"
	maxRequestIDLength  = 64
)

// RequestIDFromContext returns the id RequestIDMiddleware assigned, or "".
func RequestIDFromContext(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}

// RequestIDMiddleware reuses the caller's X-Request-ID when it is a plain
// token and otherwise assigns a fresh uuid. The id is echoed back.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := acceptRequestID(c.GetHeader(requestIDHeader))
		if !ok {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// acceptRequestID allows letters, digits, '-', '_' and '.' only, so ids are
// safe to print in key=value log lines.
func acceptRequestID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxRequestIDLength {
		return "", false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return "", false
		}
	}
	return id, true
}
