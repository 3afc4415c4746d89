package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/simp-lee/logger"
)

const (
	requestIDHeader     = "X-Request-ID"
	requestIDContextKey = "request_id"
)

// RequestIDConfig controls request-id reuse behavior.
type RequestIDConfig struct {
	// TrustUpstream reuses an incoming X-Request-ID when it is a UUID.
	TrustUpstream bool
}

// RequestID assigns a fresh UUID to every request.
func RequestID() gin.HandlerFunc {
	return RequestIDWithConfig(RequestIDConfig{})
}

// RequestIDWithConfig returns a gin middleware that assigns request IDs. The
// id is stored in the gin context, echoed in the X-Request-ID response
// header, and attached to the request context so every log line written
// with it carries request_id.
func RequestIDWithConfig(cfg RequestIDConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := "", false
		if cfg.TrustUpstream {
			id, ok = upstreamRequestID(c.GetHeader(requestIDHeader))
		}
		if !ok {
			id = uuid.NewString()
		}

		c.Set(requestIDContextKey, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(
			logger.WithContextAttrs(c.Request.Context(), slog.String(requestIDContextKey, id)),
		)

		c.Next()
	}
}

// upstreamRequestID returns the canonical form of header if it parses as a UUID.
func upstreamRequestID(header string) (string, bool) {
	if header == "" || len(header) > 64 {
		return "", false
	}
	u, err := uuid.Parse(header)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// GetRequestID extracts the request ID from the gin.Context.
// Returns an empty string if no request ID is set.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}
