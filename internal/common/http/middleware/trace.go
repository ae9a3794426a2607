package middleware

import (
	"context"
	"strings"

	"codeexec/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDHeader   = "X-Trace-Id"
	RequestIDHeader = "X-Request-Id"

	// Longer incoming ids are replaced rather than echoed into logs.
	maxIDLength = 128
)

// TraceContextMiddleware puts trace and request ids into the request context
// and echoes them in response headers. Missing ids are generated.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := incomingID(c, TraceIDHeader)
		c.Set(string(contextkey.TraceID), traceID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		c.Writer.Header().Set(TraceIDHeader, traceID)

		requestID := incomingID(c, RequestIDHeader)
		c.Set(string(contextkey.RequestID), requestID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func incomingID(c *gin.Context, header string) string {
	id := strings.TrimSpace(c.GetHeader(header))
	if id == "" || len(id) > maxIDLength {
		return uuid.NewString()
	}
	return id
}
