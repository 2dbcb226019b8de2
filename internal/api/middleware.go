package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spacesedan/mlapi/internal/logging"
)

const REQUEST_ID_HEADER = "X-Request-ID"

// RequestID reuses the caller's X-Request-ID or generates one, and stores it
// on both the gin context and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(REQUEST_ID_HEADER)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Header(REQUEST_ID_HEADER, requestID)

		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("request_id", c.GetString("request_id")),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}

		switch {
		case status >= 500:
			slog.Error("[HTTP] Request failed", attrs...)
		case status >= 400:
			slog.Warn("[HTTP] Request rejected", attrs...)
		default:
			slog.Info("[HTTP] Request completed", attrs...)
		}
	}
}
