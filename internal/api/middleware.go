package api

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID assigns every request an id, reusing the caller's when given
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID returns the id RequestID stored on the context
func GetRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDKey)
}

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// RequestLogger logs one record per request. Successful health and metrics
// probes are skipped.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest && isProbePath(path) {
			return
		}

		fields := []any{
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(startedAt),
			"bytes", c.Writer.Size(),
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

func isProbePath(path string) bool {
	return path == "/health" || path == "/metrics"
}
