package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

func resolveRequestID(r *http.Request) string {
	for _, header := range []string{"X-Request-Id", "X-Log-Id", "X-Correlation-Id"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return uuid.NewString()
}

// loggingMiddleware tags every request with an id, logs it and records its
// latency. Routes are reported by pattern so ids in paths do not explode
// metric cardinality.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := resolveRequestID(c.Request)
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		s.logger.Info("[%s] %s %s from %s", id, c.Request.Method, c.Request.URL.Path, c.ClientIP())

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics().RecordHTTPRequest(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
