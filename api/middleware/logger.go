package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/internal/metrics"
	"github.com/yourusername/fundl-go/pkg/logger"
)

// Logger logs every request and counts it per route. 5xx responses also go
// to the error category log.
func Logger(log *zap.Logger, multiLogger *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, statusClass(status)).Inc()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("took", time.Since(started)),
		}
		// websocket upgrades stay open for the lifetime of the stream
		if c.IsWebsocket() {
			log.Debug("API stream closed", fields...)
			return
		}
		log.Info("API request", fields...)

		if status >= 500 {
			multiLogger.LogAppError("API request failed",
				append(fields, zap.Strings("errors", c.Errors.Errors()))...)
		}
	}
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
