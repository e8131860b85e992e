package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/internal/metrics"
	"github.com/yourusername/fundl-go/pkg/logger"
)

// Recovery turns a handler panic into a 500 so the queue keeps running
// behind the API.
func Recovery(log *zap.Logger, multiLogger *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			metrics.HTTPPanics.Inc()
			log.Error("API handler panicked", zap.Any("panic", recovered), zap.String("route", c.FullPath()))
			multiLogger.LogAppError("API handler panicked",
				zap.Any("panic", recovered),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}()
		c.Next()
	}
}
