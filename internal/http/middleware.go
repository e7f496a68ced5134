package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sahana/importer/internal/logging"
)

// RequestLogger attaches a trace id to the request context and logs each
// request once it has been served.
func RequestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		trace := uuid.NewString()
		ctx := logger.WithValue(c.Request.Context(),
			zap.String("trace", trace),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-Id", trace)

		started := time.Now()
		c.Next()

		log := logger.WithContext(ctx)
		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(started)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= 500 {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}
