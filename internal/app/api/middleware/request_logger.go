package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/pkg/logctx"
)

// RequestLoggerMiddleware attaches a request-scoped logger enriched with
// trace_id to gin.Context and request context.
func RequestLoggerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLogger := base
		if traceID := c.GetString(logctx.GinTraceIDKey); traceID != "" {
			reqLogger = base.With("trace_id", traceID)
		}
		setLogger(c, reqLogger)
		c.Next()
	}
}

func setLogger(c *gin.Context, lg *zap.SugaredLogger) {
	c.Set(logctx.GinLoggerKey, lg)
	c.Request = c.Request.WithContext(logctx.WithLogger(c.Request.Context(), lg))
}
