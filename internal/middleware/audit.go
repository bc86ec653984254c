package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Audit logs every successful write to a collection record after the handler ran.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		viewerID := ""
		if viewer := ViewerFromContext(c); viewer != nil {
			viewerID = viewer.ID
		}
		logger.Info("audit",
			zap.String("action", action),
			zap.String("viewer_id", viewerID),
			zap.String("collection", c.Param("collection")),
			zap.String("record_id", c.Param("id")),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.GetHeader("User-Agent")),
		)
	}
}
