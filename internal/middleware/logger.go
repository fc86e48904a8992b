package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/live/internal/models"
)

// Logger returns a zap-based request logging middleware. Authenticated requests carry the
// caller's participant id; upgraded WebSocket requests are logged when the session ends.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		}
		if v, ok := c.Get(ContextIdentity); ok {
			if id, ok := v.(models.Identity); ok {
				fields = append(fields, zap.String("participant_id", id.ParticipantID), zap.String("role", string(id.Role)))
			}
		}
		if roomID := c.Param("id"); roomID != "" {
			fields = append(fields, zap.String("room_id", roomID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		msg := "request"
		// hijacked connections never set a status; the handler returns when the socket closes
		if c.IsWebsocket() && status < 300 {
			msg = "websocket session closed"
		}
		level := zapcore.InfoLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}
		if ce := logger.Check(level, msg); ce != nil {
			ce.Write(fields...)
		}
	}
}
