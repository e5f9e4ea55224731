package middleware

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/utils"
)

// RequestLogger writes one entry per request. Handlers report failures with
// c.Error and privileged endpoints name themselves under the "action" key.
func RequestLogger(l *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)
		c.Set("request_id", reqID)

		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
			"user_id":    c.GetString("user_id"),
		}
		if action := c.GetString("action"); action != "" {
			fields["action"] = action
		}

		level := logrus.InfoLevel
		switch {
		case status >= 500:
			level = logrus.ErrorLevel
		case status >= 400:
			level = logrus.WarnLevel
		}

		// privileged failures all answer 400, so the error code decides
		// whether the entry is an error
		if last := c.Errors.Last(); last != nil {
			code := utils.CodeOf(last.Err)
			fields["code"] = code
			var ae *utils.AppError
			if errors.As(last.Err, &ae) && ae.Op != "" {
				fields["op"] = ae.Op
			}
			fields["errors"] = c.Errors.String()
			if code == utils.CodeInternal || code == utils.CodeUnavailable {
				level = logrus.ErrorLevel
			}
		}

		l.WithFields(fields).Log(level, "request")
	}
}
