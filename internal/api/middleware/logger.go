package middleware

import (
	"net/http"
	"time"

	"mealie-organizer/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger 外掛伺服器的請求日誌中間件
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", requestid.Get(c)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		// 管理端點的拒絕（401/403）屬於正常流程，記警告即可
		switch {
		case status >= 500:
			common.LogError("外掛請求失敗", fields...)
		case status >= 400:
			common.LogWarn("外掛請求被拒", fields...)
		default:
			common.LogInfo("外掛請求完成", fields...)
		}
	}
}

// Recovery 恢復中間件，panic 時回傳與其他錯誤一致的 JSON 形狀
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				common.LogError("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":  "internal_error",
					"detail": "The plugin endpoint failed unexpectedly.",
				})
			}
		}()

		c.Next()
	}
}
