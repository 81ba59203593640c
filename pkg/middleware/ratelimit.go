package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"teamtoken.com/pkg/common"
	"teamtoken.com/pkg/logger"
	"teamtoken.com/pkg/metrics"
	"teamtoken.com/pkg/ratelimit"
)

const codeTooManyRequests = 4290

func RateLimit(service string, store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			// 限流属于"可控拒绝"，不要打堆栈（压测会炸日志）
			logger.Warn(c.Request.Context(), "http rate limited",
				zap.String("request_id", common.RequestIDFromGin(c)),
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			metrics.HTTPRateLimitedTotal.WithLabelValues(service, route).Inc()
			common.Fail(c, http.StatusTooManyRequests, codeTooManyRequests, "请求过于频繁")
			c.Abort()
			return
		}
		c.Next()
	}
}
