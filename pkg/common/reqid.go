package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = "request_id"

	maxRequestIDLen = 64
)

// RequestIDFromHeader 沿用上游传来的 id，空的、过长的或带控制字符的换成新的 uuid
// 这个值会原样进日志和响应头
func RequestIDFromHeader(h string) string {
	if h == "" || len(h) > maxRequestIDLen {
		return uuid.NewString()
	}
	for i := 0; i < len(h); i++ {
		if h[i] < 0x21 || h[i] > 0x7e {
			return uuid.NewString()
		}
	}
	return h
}

func RequestIDFromGin(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
