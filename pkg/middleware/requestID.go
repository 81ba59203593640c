package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"teamtoken.com/pkg/common"
	"teamtoken.com/pkg/logger"
)

// RequestID 放在 otelgin 之后，request id 挂到 span 上方便从日志反查链路
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := common.RequestIDFromHeader(c.GetHeader(common.HeaderRequestID))
		c.Set(common.CtxKeyRequestID, rid)
		c.Header(common.HeaderRequestID, rid)

		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.SetAttributes(attribute.String("http.request_id", rid))
		} else {
			// 没有 span 的时候日志用 request id 串起来
			ctx = context.WithValue(ctx, logger.TraceIdKey, rid)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
