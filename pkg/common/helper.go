package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"teamtoken.com/pkg/logger"
	"teamtoken.com/pkg/xerr"
)

// 定义http返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailFromErr 业务码 -> HTTP 状态，对外只给 code + message，细节写日志
func FailFromErr(c *gin.Context, err error) {
	code := xerr.CodeOf(err)
	status := HTTPStatus(code)
	msg := xerr.MapErrMsg(code)
	var ce *xerr.CodeError
	if errors.As(err, &ce) && status < http.StatusInternalServerError {
		// 4xx 的说明可以给调用方看
		msg = ce.Msg
	}

	fields := []zap.Field{
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "http error", fields...)
	} else {
		logger.Warn(c.Request.Context(), "http error", fields...)
	}
	Fail(c, status, code, msg)
}

func HTTPStatus(code int) int {
	switch code {
	case xerr.RequestParamsError, xerr.TradeInvalidRequest, xerr.TradeAmountOverflow:
		return http.StatusBadRequest
	case xerr.RecordNotFound:
		return http.StatusNotFound
	case xerr.TradeAttemptInProgress:
		return http.StatusConflict
	case xerr.TradeSignerRejected, xerr.TradeBroadcastRejected, xerr.TradeStaleReference, xerr.TradeChainUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
