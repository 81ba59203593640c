package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"teamtoken.com/pkg/middleware"
	"teamtoken.com/pkg/ratelimit"
)

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewEngine 挂中间件和路由；store 为空则不限流
func NewEngine(service string, h *TradeHandler, store *ratelimit.Store) *gin.Engine {
	r := gin.New()
	// 监控
	p := ginprom.NewPrometheus("teamtoken")
	p.Use(r)
	mws := []gin.HandlerFunc{
		otelgin.Middleware(service),
		middleware.RequestID(),
		cors.Default(),
		middleware.Recover(),
	}
	if store != nil {
		mws = append(mws, middleware.RateLimit(service, store))
	}
	r.Use(mws...)

	r.GET("/healthz", h.Health)
	api := r.Group("/api")
	Trade(api, h)
	return r
}

func Trade(api *gin.RouterGroup, h *TradeHandler) {
	trade := api.Group("/trade")
	{
		trade.POST("/preview", h.Preview)
		trade.POST("/submit", h.Submit)
		trade.GET("/state", h.State)
		trade.POST("/reset", h.Reset)
		trade.GET("/events", h.Events)
	}
}

func NewServer(c ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           c.Addr,
		Handler:        handler,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout, // SSE 长连接受它限制，配置里给 0 表示不限
		MaxHeaderBytes: 1 << 20,
	}
}
