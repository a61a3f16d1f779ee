// internal/api/router.go
package api

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Corphon/JadeCompass/internal/utils"
)

// RouterOptions 路由级配置
type RouterOptions struct {
	AllowedOrigins  []string
	StartRateLimit  int
	StartRateWindow time.Duration
	RateLimiter     *RateLimiter // 为 nil 时新建
	Metrics         *utils.MetricsCollector
}

// NewRouter 注册全部路由
func NewRouter(handler *Handler, opts RouterOptions) *gin.Engine {
	if handler.Response == nil {
		handler.Response = NewResponseHelper()
	}
	limiter := opts.RateLimiter
	if limiter == nil {
		limiter = NewRateLimiter()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	if opts.Metrics != nil {
		r.Use(MetricsMiddleware(opts.Metrics))
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.GET("/providers", handler.ListProviders)

		// ===============================
		// 会话相关路由
		// ===============================
		sessions := api.Group("/sessions")
		{
			sessions.POST("", handler.CreateSession)
			sessions.GET("/:id", handler.GetSession)
			sessions.DELETE("/:id", handler.DeleteSession)

			// 提供者配置
			sessions.GET("/:id/provider", handler.GetProvider)
			sessions.PUT("/:id/provider", handler.UpdateProvider)
			sessions.POST("/:id/provider/test", handler.TestProvider)

			// 游戏流程
			sessions.POST("/:id/start", limiter.ByIP(opts.StartRateLimit, opts.StartRateWindow), handler.StartGame)
			sessions.POST("/:id/choose", handler.Choose)
			sessions.GET("/:id/round", handler.CurrentRound)
			sessions.POST("/:id/reset", handler.ResetGame)

			sessions.GET("/:id/ws", handler.SessionWebSocket)
		}

		// ===============================
		// LLM诊断日志（仅调试模式）
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/logs", handler.GetLLMLogs)
			llmGroup.DELETE("/logs", handler.ClearLLMLogs)
			llmGroup.GET("/stats", handler.GetLLMStats)
		}

		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r
}

// corsConfig "*" 表示允许任意来源
func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}
