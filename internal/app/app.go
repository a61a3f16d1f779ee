// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/JadeCompass/internal/api"
	"github.com/Corphon/JadeCompass/internal/config"
	"github.com/Corphon/JadeCompass/internal/game"
	"github.com/Corphon/JadeCompass/internal/llm"
	_ "github.com/Corphon/JadeCompass/internal/llm/providers" // 注册全部供应商后端
	"github.com/Corphon/JadeCompass/internal/storage"
	"github.com/Corphon/JadeCompass/internal/telemetry"
	"github.com/Corphon/JadeCompass/internal/utils"
)

const (
	sweepInterval     = time.Minute
	rateLimitInterval = 10 * time.Minute
)

// Server HTTP服务器接口，便于测试替换
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 持有所有运行期组件
type App struct {
	Config      *config.Config
	Router      *gin.Engine
	Handler     *api.Handler
	Sessions    *storage.MemoryStore[*game.Session]
	WebSockets  *api.WebSocketManager
	Diagnostics *llm.DiagnosticLog
	Metrics     *utils.MetricsCollector

	server        Server
	limiter       *api.RateLimiter
	stopTelemetry telemetry.ShutdownFunc
	cancelWorkers context.CancelFunc
	workers       sync.WaitGroup
	shutdownOnce  sync.Once
}

// New 按配置组装应用，不开始监听
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if err := utils.InitLogger(utils.LoggerConfig{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: cfg.LogOutput,
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	logger := utils.GetLogger()

	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	stopTelemetry, err := telemetry.Setup(context.Background(), cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("初始化链路追踪失败: %w", err)
	}

	a := &App{
		Config:        cfg,
		Metrics:       utils.NewMetricsCollector(),
		limiter:       api.NewRateLimiter(),
		stopTelemetry: stopTelemetry,
	}
	a.WebSockets = api.NewWebSocketManager(a.Metrics)

	// 诊断日志只在调试模式下保存正文并开放接口
	var events llm.EventLogger = llm.NopEventLogger{}
	if cfg.DebugMode {
		a.Diagnostics = llm.NewDiagnosticLog(llm.DefaultDiagnosticCapacity, true)
		events = a.Diagnostics
	}

	factory := llm.NewFactory(llm.DefaultCatalog(),
		llm.WithEventLogger(events),
		llm.WithMetrics(a.Metrics),
		llm.WithRequestTimeout(cfg.LLMRequestTimeout),
		llm.WithDefaultProvider(cfg.DefaultProvider),
	)
	if _, ok := factory.Catalog().Lookup(cfg.DefaultProvider); !ok {
		return nil, fmt.Errorf("DEFAULT_PROVIDER 不在提供者目录中: %q", cfg.DefaultProvider)
	}

	a.Sessions = storage.NewMemoryStore[*game.Session](cfg.MaxSessions, cfg.SessionTTL,
		storage.WithEvictHook(a.onSessionEvicted),
	)

	a.Handler = &api.Handler{
		Factory:         factory,
		Sessions:        a.Sessions,
		WebSockets:      a.WebSockets,
		Diagnostics:     a.Diagnostics,
		Metrics:         a.Metrics,
		ProviderKeys:    cfg.ProviderKeys(),
		DefaultProvider: cfg.DefaultProvider,
	}
	a.Router = api.NewRouter(a.Handler, api.RouterOptions{
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		StartRateLimit:  cfg.StartRateLimit,
		StartRateWindow: cfg.StartRateWindow,
		RateLimiter:     a.limiter,
		Metrics:         a.Metrics,
	})
	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("application initialized", map[string]interface{}{
		"port":             cfg.Port,
		"debug":            cfg.DebugMode,
		"default_provider": cfg.DefaultProvider,
		"env_keys":         len(a.Handler.ProviderKeys),
		"tracing":          cfg.OTLPEndpoint != "",
	})
	return a, nil
}

// onSessionEvicted 过期或被淘汰的会话：断开推送并释放故事
func (a *App) onSessionEvicted(id string, session *game.Session) {
	session.Reset()
	a.WebSockets.CloseSession(id)
	a.Metrics.SetActiveSessions(a.Sessions.Len())

	utils.GetLogger().Debug("session evicted", map[string]interface{}{"session_id": id})
}

// startWorkers 启动会话清理与限流记录清理
func (a *App) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelWorkers = cancel

	a.workers.Add(2)
	go func() {
		defer a.workers.Done()
		a.Sessions.Run(ctx, sweepInterval)
	}()
	go func() {
		defer a.workers.Done()
		a.limiter.Run(ctx, rateLimitInterval)
	}()
}

// Run 开始监听，直到 Shutdown 被调用
func (a *App) Run() error {
	a.startWorkers()

	utils.GetLogger().Info("server listening", map[string]interface{}{"port": a.Config.Port})
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("启动服务器失败: %w", err)
	}
	return nil
}

// Shutdown 依次关闭HTTP服务器、推送连接、后台任务与链路追踪
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.shutdownOnce.Do(func() {
		logger := utils.GetLogger()
		logger.Info("shutting down", nil)

		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("关闭HTTP服务器失败: %w", err))
		}
		a.WebSockets.Shutdown()

		if a.cancelWorkers != nil {
			a.cancelWorkers()
		}
		a.workers.Wait()
		a.Sessions.Clear()

		if err := a.stopTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("关闭链路追踪失败: %w", err))
		}
		_ = logger.Sync()
	})
	return errors.Join(errs...)
}
