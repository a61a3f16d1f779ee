// cmd/server/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Corphon/JadeCompass/internal/app"
	"github.com/Corphon/JadeCompass/internal/config"
	"github.com/Corphon/JadeCompass/internal/utils"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	logger := utils.GetLogger()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	// 等待中断信号以进行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received signal", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", map[string]interface{}{"error": err})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		logger.Error("shutdown incomplete", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	logger.Info("server stopped gracefully", nil)
}
