package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/showclipro/showclipro/api/router"
	"github.com/showclipro/showclipro/internal/config"
	"github.com/showclipro/showclipro/internal/database"
	"github.com/showclipro/showclipro/internal/service"
	"github.com/showclipro/showclipro/pkg/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting Show CLI Pro Server", "version", "1.0.0")
	logger.Info("Runner configured",
		"max_workers", cfg.Runner.MaxWorkers,
		"output_dir", cfg.Runner.OutputDir,
		"command_timeout", cfg.Runner.CommandTimeout,
	)

	// 初始化数据库（可选，启用后才有运行历史）
	var historyStore *service.HistoryStore
	if cfg.Database.SQLite.Enabled {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			logger.Fatal("Failed to initialize database", "error", err)
		}
		defer database.Close()

		historyStore, err = service.NewHistoryStore()
		if err != nil {
			logger.Fatal("Failed to initialize history store", "error", err)
		}
	}

	// 创建批量执行服务
	runnerService := service.NewRunnerService(cfg)
	if historyStore != nil {
		runnerService.SetHistory(historyStore)
	}

	// 设置路由
	r := router.SetupRouter(runnerService, historyStore)

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	// 启动服务器
	go func() {
		logger.Info("Server starting", "addr", server.Addr, "mode", cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// 配置文件监听与热更新
	go func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("Config watch init failed", "error", err)
			return
		}
		defer watcher.Close()
		path := "configs/config.yaml"
		if _, err := os.Stat(path); err != nil {
			logger.Warn("Config file not found, skip watch", "path", path)
			return
		}
		if err := watcher.Add(path); err != nil {
			logger.Warn("Config watch add failed", "error", err)
			return
		}
		var debounce *time.Timer
		debounceInterval := 300 * time.Millisecond
		trigger := func() {
			newCfg, err := config.Load(path)
			if err != nil {
				logger.Warn("Config reload failed", "error", err)
				return
			}
			// 原地覆盖，保持指针不变
			*cfg = *newCfg
			// 刷新日志配置
			_ = logger.Init(logger.Config{
				Level:      cfg.Log.Level,
				Format:     cfg.Log.Format,
				Output:     cfg.Log.Output,
				FilePath:   cfg.Log.FilePath,
				MaxSize:    cfg.Log.MaxSize,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAge:     cfg.Log.MaxAge,
				Compress:   cfg.Log.Compress,
			})
			logger.Info("Config reloaded",
				"max_workers", cfg.Runner.MaxWorkers,
				"command_timeout", cfg.Runner.CommandTimeout,
			)
		}
		for {
			select {
			case ev := <-watcher.Events:
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if debounce != nil {
						debounce.Stop()
					}
					debounce = time.AfterFunc(debounceInterval, trigger)
				}
			case err := <-watcher.Errors:
				logger.Warn("Config watch error", "error", err)
			}
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")

	// 优雅关闭服务器
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	} else {
		logger.Info("Server shutdown complete")
	}
}
