package wire

import (
	"database/sql"

	"log/slog"

	"github.com/icsys/backend/internal/application/orchestrator"
	"github.com/icsys/backend/internal/application/sensor"
	"github.com/icsys/backend/internal/infrastructure/config"
	"github.com/icsys/backend/internal/infrastructure/kvstore"
	applog "github.com/icsys/backend/internal/infrastructure/log"
	"github.com/icsys/backend/internal/infrastructure/websocket"
	"github.com/icsys/backend/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *interfaces.HTTPServer

	wsHub         *websocket.Hub
	orchestrator  *orchestrator.Orchestrator
	fileWatcher   *sensor.FileWatcher
	subscriptions *sensor.SubscriptionManager
	pollers       *sensor.APIPoller

	kv     *kvstore.Store
	db     *sql.DB
	cfg    *config.Config
	logger *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	wsHub *websocket.Hub,
	orch *orchestrator.Orchestrator,
	fileWatcher *sensor.FileWatcher,
	subscriptions *sensor.SubscriptionManager,
	pollers *sensor.APIPoller,
	kv *kvstore.Store,
	db *sql.DB,
	cfg *config.Config,
) *App {
	return &App{
		HTTPServer:    httpServer,
		wsHub:         wsHub,
		orchestrator:  orch,
		fileWatcher:   fileWatcher,
		subscriptions: subscriptions,
		pollers:       pollers,
		kv:            kv,
		db:            db,
		cfg:           cfg,
		logger:        applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting intelligent context backend")

	// 启动任务超时巡检
	a.orchestrator.StartTimeoutMonitor()

	// 启动文件监听
	if a.fileWatcher != nil {
		if err := a.fileWatcher.Start(a.cfg.Sensors.WatchPaths); err != nil {
			a.logger.Error("Failed to start file watcher",
				"error", err,
			)
		}
	}

	// 恢复持久化的订阅和轮询器
	if err := a.subscriptions.Start(); err != nil {
		a.logger.Error("Failed to start subscription manager",
			"error", err,
		)
	}
	if err := a.pollers.Start(); err != nil {
		a.logger.Error("Failed to start api poller",
			"error", err,
		)
	}

	// 启动 HTTP 服务器（goroutine）
	go func() {
		if err := a.HTTPServer.Start(); err != nil {
			a.logger.Error("Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	a.logger.Info("Intelligent context backend started successfully")
	return nil
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping intelligent context backend")

	// 停止入站处理链路：超时巡检、传感器、连接
	a.orchestrator.Stop()
	if a.fileWatcher != nil {
		a.fileWatcher.Stop()
	}
	a.subscriptions.Stop()
	a.pollers.Stop()
	a.wsHub.Close()

	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
		return err
	}

	// 关闭存储
	if err := a.kv.Close(); err != nil {
		a.logger.Error("Failed to close kv store",
			"error", err,
		)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database connection",
				"error", err,
			)
			return err
		}
	}

	a.logger.Info("Intelligent context backend stopped successfully")
	return nil
}
