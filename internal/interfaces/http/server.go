package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/icsys/backend/internal/infrastructure/config"
	"github.com/icsys/backend/internal/infrastructure/log"
	"github.com/icsys/backend/internal/interfaces/http/handler"
	"github.com/icsys/backend/internal/interfaces/ws"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/icsys/backend/docs" // Swagger docs
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	sessionHandler *handler.SessionHandler,
	graphHandler *handler.GraphHandler,
	intentHandler *handler.IntentHandler,
	sensorHandler *handler.SensorHandler,
	statsHandler *handler.StatsHandler,
	gateway *ws.Gateway,
	cfg *config.Config,
) *HTTPServer {
	router := gin.Default()

	logger := log.NewModuleLogger("http", "server")

	// 注册路由
	api := router.Group("/api/v1")
	{
		// 会话相关路由
		api.GET("/sessions", sessionHandler.List)
		api.GET("/sessions/:sessionId", sessionHandler.Detail)
		api.GET("/sessions/:sessionId/messages", sessionHandler.Messages)
		api.PUT("/sessions/:sessionId/messages/:messageId/edit", sessionHandler.EditMessage)

		// 画布相关路由
		api.GET("/sessions/:sessionId/graph", graphHandler.Get)
		api.POST("/sessions/:sessionId/graph", graphHandler.Save)
		api.PUT("/sessions/:sessionId/graph/nodes/:nodeId/position", graphHandler.UpdateNodePosition)

		// 意图相关路由
		api.GET("/sessions/:sessionId/intents", intentHandler.ListBySession)
		api.GET("/intents/:intentId", intentHandler.Get)
		api.GET("/intents/:intentId/context-spec", intentHandler.GetContextSpec)
		api.GET("/intents/:intentId/context", intentHandler.GetContext)

		// 传感器相关路由
		api.GET("/subscriptions", sensorHandler.ListSubscriptions)
		api.POST("/subscriptions", sensorHandler.AddSubscription)
		api.DELETE("/subscriptions/:id", sensorHandler.RemoveSubscription)
		api.POST("/pollers", sensorHandler.AddPoller)
		api.DELETE("/pollers/:id", sensorHandler.RemovePoller)
		api.POST("/watch-paths", sensorHandler.AddWatchPath)
		api.GET("/events", sensorHandler.RecentEvents)

		// 统计相关路由
		api.GET("/stats/runtime", statsHandler.Runtime)
	}

	// WebSocket 入口
	router.GET("/ws", gateway.HandleConnection)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return &HTTPServer{
		router:   router,
		httpPort: cfg.Server.HTTPPort,
		logger:   logger,
	}
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    s.httpPort,
		Handler: s.router,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
