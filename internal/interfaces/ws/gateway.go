package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/icsys/backend/internal/application/orchestrator"
	"github.com/icsys/backend/internal/application/sensor"
	"github.com/icsys/backend/internal/infrastructure/config"
	"github.com/icsys/backend/internal/infrastructure/log"
	"github.com/icsys/backend/internal/infrastructure/websocket"
)

// Gateway WebSocket 入站网关
// 每个连接分配独立的有界消息队列，读循环只做解析和入队，
// 处理在队列工作协程中异步执行，慢消息不会阻塞后续读取
type Gateway struct {
	hub           *websocket.Hub
	orch          *orchestrator.Orchestrator
	subscriptions *sensor.SubscriptionManager
	pollers       *sensor.APIPoller

	upgrader      gorillaws.Upgrader
	maxConcurrent int

	mu     sync.Mutex
	queues map[string]*websocket.MessageQueue

	logger *slog.Logger
}

// NewGateway 创建 WebSocket 网关
func NewGateway(
	hub *websocket.Hub,
	orch *orchestrator.Orchestrator,
	subscriptions *sensor.SubscriptionManager,
	pollers *sensor.APIPoller,
	cfg *config.Config,
) *Gateway {
	return &Gateway{
		hub:           hub,
		orch:          orch,
		subscriptions: subscriptions,
		pollers:       pollers,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  cfg.Server.ReadBufferSize,
			WriteBufferSize: cfg.Server.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		maxConcurrent: cfg.Pipeline.MaxConcurrentPerClient,
		queues:        make(map[string]*websocket.MessageQueue),
		logger:        log.NewModuleLogger("ws", "gateway"),
	}
}

// HandleConnection 处理 WebSocket 升级请求
func (g *Gateway) HandleConnection(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	clientID := uuid.NewString()
	connection := g.hub.Register(clientID, conn)

	queue := websocket.NewMessageQueue(g.maxConcurrent)
	g.mu.Lock()
	g.queues[clientID] = queue
	g.mu.Unlock()

	connection.Send(websocket.NewEnvelope("connected", map[string]any{
		"clientId":       clientID,
		"maxConcurrency": g.maxConcurrent,
	}))

	go g.readLoop(connection, conn, queue)
}

// QueueStats 返回各连接的消息队列统计
func (g *Gateway) QueueStats() map[string]websocket.QueueStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := make(map[string]websocket.QueueStats, len(g.queues))
	for clientID, queue := range g.queues {
		stats[clientID] = queue.Stats()
	}
	return stats
}

func (g *Gateway) readLoop(connection *websocket.Connection, conn *gorillaws.Conn, queue *websocket.MessageQueue) {
	clientID := connection.ClientID()
	defer func() {
		g.mu.Lock()
		delete(g.queues, clientID)
		g.mu.Unlock()

		queue.Close()
		g.hub.Unregister(connection)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if gorillaws.IsUnexpectedCloseError(err, gorillaws.CloseGoingAway, gorillaws.CloseNormalClosure) {
				g.logger.Warn("websocket read error", "client_id", clientID, "error", err)
			}
			return
		}

		var msg websocket.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Warn("invalid inbound message", "client_id", clientID, "error", err)
			continue
		}

		if !queue.Submit(func() { g.dispatch(clientID, msg) }) {
			return
		}
	}
}

// dispatch 在队列工作协程中执行单条入站消息
func (g *Gateway) dispatch(clientID string, msg websocket.InboundMessage) {
	ctx := context.Background()

	switch msg.Type {
	case "chat":
		var req orchestrator.ChatRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			g.sendError(clientID, "", err)
			return
		}
		if err := g.orch.HandleUserInput(ctx, clientID, req); err != nil {
			g.sendError(clientID, req.MessageID, err)
		}

	case "reexecute":
		var req orchestrator.ReexecuteRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			g.sendError(clientID, "", err)
			return
		}
		if err := g.orch.HandleReexecute(ctx, clientID, req); err != nil {
			g.sendError(clientID, "", err)
		}

	case "subscribe":
		var cfg sensor.SubscriptionConfig
		if err := json.Unmarshal(msg.Data, &cfg); err != nil {
			g.sendError(clientID, "", err)
			return
		}
		if _, err := g.subscriptions.Add(cfg); err != nil {
			g.sendError(clientID, "", err)
		}

	case "poll_api":
		var cfg sensor.PollerConfig
		if err := json.Unmarshal(msg.Data, &cfg); err != nil {
			g.sendError(clientID, "", err)
			return
		}
		if _, err := g.pollers.Add(cfg); err != nil {
			g.sendError(clientID, "", err)
		}

	default:
		g.logger.Warn("unknown message type", "client_id", clientID, "type", msg.Type)
	}
}

func (g *Gateway) sendError(clientID, messageID string, err error) {
	g.hub.SendToClient(clientID, websocket.NewEnvelope("error", map[string]any{
		"error":     err.Error(),
		"messageId": messageID,
	}))
}
