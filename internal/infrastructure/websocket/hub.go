package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/icsys/backend/internal/infrastructure/log"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 单连接发送缓冲区大小
	sendBufferSize = 256

	// 入站消息大小上限
	maxMessageSize = 512 * 1024
)

// Connection 单个客户端连接
type Connection struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	clientID string
	sendChan chan []byte
	done     chan struct{}
	closed   bool
}

// ClientID 返回连接的客户端标识
func (c *Connection) ClientID() string {
	return c.clientID
}

// Send 将消息放入发送队列，缓冲区满时丢弃
func (c *Connection) Send(e *Envelope) {
	data, err := e.Marshal()
	if err != nil {
		return
	}
	select {
	case c.sendChan <- data:
	case <-c.done:
	default:
		// 缓冲区满，丢弃（慢客户端不阻塞业务流程）
	}
}

// Hub 客户端连接注册表
// 按 clientID 索引，同一 clientID 重连时关闭旧连接
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	logger      *slog.Logger
}

// NewHub 创建连接注册表
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		logger:      log.NewModuleLogger("websocket", "hub"),
	}
}

// Register 注册新连接并启动写协程
func (h *Hub) Register(clientID string, conn *websocket.Conn) *Connection {
	c := &Connection{
		conn:     conn,
		clientID: clientID,
		sendChan: make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if old, exists := h.connections[clientID]; exists {
		old.close()
	}
	h.connections[clientID] = c
	h.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	go h.writePump(c)

	h.logger.Info("client connected", "client_id", clientID)
	return c
}

// Unregister 移除连接并关闭底层 socket
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	if existing, ok := h.connections[c.clientID]; ok && existing == c {
		delete(h.connections, c.clientID)
	}
	h.mu.Unlock()

	c.close()
	h.logger.Info("client disconnected", "client_id", c.clientID)
}

// SendToClient 发送消息给指定客户端，客户端不在线时静默丢弃
func (h *Hub) SendToClient(clientID string, e *Envelope) {
	h.mu.RLock()
	c, exists := h.connections[clientID]
	h.mu.RUnlock()

	if !exists {
		return
	}
	c.Send(e)
}

// Broadcast 广播消息给所有连接，excludeID 非空时跳过该客户端
func (h *Hub) Broadcast(e *Envelope, excludeID string) {
	data, err := e.Marshal()
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.connections {
		if id == excludeID {
			continue
		}
		select {
		case c.sendChan <- data:
		default:
			h.logger.Warn("send buffer full, dropping message", "client_id", id)
		}
	}
}

// ConnectedClients 返回在线客户端列表
func (h *Hub) ConnectedClients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]string, 0, len(h.connections))
	for id := range h.connections {
		clients = append(clients, id)
	}
	return clients
}

// Close 关闭所有连接
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.connections {
		c.close()
	}
	h.connections = make(map[string]*Connection)
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	_ = c.conn.Close()
}

// writePump 串行写出发送队列中的消息
func (h *Hub) writePump(c *Connection) {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.sendChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Warn("failed to write message",
					"client_id", c.clientID,
					"error", err,
				)
				return
			}
		}
	}
}
