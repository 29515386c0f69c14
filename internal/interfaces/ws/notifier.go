package ws

import (
	"github.com/icsys/backend/internal/infrastructure/websocket"
)

// HubNotifier 把管线事件封装成信封后投递到连接注册表
// 同时满足编排器的定向推送和传感器的广播需求
type HubNotifier struct {
	hub *websocket.Hub
}

// NewHubNotifier 创建事件投递器
func NewHubNotifier(hub *websocket.Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// SendToClient 定向推送事件
func (n *HubNotifier) SendToClient(clientID, eventType string, data any) {
	n.hub.SendToClient(clientID, websocket.NewEnvelope(eventType, data))
}

// Broadcast 向所有连接广播事件
func (n *HubNotifier) Broadcast(eventType string, data any) {
	n.hub.Broadcast(websocket.NewEnvelope(eventType, data), "")
}
