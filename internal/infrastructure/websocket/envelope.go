package websocket

import (
	"encoding/json"
	"time"
)

// Envelope 统一的出站消息格式
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// NewEnvelope 构造带当前毫秒时间戳的消息
func NewEnvelope(msgType string, data interface{}) *Envelope {
	return &Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Marshal 序列化为 JSON
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// InboundMessage 客户端入站消息
type InboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}
