package kvstore

import (
	"time"

	"github.com/icsys/backend/internal/domain/conversation"
)

// SaveGraph 保存画布图快照（每会话单例）
func (s *Store) SaveGraph(sessionID string, graph *conversation.CanvasGraph) error {
	graph.UpdatedAt = time.Now().UnixMilli()
	return s.putJSON("graph:"+sessionID, graph)
}

// GetGraph 读取画布图快照，不存在返回 (nil, nil)
func (s *Store) GetGraph(sessionID string) (*conversation.CanvasGraph, error) {
	var graph conversation.CanvasGraph
	ok, err := s.getJSON("graph:"+sessionID, &graph)
	if err != nil || !ok {
		return nil, err
	}
	return &graph, nil
}
