package kvstore

import (
	"fmt"

	"github.com/icsys/backend/internal/domain/memory"
)

// 记忆键：mem:<user>:<type>:<毫秒时间戳,13位定宽>
func memoryKey(userID, memType string, timestamp int64) string {
	return fmt.Sprintf("mem:%s:%s:%013d", userID, memType, timestamp)
}

// SaveMemory 追加一条记忆
func (s *Store) SaveMemory(userID string, m *memory.Memory) error {
	return s.putJSON(memoryKey(userID, m.Type, m.Timestamp), m)
}

// UserMemories 返回用户记忆，memType 为空表示不过滤类型
func (s *Store) UserMemories(userID, memType string) ([]memory.Memory, error) {
	prefix := fmt.Sprintf("mem:%s:", userID)
	if memType != "" {
		prefix = fmt.Sprintf("mem:%s:%s:", userID, memType)
	}

	var memories []memory.Memory
	err := s.iterPrefix(prefix, func(_ string, value []byte) error {
		var m memory.Memory
		if err := unmarshal(value, &m); err != nil {
			return err
		}
		memories = append(memories, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return memories, nil
}
