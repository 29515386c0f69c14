package kvstore

import (
	"fmt"
	"strings"

	"github.com/icsys/backend/internal/domain/conversation"
)

// 消息键：msg:<session>:<毫秒时间戳,13位定宽>:<id>，键序即时间序
func messageKey(sessionID string, timestamp int64, messageID string) string {
	return fmt.Sprintf("msg:%s:%013d:%s", sessionID, timestamp, messageID)
}

func messagePrefix(sessionID string) string {
	return fmt.Sprintf("msg:%s:", sessionID)
}

// SaveMessage 追加一条消息
func (s *Store) SaveMessage(sessionID string, msg *conversation.Message) error {
	return s.putJSON(messageKey(sessionID, msg.Timestamp, msg.ID), msg)
}

// SessionMessages 按时间顺序返回会话最近 limit 条消息
func (s *Store) SessionMessages(sessionID string, limit int) ([]conversation.Message, error) {
	var messages []conversation.Message
	err := s.iterPrefix(messagePrefix(sessionID), func(_ string, value []byte) error {
		var m conversation.Message
		if err := unmarshal(value, &m); err != nil {
			return err
		}
		messages = append(messages, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// FindMessage 按 id 查找消息，不存在返回 (nil, nil)
func (s *Store) FindMessage(sessionID, messageID string) (*conversation.Message, error) {
	var found *conversation.Message
	suffix := ":" + messageID
	err := s.iterPrefix(messagePrefix(sessionID), func(key string, value []byte) error {
		if found != nil || !strings.HasSuffix(key, suffix) {
			return nil
		}
		var m conversation.Message
		if err := unmarshal(value, &m); err != nil {
			return err
		}
		found = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// UpdateMessage 覆盖写入一条已存在的消息（编辑路径专用，键不变）
func (s *Store) UpdateMessage(sessionID string, msg *conversation.Message) error {
	existing, err := s.FindMessage(sessionID, msg.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("message %s not found in session %s", msg.ID, sessionID)
	}
	// 键由原始时间戳决定，编辑不改变消息在日志中的位置
	return s.putJSON(messageKey(sessionID, existing.Timestamp, msg.ID), msg)
}
