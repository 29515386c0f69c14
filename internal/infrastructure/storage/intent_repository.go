package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/icsys/backend/internal/domain/conversation"
)

// intentRepository 意图 SQLite 仓储实现
type intentRepository struct {
	db *sql.DB
}

// NewIntentRepository 创建意图仓储实例
func NewIntentRepository(db *sql.DB) conversation.IntentRepository {
	return &intentRepository{db: db}
}

// Save 写入意图行
func (r *intentRepository) Save(row *conversation.IntentRow) error {
	if row.CreatedAt == 0 {
		row.CreatedAt = time.Now().UnixMilli()
	}
	topics, err := json.Marshal(row.RelatedTopics)
	if err != nil {
		return fmt.Errorf("failed to marshal related topics: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT OR REPLACE INTO intents (id, session_id, user_message_id, intent_type, topic, urgency, related_topics, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.SessionID, row.UserMessageID, row.IntentType, row.Topic, row.Urgency, string(topics), row.Confidence, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save intent: %w", err)
	}
	return nil
}

// FindByID 按 id 查找意图行，不存在返回 (nil, nil)
func (r *intentRepository) FindByID(id string) (*conversation.IntentRow, error) {
	var row conversation.IntentRow
	var topics sql.NullString
	err := r.db.QueryRow(
		`SELECT id, session_id, user_message_id, intent_type, topic, urgency, related_topics, confidence, created_at
		 FROM intents WHERE id = ?`, id,
	).Scan(&row.ID, &row.SessionID, &row.UserMessageID, &row.IntentType, &row.Topic, &row.Urgency, &topics, &row.Confidence, &row.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find intent: %w", err)
	}

	if topics.Valid && topics.String != "" {
		// 主题字段损坏时保留空列表
		_ = json.Unmarshal([]byte(topics.String), &row.RelatedTopics)
	}
	return &row, nil
}

// FindBySession 查询会话意图列表，时间倒序
func (r *intentRepository) FindBySession(sessionID string, limit int) ([]*conversation.IntentRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, user_message_id, intent_type, topic, urgency, related_topics, confidence, created_at
		 FROM intents WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query intents: %w", err)
	}
	defer rows.Close()

	var result []*conversation.IntentRow
	for rows.Next() {
		var row conversation.IntentRow
		var topics sql.NullString
		if err := rows.Scan(&row.ID, &row.SessionID, &row.UserMessageID, &row.IntentType, &row.Topic, &row.Urgency, &topics, &row.Confidence, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		if topics.Valid && topics.String != "" {
			_ = json.Unmarshal([]byte(topics.String), &row.RelatedTopics)
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}
