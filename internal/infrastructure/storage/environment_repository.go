package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/icsys/backend/internal/domain/environment"
)

// eventRepository 环境事件 SQLite 仓储实现
type eventRepository struct {
	db *sql.DB
}

// NewEventRepository 创建环境事件仓储实例
func NewEventRepository(db *sql.DB) environment.EventRepository {
	return &eventRepository{db: db}
}

// Save 写入事件行
func (r *eventRepository) Save(e *environment.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}

	processed := 0
	if e.Processed {
		processed = 1
	}

	_, err := r.db.Exec(
		`INSERT INTO environment_events (id, source, type, data, processed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Source, e.Type, e.Data, processed, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save environment event: %w", err)
	}
	return nil
}

// FindUnprocessed 未处理事件，时间倒序
func (r *eventRepository) FindUnprocessed(limit int) ([]*environment.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(
		`SELECT id, source, type, data, processed, created_at
		 FROM environment_events WHERE processed = 0 ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query environment events: %w", err)
	}
	defer rows.Close()

	var events []*environment.Event
	for rows.Next() {
		var e environment.Event
		var processed int
		if err := rows.Scan(&e.ID, &e.Source, &e.Type, &e.Data, &processed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan environment event: %w", err)
		}
		e.Processed = processed != 0
		events = append(events, &e)
	}
	return events, rows.Err()
}

// subscriptionRepository 订阅 SQLite 仓储实现
type subscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository 创建订阅仓储实例
func NewSubscriptionRepository(db *sql.DB) environment.SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Save 写入订阅行
func (r *subscriptionRepository) Save(s *environment.Subscription) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	if s.Status == "" {
		s.Status = "active"
	}

	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO subscriptions (id, type, config, last_check, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Type, s.Config, s.LastCheck, s.Status, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// UpdateStatus 更新订阅状态
func (r *subscriptionRepository) UpdateStatus(id, status string) error {
	_, err := r.db.Exec(`UPDATE subscriptions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

// TouchLastCheck 更新最近检查时间
func (r *subscriptionRepository) TouchLastCheck(id string) error {
	_, err := r.db.Exec(`UPDATE subscriptions SET last_check = ? WHERE id = ?`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to touch subscription: %w", err)
	}
	return nil
}

// FindActive 查询活跃订阅，subType 为空表示全部类型
func (r *subscriptionRepository) FindActive(subType string) ([]*environment.Subscription, error) {
	query := `SELECT id, type, config, last_check, status, created_at FROM subscriptions WHERE status = 'active'`
	args := []any{}
	if subType != "" {
		query += ` AND type = ?`
		args = append(args, subType)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*environment.Subscription
	for rows.Next() {
		var s environment.Subscription
		var lastCheck sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Type, &s.Config, &lastCheck, &s.Status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		s.LastCheck = lastCheck.Int64
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}
