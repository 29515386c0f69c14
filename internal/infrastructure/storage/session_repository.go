package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/icsys/backend/internal/domain/session"
)

// sessionRepository 会话 SQLite 仓储实现
type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository 创建会话仓储实例
func NewSessionRepository(db *sql.DB) session.Repository {
	return &sessionRepository{db: db}
}

// Create 新建会话行
func (r *sessionRepository) Create(s *session.Session) error {
	now := time.Now().UnixMilli()
	if s.CreatedAt == 0 {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.Status == "" {
		s.Status = "active"
	}

	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO sessions (id, user_id, title, status, context_summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Title, s.Status, s.ContextSummary, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FindByID 按 id 查找会话，不存在返回 (nil, nil)
func (r *sessionRepository) FindByID(id string) (*session.Session, error) {
	var s session.Session
	var summary sql.NullString
	err := r.db.QueryRow(
		`SELECT id, user_id, title, status, context_summary, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &summary, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	s.ContextSummary = summary.String
	return &s, nil
}

// FindByUser 查询用户会话列表，时间倒序
func (r *sessionRepository) FindByUser(userID string, limit int) ([]*session.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, user_id, title, status, context_summary, created_at, updated_at
		 FROM sessions WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		var s session.Session
		var summary sql.NullString
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &summary, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.ContextSummary = summary.String
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// profileRepository 用户画像 SQLite 仓储实现
type profileRepository struct {
	db *sql.DB
}

// NewProfileRepository 创建用户画像仓储实例
func NewProfileRepository(db *sql.DB) session.ProfileRepository {
	return &profileRepository{db: db}
}

// Create 新建画像行
func (r *profileRepository) Create(p *session.UserProfile) error {
	now := time.Now().UnixMilli()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT OR REPLACE INTO user_profiles (id, name, preferences, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(prefs), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save user profile: %w", err)
	}
	return nil
}

// FindByID 按 id 查找画像，不存在返回 (nil, nil)
func (r *profileRepository) FindByID(id string) (*session.UserProfile, error) {
	var p session.UserProfile
	var prefs sql.NullString
	err := r.db.QueryRow(
		`SELECT id, name, preferences, created_at, updated_at FROM user_profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &prefs, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user profile: %w", err)
	}

	p.Preferences = map[string]string{}
	if prefs.Valid && prefs.String != "" {
		// 偏好字段损坏时保留空 map
		_ = json.Unmarshal([]byte(prefs.String), &p.Preferences)
	}
	return &p, nil
}
