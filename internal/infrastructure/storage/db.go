// Package storage 基于 SQLite 的关系库仓储
// 承载结构化过滤和按时间扫描的查询（键值库不擅长的部分）
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/icsys/backend/internal/infrastructure/config"
)

// DefaultDBPath 返回默认数据库路径（~/.icsys/icsys.db）
func DefaultDBPath() (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "icsys.db"), nil
}

// OpenDB 打开数据库连接并执行建表迁移
func OpenDB(path string) (*sql.DB, error) {
	if path == "" {
		var err error
		path, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// runMigrations 初始化表结构
func runMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id TEXT PRIMARY KEY,
			name TEXT,
			preferences TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			title TEXT,
			status TEXT DEFAULT 'active',
			context_summary TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			type TEXT,
			status TEXT DEFAULT 'pending',
			priority INTEGER DEFAULT 0,
			input TEXT,
			output TEXT,
			progress INTEGER DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			type TEXT,
			config TEXT,
			last_check INTEGER,
			status TEXT DEFAULT 'active',
			created_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS environment_events (
			id TEXT PRIMARY KEY,
			source TEXT,
			type TEXT,
			data TEXT,
			processed INTEGER DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS intents (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			user_message_id TEXT,
			intent_type TEXT,
			topic TEXT,
			urgency TEXT DEFAULT 'medium',
			related_topics TEXT,
			confidence REAL DEFAULT 0.0,
			created_at INTEGER NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_tasks_session_status ON tasks(session_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_env_events_processed ON environment_events(processed, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_intents_session ON intents(session_id);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
