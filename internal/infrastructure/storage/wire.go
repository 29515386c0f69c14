package storage

import (
	"database/sql"

	"github.com/google/wire"
	"github.com/icsys/backend/internal/infrastructure/config"
)

// ProvideDB 提供数据库连接（路径来自配置，留空使用默认路径）
func ProvideDB(cfg *config.Config) (*sql.DB, error) {
	return OpenDB(cfg.Storage.SQLitePath)
}

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,                 // 提供数据库连接
	NewSessionRepository,      // 会话仓储
	NewProfileRepository,      // 用户画像仓储
	NewTaskRepository,         // 任务仓储
	NewIntentRepository,       // 意图仓储
	NewEventRepository,        // 环境事件仓储
	NewSubscriptionRepository, // 订阅仓储
)
