package kvstore

import (
	"path/filepath"

	"github.com/google/wire"
	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/infrastructure/config"
)

// ProvideStore 提供键值库（路径来自配置，留空使用 ~/.icsys/kv）
func ProvideStore(cfg *config.Config) (*Store, error) {
	path := cfg.Storage.KVPath
	if path == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "kv")
	}
	return Open(path)
}

// ProviderSet 键值库 ProviderSet
// 单个 Store 同时承担消息日志、画布快照、意图档案和记忆日志
var ProviderSet = wire.NewSet(
	ProvideStore,
	wire.Bind(new(conversation.MessageLog), new(*Store)),
	wire.Bind(new(conversation.GraphStore), new(*Store)),
	wire.Bind(new(conversation.IntentArchive), new(*Store)),
	wire.Bind(new(memory.Store), new(*Store)),
)
