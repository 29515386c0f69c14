package vector

import (
	"github.com/google/wire"
	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/infrastructure/config"
	"github.com/icsys/backend/internal/infrastructure/kvstore"
	"github.com/icsys/backend/internal/infrastructure/log"
)

// ProvideIndex 提供记忆向量索引
// 配置了 Qdrant 地址时使用外部索引，连接失败回退进程内余弦索引
func ProvideIndex(cfg *config.Config, store *kvstore.Store) memory.VectorIndex {
	if cfg.Vector.QdrantAddr != "" {
		idx, err := NewQdrantIndex(cfg.Vector.QdrantAddr, cfg.Vector.Collection)
		if err == nil {
			return idx
		}
		log.NewModuleLogger("vector", "wire").Warn("qdrant unavailable, using local index",
			"addr", cfg.Vector.QdrantAddr,
			"error", err,
		)
	}
	return NewLocalIndex(store)
}

// ProviderSet 向量索引 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideIndex,
)
