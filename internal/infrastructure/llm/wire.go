package llm

import (
	"github.com/google/wire"
	domainLLM "github.com/icsys/backend/internal/domain/llm"
	"github.com/icsys/backend/internal/infrastructure/config"
)

// ProvideService 提供生成能力客户端
func ProvideService(cfg *config.Config) domainLLM.Service {
	return NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel)
}

// ProviderSet 生成能力 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideService,
)
