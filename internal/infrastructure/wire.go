package infrastructure

import (
	"github.com/google/wire"
	"github.com/icsys/backend/internal/infrastructure/config"
	"github.com/icsys/backend/internal/infrastructure/kvstore"
	"github.com/icsys/backend/internal/infrastructure/llm"
	"github.com/icsys/backend/internal/infrastructure/storage"
	"github.com/icsys/backend/internal/infrastructure/vector"
	"github.com/icsys/backend/internal/infrastructure/websocket"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	kvstore.ProviderSet,
	llm.ProviderSet,
	vector.ProviderSet,
	websocket.ProviderSet,
)
