package interfaces

import (
	"github.com/google/wire"
	"github.com/icsys/backend/internal/interfaces/http"
	"github.com/icsys/backend/internal/interfaces/ws"
)

// ProviderSet Interfaces 层总 ProviderSet
var ProviderSet = wire.NewSet(
	http.ProviderSet,
	ws.ProviderSet,
)
