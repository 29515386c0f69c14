package ws

import (
	"github.com/google/wire"
	"github.com/icsys/backend/internal/application/orchestrator"
	"github.com/icsys/backend/internal/application/sensor"
	"github.com/icsys/backend/internal/interfaces/http/handler"
)

// ProviderSet WebSocket 网关 ProviderSet
var ProviderSet = wire.NewSet(
	NewHubNotifier,
	NewGateway,
	wire.Bind(new(orchestrator.Notifier), new(*HubNotifier)),
	wire.Bind(new(sensor.Broadcaster), new(*HubNotifier)),
	wire.Bind(new(handler.QueueStatsSource), new(*Gateway)),
)
