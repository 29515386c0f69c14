package application

import (
	"github.com/google/wire"
	"github.com/icsys/backend/internal/application/contextbuild"
	"github.com/icsys/backend/internal/application/intent"
	"github.com/icsys/backend/internal/application/orchestrator"
	"github.com/icsys/backend/internal/application/sensor"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	intent.ProviderSet,
	contextbuild.ProviderSet,
	orchestrator.ProviderSet,
	sensor.ProviderSet,
)
