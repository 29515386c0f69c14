package orchestrator

import "github.com/google/wire"

// ProviderSet 编排器 ProviderSet
var ProviderSet = wire.NewSet(
	NewOrchestrator,
)
