package sensor

import "github.com/google/wire"

// ProviderSet 环境传感器 ProviderSet
var ProviderSet = wire.NewSet(
	NewFileWatcher,
	NewSubscriptionManager,
	NewAPIPoller,
)
