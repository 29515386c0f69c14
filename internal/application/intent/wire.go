package intent

import "github.com/google/wire"

// ProviderSet 意图引擎 ProviderSet
var ProviderSet = wire.NewSet(
	NewEngine,
)
