package contextbuild

import "github.com/google/wire"

// ProviderSet 上下文装配 ProviderSet
var ProviderSet = wire.NewSet(
	NewBuilder,
)
