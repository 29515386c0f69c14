//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"
	"github.com/icsys/backend/internal/application"
	"github.com/icsys/backend/internal/infrastructure"
	"github.com/icsys/backend/internal/interfaces"
)

// InitializeApp 初始化所有服务
func InitializeApp() (*App, error) {
	wire.Build(
		// 按层组合 ProviderSet
		infrastructure.ProviderSet, // 基础设施层
		application.ProviderSet,    // 应用层
		interfaces.ProviderSet,     // 接口层
		NewApp,                     // 组合所有服务的应用结构
	)
	return nil, nil
}
