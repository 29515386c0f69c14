package interfaces

import (
	"github.com/icsys/backend/internal/interfaces/http"
	"github.com/icsys/backend/internal/interfaces/ws"
)

// HTTPServer HTTP 服务器类型别名
type HTTPServer = http.HTTPServer

// Gateway WebSocket 网关类型别名
type Gateway = ws.Gateway
