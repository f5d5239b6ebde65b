package handlers

import (
	"fleetserver/broker"
	"fleetserver/connection"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebSocket接続へのアップグレードを行い、ブローカーに引き渡す
func WebSocketHandler(c *gin.Context, b *broker.Broker, logger *zap.Logger) {
	ws, err := connection.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade はすでにエラー応答を書いている
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}
	b.HandleConn(c.Request.Context(), connection.NewWebSocketConn(ws))
}
