package handlers

import (
	"time"

	"fleetserver/broker"
	"fleetserver/middlewares"
	"fleetserver/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig collects what the HTTP side needs besides the broker.
type RouterConfig struct {
	// Audit may be nil when no database is configured.
	Audit       AuditReader
	JWTSecret   []byte
	CORSOrigins []string
}

// NewRouter builds the HTTP gateway: status endpoints, the operator API and
// the WebSocket entrance to the broker.
func NewRouter(b *broker.Broker, config RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(config.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = config.CORSOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		HealthHandler(c, b)
	})
	router.GET("/rooms", func(c *gin.Context) {
		RoomsHandler(c, b)
	})
	router.GET("/ws", func(c *gin.Context) {
		WebSocketHandler(c, b, logger)
	})

	admin := router.Group("/admin", middlewares.AuthMiddleware(config.JWTSecret, logger))
	admin.GET("/rooms", func(c *gin.Context) {
		AdminRoomsHandler(c, b, config.Audit, logger)
	})

	return router
}
