package middlewares

import (
	"net/http"
	"strings"

	"fleetserver/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OperatorKey is the gin context key holding the authenticated operator.
const OperatorKey = "operator"

// トークン検証を行うミドルウェア
func AuthMiddleware(secret []byte, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			logger.Warn("認証ヘッダーがありません", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, err := auth.ParseToken(secret, tokenString)
		if err != nil {
			logger.Warn("認証失敗", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(OperatorKey, claims.Operator)
		c.Next()
	}
}
